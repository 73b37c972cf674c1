package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"marketsync/internal/config"
	"marketsync/internal/exchange"
	"marketsync/internal/exchange/bitmart"
	"marketsync/internal/logger"
	"marketsync/internal/market"
	"marketsync/internal/transport"
	"marketsync/internal/websocket"
)

const (
	colorReset   = "\033[0m"
	colorYellow  = "\033[33m"
	colorGreen   = "\033[32m"
	colorRed     = "\033[31m"
	colorMagenta = "\033[35m"
	colorBold    = "\033[1m"
)

const retryDelay = 2 * time.Second

func main() {
	app := &cli.App{
		Name:  "marketsync",
		Usage: "keep a live local view of BitMart spot markets",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "file holding BITMART_* credentials"},
			&cli.StringSliceFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "symbols to watch (default: every configured market)"},
			&cli.StringFlag{Name: "timeframe", Value: "1m", Usage: "candle timeframe to watch"},
			&cli.DurationFlag{Name: "log-interval", Usage: "interval for printing book stats"},
			&cli.BoolFlag{Name: "orders", Usage: "watch the account's orders (needs credentials)"},
			&cli.StringFlag{Name: "port", Usage: "push server port"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	if err := godotenv.Load(c.String("env-file")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config.Config{}, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}
	cfg = cfg.WithCredentialsFromEnv()

	if d := c.Duration("log-interval"); d > 0 {
		cfg.Display.LogInterval = d
	}
	if port := c.String("port"); port != "" {
		cfg.Server.Port = port
	}
	return cfg, cfg.Validate()
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	log := logger.GetLogger()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return err
	}
	entry := log.WithComponent("main")

	symbols := c.StringSlice("symbol")
	if len(symbols) == 0 {
		for _, m := range cfg.Markets {
			symbols = append(symbols, m.Symbol)
		}
	}

	client := bitmart.New(cfg, market.NewStatic(cfg.Markets), transport.NewDialer(cfg.Stream, log),
		bitmart.WithLogger(log),
		bitmart.WithErrorSink(func(err error) {
			entry.WithError(err).Warn("exchange error")
		}))
	defer client.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	entry.WithFields(logger.Fields{
		"symbols":  symbols,
		"interval": cfg.Display.LogInterval.String(),
	}).Info("starting market sync")

	server := websocket.NewServer(client, string(cfg.Exchange.Name), cfg.Server, cfg.Display.DefaultTickLevel, log)
	go func() {
		if err := server.Start(ctx); err != nil {
			entry.WithError(err).Error("websocket server error")
			stop()
		}
	}()

	timeframe := c.String("timeframe")
	watchOrders := c.Bool("orders")
	if watchOrders && !cfg.Credentials.Complete() {
		entry.Warnf("--orders needs %s, %s and %s; skipping", config.EnvAPIKey, config.EnvSecret, config.EnvUID)
		watchOrders = false
	}

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		streams := map[string]func(context.Context) error{
			"orderbook": func(ctx context.Context) error { return watchOrderBook(ctx, client, symbol, cfg.Display.Top) },
			"trades":    func(ctx context.Context) error { return watchTrades(ctx, client, symbol, entry) },
			"ticker":    func(ctx context.Context) error { return watchTicker(ctx, client, symbol, entry) },
			"ohlcv":     func(ctx context.Context) error { return watchOHLCV(ctx, client, symbol, timeframe, entry) },
		}
		if watchOrders {
			streams["orders"] = func(ctx context.Context) error { return watchOrdersLoop(ctx, client, symbol, entry) }
		}
		for name, fn := range streams {
			wg.Add(1)
			go func(name string, fn func(context.Context) error) {
				defer wg.Done()
				keepWatching(ctx, entry.WithFields(logger.Fields{"stream": name, "symbol": symbol}), fn)
			}(name, fn)
		}
	}

	ticker := time.NewTicker(cfg.Display.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			entry.Info("shutting down")
			_ = client.Close()
			wg.Wait()
			entry.Info("all streams closed. Goodbye!")
			return nil
		case <-ticker.C:
			printCombinedStats(client, symbols)
		}
	}
}

// keepWatching runs fn until ctx ends, subscribing again after failures
func keepWatching(ctx context.Context, log *logger.Entry, fn func(context.Context) error) {
	for {
		err := fn(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, exchange.ErrMarketNotFound) || errors.Is(err, exchange.ErrArgumentsRequired) || errors.Is(err, exchange.ErrBadRequest) {
			log.WithError(err).Error("stream cannot be watched")
			return
		}
		log.WithError(err).Warn("stream interrupted, subscribing again")
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

func watchOrderBook(ctx context.Context, client *bitmart.Client, symbol string, top int) error {
	h, err := client.SubscribeOrderBook(ctx, symbol, top, nil)
	if err != nil {
		return err
	}
	for {
		if _, err := h.Next(ctx); err != nil {
			return err
		}
	}
}

func watchTrades(ctx context.Context, client *bitmart.Client, symbol string, log *logger.Entry) error {
	h, err := client.SubscribeTrades(ctx, symbol, 0, 1, nil)
	if err != nil {
		return err
	}
	for {
		trades, err := h.Next(ctx)
		if err != nil {
			return err
		}
		if len(trades) > 0 {
			t := trades[len(trades)-1]
			log.WithFields(logger.Fields{"side": t.Side, "price": t.Price.String(), "amount": t.Amount.String()}).Debug("trade")
		}
	}
}

func watchTicker(ctx context.Context, client *bitmart.Client, symbol string, log *logger.Entry) error {
	h, err := client.SubscribeTicker(ctx, symbol, nil)
	if err != nil {
		return err
	}
	for {
		t, err := h.Next(ctx)
		if err != nil {
			return err
		}
		log.WithFields(logger.Fields{"last": t.Last.String(), "change": t.Percentage.StringFixed(2)}).Debug("ticker")
	}
}

func watchOHLCV(ctx context.Context, client *bitmart.Client, symbol, timeframe string, log *logger.Entry) error {
	h, err := client.SubscribeOHLCV(ctx, symbol, timeframe, 0, 1, nil)
	if err != nil {
		return err
	}
	for {
		bars, err := h.Next(ctx)
		if err != nil {
			return err
		}
		if len(bars) > 0 {
			b := bars[len(bars)-1]
			log.WithFields(logger.Fields{"time": b.Timestamp, "close": b.Close.String(), "volume": b.Volume.String()}).Debug("candle")
		}
	}
}

func watchOrdersLoop(ctx context.Context, client *bitmart.Client, symbol string, log *logger.Entry) error {
	h, err := client.SubscribeOrders(ctx, symbol, 0, 0, nil)
	if err != nil {
		return err
	}
	for {
		orders, err := h.Next(ctx)
		if err != nil {
			return err
		}
		for _, o := range orders {
			log.WithFields(logger.Fields{"id": o.ID, "status": o.Status, "filled": o.Filled.String()}).Info("order")
		}
	}
}

func printCombinedStats(client *bitmart.Client, symbols []string) {
	fmt.Println()

	for i, symbol := range symbols {
		stats, ok := client.OrderBookStats(symbol)
		if !ok {
			continue
		}

		fmt.Printf("%s%s%s", colorBold, symbol, colorReset)
		fmt.Printf("  Mid: %s%10s%s │ Spread: %s%8s%s | BB: %s%10s%s │ BA: %s%10s%s\n",
			colorYellow, stats.MidPrice.StringFixed(2), colorReset,
			colorMagenta, stats.Spread.StringFixed(4), colorReset,
			colorGreen, stats.BestBid.StringFixed(2), colorReset,
			colorRed, stats.BestAsk.StringFixed(2), colorReset)

		fmt.Printf("  DEPTH 0.5%% Bids: %s%9s%s │ Asks: %s%9s%s │ Δ: %s%10s%s\n",
			colorGreen, stats.BidLiquidity05Pct.StringFixed(2), colorReset,
			colorRed, stats.AskLiquidity05Pct.StringFixed(2), colorReset,
			getDeltaColor(stats.DeltaLiquidity05Pct), stats.DeltaLiquidity05Pct.StringFixed(2), colorReset)

		fmt.Printf("  DEPTH 2%%:  Bids: %s%9s%s │ Asks: %s%9s%s │ Δ: %s%10s%s\n",
			colorGreen, stats.BidLiquidity2Pct.StringFixed(2), colorReset,
			colorRed, stats.AskLiquidity2Pct.StringFixed(2), colorReset,
			getDeltaColor(stats.DeltaLiquidity2Pct), stats.DeltaLiquidity2Pct.StringFixed(2), colorReset)

		fmt.Printf("  DEPTH 10%%  Bids: %s%9s%s │ Asks: %s%9s%s │ Δ: %s%10s%s\n",
			colorGreen, stats.BidLiquidity10Pct.StringFixed(2), colorReset,
			colorRed, stats.AskLiquidity10Pct.StringFixed(2), colorReset,
			getDeltaColor(stats.DeltaLiquidity10Pct), stats.DeltaLiquidity10Pct.StringFixed(2), colorReset)

		fmt.Printf("  TOTAL QTY: Bids: %s%9s%s │ Asks: %s%9s%s\n",
			colorGreen, stats.TotalBidsQty.StringFixed(2), colorReset,
			colorRed, stats.TotalAsksQty.StringFixed(2), colorReset)

		if i < len(symbols)-1 {
			fmt.Println()
		}
	}
}

func getDeltaColor(delta decimal.Decimal) string {
	if delta.GreaterThan(decimal.Zero) {
		return colorGreen
	} else if delta.LessThan(decimal.Zero) {
		return colorRed
	}
	return colorYellow
}
