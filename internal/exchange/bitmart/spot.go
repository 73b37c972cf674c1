// Package bitmart is the streaming client for the BitMart spot websocket
// API. It multiplexes subscriptions over one connection per endpoint,
// authenticates the private endpoint and keeps the materialized state
// (books, trades, tickers, candles and the user's orders) current.
package bitmart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"marketsync/internal/cache"
	"marketsync/internal/config"
	"marketsync/internal/exchange"
	"marketsync/internal/logger"
	"marketsync/internal/market"
	"marketsync/internal/orderbook"
	"marketsync/internal/stream"
	"marketsync/internal/types"
)

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger, logger.GetLogger() by default
func WithLogger(l *logger.Log) Option {
	return func(c *Client) { c.log = l }
}

// WithErrorSink receives error frames no pending subscription claimed
func WithErrorSink(fn func(error)) Option {
	return func(c *Client) { c.onError = fn }
}

// WithClock replaces the clock used for login timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client is safe for concurrent use
type Client struct {
	cfg     config.Config
	markets market.Registry
	dialer  exchange.Dialer
	log     *logger.Log
	entry   *logger.Entry
	now     func() time.Time
	onError func(error)

	// native interval token -> unified timeframe
	timeframes map[string]string

	connMu sync.Mutex
	conns  map[string]*stream.Connection

	books *orderbook.Books

	mu      sync.RWMutex
	trades  map[string]*cache.Array[types.Trade]
	tickers map[string]types.Ticker
	ohlcvs  map[string]map[string]*cache.ByTimestamp[types.OHLCV]
	orders  *cache.BySymbolByID[types.Order]
}

// New creates a client. No connection is opened until the first watch.
func New(cfg config.Config, markets market.Registry, dialer exchange.Dialer, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		markets:    markets,
		dialer:     dialer,
		now:        time.Now,
		timeframes: make(map[string]string, len(cfg.Exchange.Timeframes)),
		conns:      make(map[string]*stream.Connection),
		books:      orderbook.NewBooks(),
		trades:     make(map[string]*cache.Array[types.Trade]),
		tickers:    make(map[string]types.Ticker),
		ohlcvs:     make(map[string]map[string]*cache.ByTimestamp[types.OHLCV]),
		orders: cache.NewBySymbolByID(cfg.Exchange.OrdersLimit, func(o types.Order) (string, string) {
			return o.Symbol, o.ID
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.GetLogger()
	}
	c.entry = c.log.WithComponent(string(cfg.Exchange.Name))
	for unified, native := range cfg.Exchange.Timeframes {
		c.timeframes[native] = unified
	}
	return c
}

// connection returns the live connection for url, dialing it when there is
// none or the previous one was torn down
func (c *Client) connection(ctx context.Context, url string) (*stream.Connection, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if sc, ok := c.conns[url]; ok && sc.Closed() == nil {
		return sc, nil
	}

	ready := make(chan struct{})
	var sc *stream.Connection
	onMessage := func(raw []byte) {
		<-ready
		if _, err := c.HandleMessage(sc, raw); err != nil {
			c.entry.WithError(err).Warn("dropped inbound frame")
		}
	}
	onClose := func(cause error) {
		<-ready
		sc.Teardown(cause)
	}

	conn, err := c.dialer.Dial(ctx, url, onMessage, onClose)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", exchange.ErrConnectionUnavailable, url, err)
	}
	sc = stream.New(url, conn, c.limiter(), c.log)
	close(ready)
	c.conns[url] = sc
	c.entry.WithFields(logger.Fields{"url": url, "conn": sc.ID}).Info("connected")
	return sc, nil
}

func (c *Client) limiter() *rate.Limiter {
	if c.cfg.Stream.SendRate <= 0 {
		return nil
	}
	burst := c.cfg.Stream.SendBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.cfg.Stream.SendRate), burst)
}

// Close closes every connection and releases all waiters
func (c *Client) Close() error {
	c.connMu.Lock()
	conns := c.conns
	c.conns = make(map[string]*stream.Connection)
	c.connMu.Unlock()

	var firstErr error
	for _, sc := range conns {
		if err := sc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Health reports the health of every open connection keyed by url
func (c *Client) Health() map[string]exchange.HealthStatus {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	out := make(map[string]exchange.HealthStatus, len(c.conns))
	for url, sc := range c.conns {
		out[url] = sc.Health()
	}
	return out
}

// OrderBook returns a copy of the book for symbol (unified symbol or id)
func (c *Client) OrderBook(symbol string) (orderbook.Snapshot, bool) {
	return c.books.Snapshot(c.unified(symbol))
}

// OrderBookStats returns the statistics of the book for symbol
func (c *Client) OrderBookStats(symbol string) (types.Stats, bool) {
	return c.books.Stats(c.unified(symbol))
}

// OrderBookSymbols lists the symbols that have a book
func (c *Client) OrderBookSymbols() []string {
	return c.books.Symbols()
}

// Trades returns the cached trades for symbol, oldest first
func (c *Client) Trades(symbol string) []types.Trade {
	c.mu.RLock()
	stored, ok := c.trades[c.unified(symbol)]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	return stored.Snapshot()
}

// Ticker returns the latest ticker for symbol
func (c *Client) Ticker(symbol string) (types.Ticker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tickers[c.unified(symbol)]
	return t, ok
}

// OHLCV returns the cached candles for symbol and unified timeframe
func (c *Client) OHLCV(symbol, timeframe string) []types.OHLCV {
	c.mu.RLock()
	stored, ok := c.ohlcvs[c.unified(symbol)][timeframe]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	return stored.Snapshot()
}

// Orders returns every cached order, oldest first
func (c *Client) Orders() []types.Order {
	return c.orders.Snapshot()
}

// safeMarket resolves a market id from a frame, falling back to the
// configured default type for ids the registry does not know
func (c *Client) safeMarket(id string) market.Market {
	return market.SafeMarket(c.markets, id, c.cfg.Exchange.DefaultType)
}

// unified maps an exchange id to its unified symbol; anything else is
// returned as given
func (c *Client) unified(symbol string) string {
	if m, err := c.markets.Market(symbol); err == nil {
		return m.Symbol
	}
	return symbol
}
