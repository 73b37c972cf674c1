package bitmart

import (
	"context"
	"fmt"

	"marketsync/internal/cache"
	"marketsync/internal/exchange"
	"marketsync/internal/future"
	"marketsync/internal/market"
	"marketsync/internal/orderbook"
	"marketsync/internal/types"
)

const ordersChannel = "spot/user/order"

// Handle is bound to one subscribed stream. Every Next waits for the
// following update of that stream.
type Handle[T any] struct {
	Symbol      string
	MessageHash string

	future  *future.Future
	convert func(any) (T, error)
}

// Next blocks until the stream updates, the subscription fails or ctx ends
func (h *Handle[T]) Next(ctx context.Context) (T, error) {
	v, err := h.future.Await(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return h.convert(v)
}

func newHandle[T any](m market.Market, hash string, f *future.Future, convert func(T) T) *Handle[T] {
	return &Handle[T]{
		Symbol:      m.Symbol,
		MessageHash: hash,
		future:      f,
		convert: func(v any) (T, error) {
			t, ok := v.(T)
			if !ok {
				var zero T
				return zero, fmt.Errorf("%w: unexpected %T on %s", exchange.ErrBadResponse, v, hash)
			}
			return convert(t), nil
		},
	}
}

// subscribe registers a public stream and sends its subscribe request unless
// the connection already carries it
func (c *Client) subscribe(ctx context.Context, channel, symbol string, params map[string]any) (market.Market, string, *future.Future, error) {
	m, err := c.market(ctx, symbol)
	if err != nil {
		return market.Market{}, "", nil, err
	}
	conn, err := c.connection(ctx, c.cfg.PublicURL())
	if err != nil {
		return market.Market{}, "", nil, err
	}
	hash := PublicChannelKey(m, channel)
	f, err := conn.Watch(ctx, hash, subscribeRequest(hash, params), hash)
	if err != nil {
		return market.Market{}, "", nil, err
	}
	return m, hash, f, nil
}

// subscribePrivate is subscribe on the private endpoint, after logging in
func (c *Client) subscribePrivate(ctx context.Context, channel, symbol string, params map[string]any) (market.Market, string, *future.Future, error) {
	m, err := c.market(ctx, symbol)
	if err != nil {
		return market.Market{}, "", nil, err
	}
	conn, err := c.authenticate(ctx)
	if err != nil {
		return market.Market{}, "", nil, err
	}
	hash := PrivateChannelKey(m, channel)
	f, err := conn.Watch(ctx, hash, subscribeRequest(hash, params), hash)
	if err != nil {
		return market.Market{}, "", nil, err
	}
	return m, hash, f, nil
}

func (c *Client) market(ctx context.Context, symbol string) (market.Market, error) {
	if err := c.markets.LoadMarkets(ctx); err != nil {
		return market.Market{}, fmt.Errorf("failed to load markets: %w", err)
	}
	return c.markets.Market(symbol)
}

// subscribeRequest builds {"op":"subscribe","args":[hash]} and deep-merges
// params into it
func subscribeRequest(hash string, params map[string]any) map[string]any {
	request := map[string]any{
		"op":   "subscribe",
		"args": []any{hash},
	}
	return deepExtend(request, params)
}

// deepExtend merges src into dst. Nested maps merge recursively, args lists
// are appended, anything else is overwritten.
func deepExtend(dst, src map[string]any) map[string]any {
	for k, v := range src {
		switch sv := v.(type) {
		case map[string]any:
			if dv, ok := dst[k].(map[string]any); ok {
				dst[k] = deepExtend(dv, sv)
				continue
			}
		case []any:
			if dv, ok := dst[k].([]any); ok && k == "args" {
				dst[k] = append(dv, sv...)
				continue
			}
		case []string:
			if dv, ok := dst[k].([]any); ok && k == "args" {
				for _, s := range sv {
					dv = append(dv, s)
				}
				dst[k] = dv
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

// filterBySinceLimit keeps the records at or after since, then the newest
// limit of them. since <= 0 and limit <= 0 disable the respective filter.
func filterBySinceLimit[T any](values []T, since int64, limit int, timestamp func(T) int64) []T {
	if since > 0 {
		filtered := make([]T, 0, len(values))
		for _, v := range values {
			if timestamp(v) >= since {
				filtered = append(filtered, v)
			}
		}
		values = filtered
	}
	return cache.Newest(values, limit)
}

// SubscribeTrades subscribes to the trade stream of symbol
func (c *Client) SubscribeTrades(ctx context.Context, symbol string, since int64, limit int, params map[string]any) (*Handle[[]types.Trade], error) {
	m, hash, f, err := c.subscribe(ctx, "trade", symbol, params)
	if err != nil {
		return nil, err
	}
	return newHandle(m, hash, f, func(trades []types.Trade) []types.Trade {
		return filterBySinceLimit(trades, since, limit, func(t types.Trade) int64 { return t.Timestamp })
	}), nil
}

// WatchTrades waits for the next trade update of symbol
func (c *Client) WatchTrades(ctx context.Context, symbol string, since int64, limit int, params map[string]any) ([]types.Trade, error) {
	h, err := c.SubscribeTrades(ctx, symbol, since, limit, params)
	if err != nil {
		return nil, err
	}
	return h.Next(ctx)
}

// SubscribeTicker subscribes to the 24h ticker of symbol
func (c *Client) SubscribeTicker(ctx context.Context, symbol string, params map[string]any) (*Handle[types.Ticker], error) {
	m, hash, f, err := c.subscribe(ctx, "ticker", symbol, params)
	if err != nil {
		return nil, err
	}
	return newHandle(m, hash, f, func(t types.Ticker) types.Ticker { return t }), nil
}

// WatchTicker waits for the next ticker of symbol
func (c *Client) WatchTicker(ctx context.Context, symbol string, params map[string]any) (types.Ticker, error) {
	h, err := c.SubscribeTicker(ctx, symbol, params)
	if err != nil {
		return types.Ticker{}, err
	}
	return h.Next(ctx)
}

// SubscribeOrderBook subscribes to the configured depth channel of symbol.
// Every update is trimmed to limit levels per side.
func (c *Client) SubscribeOrderBook(ctx context.Context, symbol string, limit int, params map[string]any) (*Handle[orderbook.Snapshot], error) {
	channel := c.cfg.Exchange.OrderBookChannel
	if channel == "" {
		channel = "depth400"
	}
	m, hash, f, err := c.subscribe(ctx, channel, symbol, params)
	if err != nil {
		return nil, err
	}
	return newHandle(m, hash, f, func(s orderbook.Snapshot) orderbook.Snapshot {
		return s.Limit(limit)
	}), nil
}

// WatchOrderBook waits for the next book of symbol
func (c *Client) WatchOrderBook(ctx context.Context, symbol string, limit int, params map[string]any) (orderbook.Snapshot, error) {
	h, err := c.SubscribeOrderBook(ctx, symbol, limit, params)
	if err != nil {
		return orderbook.Snapshot{}, err
	}
	return h.Next(ctx)
}

// SubscribeOHLCV subscribes to the candles of symbol for a unified timeframe
func (c *Client) SubscribeOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int, params map[string]any) (*Handle[[]types.OHLCV], error) {
	interval, ok := c.cfg.Exchange.Timeframes[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported timeframe %q", exchange.ErrBadRequest, timeframe)
	}
	m, hash, f, err := c.subscribe(ctx, "kline"+interval, symbol, params)
	if err != nil {
		return nil, err
	}
	return newHandle(m, hash, f, func(bars []types.OHLCV) []types.OHLCV {
		return filterBySinceLimit(bars, since, limit, func(b types.OHLCV) int64 { return b.Timestamp })
	}), nil
}

// WatchOHLCV waits for the next candle update of symbol
func (c *Client) WatchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int, params map[string]any) ([]types.OHLCV, error) {
	h, err := c.SubscribeOHLCV(ctx, symbol, timeframe, since, limit, params)
	if err != nil {
		return nil, err
	}
	return h.Next(ctx)
}

// SubscribeOrders subscribes to the user's orders in a spot market
func (c *Client) SubscribeOrders(ctx context.Context, symbol string, since int64, limit int, params map[string]any) (*Handle[[]types.Order], error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: %s watchOrders requires a symbol argument", exchange.ErrArgumentsRequired, c.cfg.Exchange.Name)
	}
	m, err := c.market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if m.Type != market.Spot {
		return nil, fmt.Errorf("%w: %s watchOrders supports spot markets only", exchange.ErrArgumentsRequired, c.cfg.Exchange.Name)
	}
	m, hash, f, err := c.subscribePrivate(ctx, ordersChannel, m.Symbol, params)
	if err != nil {
		return nil, err
	}
	return newHandle(m, hash, f, func(orders []types.Order) []types.Order {
		own := make([]types.Order, 0, len(orders))
		for _, o := range orders {
			if o.Symbol == m.Symbol {
				own = append(own, o)
			}
		}
		return filterBySinceLimit(own, since, limit, func(o types.Order) int64 { return o.LastTradeTimestamp })
	}), nil
}

// WatchOrders waits for the next update of the user's orders in symbol
func (c *Client) WatchOrders(ctx context.Context, symbol string, since int64, limit int, params map[string]any) ([]types.Order, error) {
	h, err := c.SubscribeOrders(ctx, symbol, since, limit, params)
	if err != nil {
		return nil, err
	}
	return h.Next(ctx)
}
