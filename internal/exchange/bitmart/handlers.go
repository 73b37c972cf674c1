package bitmart

import (
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/shopspring/decimal"

	"marketsync/internal/cache"
	"marketsync/internal/exchange"
	"marketsync/internal/market"
	"marketsync/internal/orderbook"
	"marketsync/internal/stream"
	"marketsync/internal/types"
)

// spotStatuses maps the numeric order state of the spot feed
var spotStatuses = map[string]string{
	"1": types.StatusFailed,    // fail
	"2": types.StatusOpen,      // submitting
	"3": types.StatusFailed,    // failed
	"4": types.StatusOpen,      // new
	"5": types.StatusOpen,      // partially filled
	"6": types.StatusClosed,    // filled
	"7": types.StatusCanceling, // canceling
	"8": types.StatusCanceled,  // canceled
}

func (c *Client) handleTrade(conn *stream.Connection, table string, raw []byte) error {
	return eachRecord(raw, func(record []byte) error {
		marketID := safeString(record, "symbol")
		trade := parseTrade(record, c.safeMarket(marketID))

		c.mu.Lock()
		stored, ok := c.trades[trade.Symbol]
		if !ok {
			stored = cache.NewArray[types.Trade](c.cfg.Exchange.TradesLimit)
			c.trades[trade.Symbol] = stored
		}
		c.mu.Unlock()

		stored.Append(trade)
		conn.Resolve(InboundChannelKey(table, marketID), stored.Snapshot())
		return nil
	})
}

func parseTrade(record []byte, m market.Market) types.Trade {
	t := types.Trade{
		Symbol: m.Symbol,
		Side:   safeStringLower(record, "side"),
		Price:  safeDecimal(record, "price"),
		Amount: safeDecimal(record, "size"),
	}
	if ts, ok := safeInteger(record, "s_t"); ok {
		t.Timestamp = ts * 1000
		t.Datetime = types.ISO8601(t.Timestamp)
	}
	t.Cost = t.Price.Mul(t.Amount)
	return t
}

func (c *Client) handleTicker(conn *stream.Connection, table string, raw []byte) error {
	return eachRecord(raw, func(record []byte) error {
		marketID := safeString(record, "symbol")
		ticker := parseTicker(record, c.safeMarket(marketID))

		c.mu.Lock()
		c.tickers[ticker.Symbol] = ticker
		c.mu.Unlock()

		conn.Resolve(InboundChannelKey(table, marketID), ticker)
		return nil
	})
}

var hundred = decimal.NewFromInt(100)

func parseTicker(record []byte, m market.Market) types.Ticker {
	t := types.Ticker{
		Symbol:     m.Symbol,
		High:       safeDecimal(record, "high_24h"),
		Low:        safeDecimal(record, "low_24h"),
		Open:       safeDecimal(record, "open_24h"),
		Last:       safeDecimal(record, "last_price"),
		BaseVolume: safeDecimal(record, "base_volume_24h"),
	}
	t.Close = t.Last
	if ts, ok := safeInteger(record, "s_t"); ok {
		t.Timestamp = ts * 1000
		t.Datetime = types.ISO8601(t.Timestamp)
	}
	if !t.Open.IsZero() && !t.Last.IsZero() {
		t.Change = t.Last.Sub(t.Open)
		t.Percentage = t.Change.Div(t.Open).Mul(hundred)
		t.Average = t.Last.Add(t.Open).Div(decimal.NewFromInt(2))
	}
	return t
}

func (c *Client) handleOHLCV(conn *stream.Connection, table string, raw []byte) error {
	_, name, _ := strings.Cut(table, "/")
	interval := strings.Replace(name, "kline", "", 1)
	timeframe, ok := c.timeframes[interval]
	if !ok {
		return fmt.Errorf("%w: unknown interval %q", exchange.ErrBadResponse, interval)
	}
	duration, ok := timeframeMillis(timeframe)
	if !ok {
		return fmt.Errorf("%w: unsupported timeframe %q", exchange.ErrBadResponse, timeframe)
	}

	return eachRecord(raw, func(record []byte) error {
		marketID := safeString(record, "symbol")
		m := c.safeMarket(marketID)
		bar, err := parseOHLCV(record)
		if err != nil {
			return err
		}
		bar.Timestamp = bar.Timestamp / duration * duration

		c.mu.Lock()
		bySymbol, ok := c.ohlcvs[m.Symbol]
		if !ok {
			bySymbol = make(map[string]*cache.ByTimestamp[types.OHLCV])
			c.ohlcvs[m.Symbol] = bySymbol
		}
		stored, ok := bySymbol[timeframe]
		if !ok {
			stored = cache.NewByTimestamp(c.cfg.Exchange.OHLCVLimit, func(b types.OHLCV) int64 { return b.Timestamp })
			bySymbol[timeframe] = stored
		}
		c.mu.Unlock()

		stored.Append(bar)
		conn.Resolve(InboundChannelKey(table, marketID), stored.Snapshot())
		return nil
	})
}

// parseOHLCV reads a [time_s, open, high, low, close, volume] candle
func parseOHLCV(record []byte) (types.OHLCV, error) {
	candle, err := arrayValues(record, "candle")
	if err != nil {
		return types.OHLCV{}, fmt.Errorf("%w: candle: %v", exchange.ErrBadResponse, err)
	}
	if len(candle) < 6 {
		return types.OHLCV{}, fmt.Errorf("%w: candle has %d fields", exchange.ErrBadResponse, len(candle))
	}
	ts, ok := parseInteger(candle[0])
	if !ok {
		return types.OHLCV{}, fmt.Errorf("%w: candle time %q", exchange.ErrBadResponse, candle[0])
	}
	values := make([]decimal.Decimal, 5)
	for i := range values {
		d, err := decimal.NewFromString(candle[i+1])
		if err != nil {
			return types.OHLCV{}, fmt.Errorf("%w: candle value %q", exchange.ErrBadResponse, candle[i+1])
		}
		values[i] = d
	}
	return types.OHLCV{
		Timestamp: ts * 1000,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

func (c *Client) handleOrderBook(conn *stream.Connection, table string, raw []byte) error {
	_, name, _ := strings.Cut(table, "/")
	depth := orderbook.DepthFromChannel(name, c.cfg.Exchange.OrderBookDepth)

	return eachRecord(raw, func(record []byte) error {
		marketID := safeString(record, "symbol")
		m := c.safeMarket(marketID)

		batch := orderbook.Batch{Symbol: m.Symbol}
		batch.Timestamp, _ = safeInteger(record, "ms_t")
		var err error
		if batch.Asks, err = parseLevels(record, "asks"); err != nil {
			return err
		}
		if batch.Bids, err = parseLevels(record, "bids"); err != nil {
			return err
		}

		snap := c.books.ApplyBatch(depth, batch)
		conn.Resolve(InboundChannelKey(table, marketID), snap)
		return nil
	})
}

// parseLevels reads [[price, amount, ...], ...]; a missing side is empty
func parseLevels(record []byte, side string) ([]types.PriceLevel, error) {
	if _, typ, _, err := jsonparser.Get(record, side); err != nil || typ != jsonparser.Array {
		return nil, nil
	}
	var levels []types.PriceLevel
	var parseErr error
	_, err := jsonparser.ArrayEach(record, func(v []byte, typ jsonparser.ValueType, _ int, _ error) {
		if parseErr != nil || typ != jsonparser.Array {
			return
		}
		pair, err := arrayValues(v)
		if err != nil || len(pair) < 2 {
			parseErr = fmt.Errorf("%w: %s level %s", exchange.ErrBadResponse, side, v)
			return
		}
		price, err1 := decimal.NewFromString(pair[0])
		amount, err2 := decimal.NewFromString(pair[1])
		if err1 != nil || err2 != nil {
			parseErr = fmt.Errorf("%w: %s level %s", exchange.ErrBadResponse, side, v)
			return
		}
		levels = append(levels, types.PriceLevel{Price: price, Amount: amount})
	}, side)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", exchange.ErrBadResponse, side, err)
	}
	return levels, parseErr
}

func (c *Client) handleOrders(conn *stream.Connection, table string, raw []byte) error {
	var marketIDs []string
	seen := make(map[string]bool)
	err := eachRecord(raw, func(record []byte) error {
		marketID := safeString(record, "symbol")
		order := parseOrder(record, c.safeMarket(marketID))
		c.orders.Append(order)
		if !seen[marketID] {
			seen[marketID] = true
			marketIDs = append(marketIDs, marketID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(marketIDs) == 0 {
		return nil
	}
	orders := c.orders.Snapshot()
	for _, id := range marketIDs {
		conn.Resolve(InboundChannelKey(table, id), orders)
	}
	return nil
}

func parseOrder(record []byte, m market.Market) types.Order {
	o := types.Order{
		ID:            safeString(record, "order_id"),
		ClientOrderID: safeString(record, "clientOid"),
		Symbol:        m.Symbol,
		Type:          safeString(record, "type"),
		Side:          safeStringLower(record, "side"),
		Price:         safeDecimal(record, "price"),
		Amount:        safeDecimal(record, "size"),
		Filled:        safeDecimal(record, "filled_size"),
	}
	state := safeString(record, "state")
	if status, ok := spotStatuses[state]; ok {
		o.Status = status
	} else {
		o.Status = state
	}
	o.LastTradeTimestamp, _ = safeInteger(record, "ms_t")
	if !o.Amount.IsZero() {
		o.Remaining = decimal.Max(o.Amount.Sub(o.Filled), decimal.Zero)
	}
	return o
}
