package bitmart

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"

	"marketsync/internal/exchange"
	"marketsync/internal/stream"
)

type routeKind int

const (
	routeNone routeKind = iota
	routeOrderBook
	routeTicker
	routeTrade
	routeOHLCV
	routeOrders
)

func (k routeKind) String() string {
	switch k {
	case routeOrderBook:
		return "orderbook"
	case routeTicker:
		return "ticker"
	case routeTrade:
		return "trade"
	case routeOHLCV:
		return "ohlcv"
	case routeOrders:
		return "orders"
	default:
		return "none"
	}
}

// classifyTable picks the handler for a data table such as spot/depth5,
// spot/kline1m or spot/user/order
func classifyTable(table string) routeKind {
	parts := strings.Split(table, "/")
	if len(parts) < 2 {
		return routeNone
	}
	name := parts[1]

	kind := routeNone
	switch name {
	case "depth", "depth5", "depth400":
		kind = routeOrderBook
	case "ticker":
		kind = routeTicker
	case "trade":
		kind = routeTrade
	}
	if strings.Contains(name, "kline") {
		kind = routeOHLCV
	}
	if len(parts) > 2 && parts[2] == "order" {
		kind = routeOrders
	}
	return kind
}

// HandleMessage routes one inbound frame received on conn. It reports
// whether a handler consumed the frame; unknown events and tables pass
// through unhandled. A returned error concerns this frame only.
func (c *Client) HandleMessage(conn *stream.Connection, raw []byte) (bool, error) {
	if !json.Valid(raw) {
		return false, fmt.Errorf("%w: malformed frame %q", exchange.ErrBadResponse, truncate(raw))
	}
	if !c.handleErrorMessage(conn, raw) {
		return true, nil
	}

	table, err := jsonparser.GetString(raw, "table")
	if err != nil {
		return c.handleEvent(conn, raw), nil
	}

	kind := classifyTable(table)
	switch kind {
	case routeOrderBook:
		err = c.handleOrderBook(conn, table, raw)
	case routeTicker:
		err = c.handleTicker(conn, table, raw)
	case routeTrade:
		err = c.handleTrade(conn, table, raw)
	case routeOHLCV:
		err = c.handleOHLCV(conn, table, raw)
	case routeOrders:
		err = c.handleOrders(conn, table, raw)
	default:
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("%s %s: %w", kind, table, err)
	}
	return true, nil
}

func (c *Client) handleEvent(conn *stream.Connection, raw []byte) bool {
	event, err := jsonparser.GetString(raw, "event")
	if err != nil {
		return false
	}
	switch event {
	case "login":
		c.handleAuthenticate(conn, raw)
		return true
	case "subscribe":
		c.entry.WithField("channel", safeString(raw, "channel")).Debug("subscribed")
		return true
	default:
		return false
	}
}

// handleErrorMessage classifies an error frame. It returns false when the
// frame was an authentication failure and must not be routed further.
func (c *Client) handleErrorMessage(conn *stream.Connection, raw []byte) bool {
	code, ok := safeValue(raw, "errorCode")
	if !ok {
		return true
	}
	message := safeString(raw, "message")
	ferr := classify(code, message, raw)

	if errors.Is(ferr, exchange.ErrAuthentication) {
		c.rejectAuthentication(conn, ferr)
		return false
	}

	// A rejected subscribe echoes the channel key in its message
	matched := 0
	for _, hash := range conn.MessageHashes() {
		if hash == authHash || !mentionsKey(message, hash) {
			continue
		}
		conn.Reject(hash, ferr)
		conn.Unsubscribe(hash)
		matched++
	}
	if matched == 0 {
		c.entry.WithError(ferr).WithField("code", code).Warn("unclaimed error frame")
		if c.onError != nil {
			c.onError(ferr)
		}
	}
	return true
}

// mentionsKey reports whether message names key as a whole channel key, so
// spot/ticker:BTC_USD does not match a message about spot/ticker:BTC_USDT
func mentionsKey(message, key string) bool {
	if key == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(message[from:], key)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(key)
		if (start == 0 || !isKeyByte(message[start-1])) && (end == len(message) || !isKeyByte(message[end])) {
			return true
		}
		from = start + 1
	}
}

func isKeyByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return b == '_' || b == '-' || b == '/' || b == ':' || b == '.'
}

func truncate(raw []byte) string {
	const limit = 128
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
