package bitmart

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketsync/internal/config"
	"marketsync/internal/exchange/exchangetest"
	"marketsync/internal/logger"
	"marketsync/internal/market"
)

var testMarkets = []market.Market{
	{ID: "BTC_USDT", Symbol: "BTC/USDT", Type: market.Spot},
	{ID: "ETH_USDT", Symbol: "ETH/USDT", Type: market.Spot},
	{ID: "BTC_USD", Symbol: "BTC/USD", Type: market.Spot},
	{ID: "BTCUSDT", Symbol: "BTC/USDT:USDT", Type: market.Swap},
}

type fixture struct {
	client *Client
	dialer *exchangetest.Dialer
	cfg    config.Config
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Credentials = config.Credentials{APIKey: "key", Secret: "secret", UID: "memo"}
	cfg.Stream.SendRate = 0
	d := &exchangetest.Dialer{}
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	c := New(cfg, market.NewStatic(testMarkets), d, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return &fixture{client: c, dialer: d, cfg: cfg}
}

func (f *fixture) public() *exchangetest.Conn {
	return f.dialer.Conn(f.cfg.PublicURL())
}

func (f *fixture) private() *exchangetest.Conn {
	return f.dialer.Conn(f.cfg.PrivateURL())
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

type sentFrame struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

func sentFrames(t *testing.T, c *exchangetest.Conn) []sentFrame {
	t.Helper()
	var out []sentFrame
	for _, raw := range c.Sent() {
		var f sentFrame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	return out
}

// nextAfter waits on h while repeatedly calling deliver until the handle
// resolves, so the waiter never misses the update it is waiting for
func nextAfter[T any](t *testing.T, h *Handle[T], deliver func()) (T, error) {
	t.Helper()
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	ctx := testContext(t)
	go func() {
		v, err := h.Next(ctx)
		ch <- result{v, err}
	}()

	var got result
	require.Eventually(t, func() bool {
		deliver()
		select {
		case got = <-ch:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	return got.v, got.err
}
