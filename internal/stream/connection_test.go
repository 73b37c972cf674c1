package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"marketsync/internal/exchange"
	"marketsync/internal/exchange/exchangetest"
	"marketsync/internal/logger"
)

type subscribeRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

func newConnection(t *testing.T) (*Connection, *exchangetest.Conn) {
	t.Helper()
	fake := &exchangetest.Conn{URL: "wss://example"}
	return New(fake.URL, fake, rate.NewLimiter(rate.Inf, 1), logger.Discard()), fake
}

func TestWatchSendsOnce(t *testing.T) {
	t.Parallel()
	c, fake := newConnection(t)
	ctx := context.Background()
	req := subscribeRequest{Op: "subscribe", Args: []string{"spot/trade:BTC_USDT"}}

	f1, err := c.Watch(ctx, "spot/trade:BTC_USDT", req, "spot/trade:BTC_USDT")
	require.NoError(t, err)
	f2, err := c.Watch(ctx, "spot/trade:BTC_USDT", req, "spot/trade:BTC_USDT")
	require.NoError(t, err)

	assert.Same(t, f1, f2, "second watch must return the existing handle")
	assert.Len(t, fake.Sent(), 1, "duplicate subscribe frame must not be sent")
	assert.JSONEq(t, `{"op":"subscribe","args":["spot/trade:BTC_USDT"]}`, string(fake.Sent()[0]))
	assert.True(t, c.Subscribed("spot/trade:BTC_USDT"))
}

func TestWatchConcurrentSendsOnce(t *testing.T) {
	t.Parallel()
	c, fake := newConnection(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.WatchOnce(context.Background(), "authenticated", subscribeRequest{Op: "login"}, "login")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"login"}, fake.SentOps())
}

func TestWatchSendFailure(t *testing.T) {
	t.Parallel()
	c, fake := newConnection(t)
	fake.FailSends(errors.New("broken pipe"))

	_, err := c.Watch(context.Background(), "k", subscribeRequest{Op: "subscribe"}, "k")
	require.ErrorIs(t, err, exchange.ErrConnectionUnavailable)
	assert.False(t, c.Subscribed("k"), "failed send must not leave the key registered")
	assert.Empty(t, c.MessageHashes(), "failed send must not leave a pending future")
}

func TestWatchSendFailureReleasesJoinedCallers(t *testing.T) {
	t.Parallel()
	fake := &exchangetest.Conn{URL: "wss://example"}
	c := New(fake.URL, fake, rate.NewLimiter(rate.Every(time.Hour), 1), logger.Discard())

	// spend the only token so the next send blocks in the limiter
	_, err := c.Watch(context.Background(), "warm", subscribeRequest{Op: "subscribe"}, "warm")
	require.NoError(t, err)

	sendCtx, cancelSend := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.WatchOnce(sendCtx, "authenticated", subscribeRequest{Op: "login"}, "login")
		first <- err
	}()
	require.Eventually(t, func() bool { return c.Subscribed("login") }, time.Second, time.Millisecond)

	joined, err := c.WatchOnce(context.Background(), "authenticated", subscribeRequest{Op: "login"}, "login")
	require.NoError(t, err)

	cancelSend()
	assert.ErrorIs(t, <-first, context.Canceled)

	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = joined.Await(waitCtx)
	assert.ErrorIs(t, err, context.Canceled, "joined caller must be released with the send error")
	assert.False(t, c.Subscribed("login"))
	assert.Equal(t, []string{"warm"}, c.MessageHashes())
	assert.Len(t, fake.Sent(), 1)
}

func TestResolveAndReject(t *testing.T) {
	t.Parallel()
	c, _ := newConnection(t)
	ctx := context.Background()
	assert.False(t, c.Resolve("missing", 1))

	f, err := c.Watch(ctx, "k", subscribeRequest{}, "k")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.Await(ctx)
		done <- err
	}()
	errDenied := errors.New("denied")
	require.True(t, c.Reject("k", errDenied))
	assert.ErrorIs(t, <-done, errDenied)
	assert.Empty(t, c.MessageHashes(), "rejected futures are forgotten")

	c.Unsubscribe("k")
	f2, err := c.Watch(ctx, "k", subscribeRequest{}, "k")
	require.NoError(t, err)
	assert.NotSame(t, f, f2)
	assert.NoError(t, f2.Err())
}

func TestTeardownReleasesWaiters(t *testing.T) {
	t.Parallel()
	c, fake := newConnection(t)
	ctx := context.Background()
	f, err := c.Watch(ctx, "a", subscribeRequest{}, "a")
	require.NoError(t, err)

	c.Teardown(errors.New("eof"))
	_, err = f.Await(ctx)
	assert.ErrorIs(t, err, exchange.ErrConnectionClosed)
	assert.ErrorIs(t, c.Closed(), exchange.ErrConnectionClosed)

	_, err = c.Watch(ctx, "b", subscribeRequest{}, "b")
	assert.ErrorIs(t, err, exchange.ErrConnectionClosed)
	assert.Len(t, fake.Sent(), 1)

	require.NoError(t, c.Close())
	assert.False(t, c.Health().Connected)
}
