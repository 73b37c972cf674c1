package bitmart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsync/internal/config"
	"marketsync/internal/exchange"
	"marketsync/internal/exchange/exchangetest"
	"marketsync/internal/logger"
	"marketsync/internal/market"
	"marketsync/internal/types"
)

const (
	loginOK     = `{"event":"login","success":true}`
	loginFailed = `{"event":"login","success":false}`
	invalidSign = `{"event":"error","message":"Invalid sign","errorCode":30013}`
)

var fixedClock = func() time.Time { return time.UnixMilli(1700000000000) }

func TestSign(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"f3dbfbd287b45f62b5798801835bf13d837261872ac28254c2ddb0f1a48d66ba",
		Sign("secret", "1700000000000#memo#bitmart.WebSocket"))
}

// authenticateAsync runs n Authenticate calls and waits until the private
// connection has sent the given number of frames
func authenticateAsync(t *testing.T, f *fixture, n, frames int) <-chan error {
	t.Helper()
	ctx := testContext(t)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() { errs <- f.client.Authenticate(ctx) }()
	}
	require.Eventually(t, func() bool {
		conn := f.private()
		return conn != nil && len(conn.Sent()) == frames
	}, time.Second, 5*time.Millisecond)
	// let every caller park on the login future
	time.Sleep(20 * time.Millisecond)
	return errs
}

func TestAuthenticateSendsSignedLogin(t *testing.T) {
	t.Parallel()
	f := newFixture(t, WithClock(fixedClock))

	errs := authenticateAsync(t, f, 1, 1)
	f.private().Deliver(loginOK)
	require.NoError(t, <-errs)

	frames := sentFrames(t, f.private())
	require.Len(t, frames, 1)
	assert.Equal(t, sentFrame{
		Op: "login",
		Args: []string{
			"key",
			"1700000000000",
			"f3dbfbd287b45f62b5798801835bf13d837261872ac28254c2ddb0f1a48d66ba",
		},
	}, frames[0])
	assert.Nil(t, f.public(), "login never touches the public endpoint")
}

func TestAuthenticateConcurrentSendsOneLogin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	errs := authenticateAsync(t, f, 2, 1)
	f.private().Deliver(loginOK)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assert.Equal(t, []string{"login"}, f.private().SentOps())

	// once authenticated, later calls return without another login
	require.NoError(t, f.client.Authenticate(testContext(t)))
	assert.Equal(t, []string{"login"}, f.private().SentOps())
}

func TestAuthenticateErrorFrameRejectsAndAllowsRetry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	errs := authenticateAsync(t, f, 2, 1)
	f.private().Deliver(invalidSign)
	for i := 0; i < 2; i++ {
		err := <-errs
		require.ErrorIs(t, err, exchange.ErrAuthentication)
		var ferr *exchange.FrameError
		require.True(t, errors.As(err, &ferr))
		assert.Equal(t, "30013", ferr.Code)
	}

	errs = authenticateAsync(t, f, 1, 2)
	assert.Equal(t, []string{"login", "login"}, f.private().SentOps())
	f.private().Deliver(loginOK)
	require.NoError(t, <-errs)
}

func TestAuthenticateLoginFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	errs := authenticateAsync(t, f, 1, 1)
	f.private().Deliver(loginFailed)
	require.ErrorIs(t, <-errs, exchange.ErrAuthentication)

	errs = authenticateAsync(t, f, 1, 2)
	f.private().Deliver(loginOK)
	require.NoError(t, <-errs)
	assert.Equal(t, []string{"login", "login"}, f.private().SentOps())
}

func TestAuthenticateRequiresCredentials(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Credentials = config.Credentials{APIKey: "key"}
	d := &exchangetest.Dialer{}
	c := New(cfg, market.NewStatic(testMarkets), d, WithLogger(logger.Discard()))

	err := c.Authenticate(context.Background())
	assert.ErrorIs(t, err, exchange.ErrAuthentication)
	assert.Equal(t, 0, d.Dials)
}

func TestAuthenticateContextCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		err = f.client.Authenticate(ctx)
	}()
	require.Eventually(t, func() bool {
		conn := f.private()
		return conn != nil && len(conn.Sent()) > 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscribeOrdersAuthenticatesFirst(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := testContext(t)

	type result struct {
		h   *Handle[[]types.Order]
		err error
	}
	done := make(chan result, 1)
	go func() {
		h, err := f.client.SubscribeOrders(ctx, "BTC/USDT", 0, 0, nil)
		done <- result{h, err}
	}()
	require.Eventually(t, func() bool {
		conn := f.private()
		return conn != nil && len(conn.Sent()) > 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"login"}, f.private().SentOps(), "subscribe waits for the login")

	f.private().Deliver(loginOK)
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "spot/user/order:BTC_USDT", r.h.MessageHash)

	frames := sentFrames(t, f.private())
	require.Len(t, frames, 2)
	assert.Equal(t, sentFrame{Op: "subscribe", Args: []string{"spot/user/order:BTC_USDT"}}, frames[1])
}

func TestSubscribeOrdersAuthFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := testContext(t)

	done := make(chan error, 1)
	go func() {
		_, err := f.client.SubscribeOrders(ctx, "BTC/USDT", 0, 0, nil)
		done <- err
	}()
	require.Eventually(t, func() bool {
		conn := f.private()
		return conn != nil && len(conn.Sent()) > 0
	}, time.Second, 5*time.Millisecond)

	f.private().Deliver(invalidSign)
	require.ErrorIs(t, <-done, exchange.ErrAuthentication)
	assert.Equal(t, []string{"login"}, f.private().SentOps())
}

func TestSubscribeOrdersArguments(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := testContext(t)

	_, err := f.client.SubscribeOrders(ctx, "", 0, 0, nil)
	assert.ErrorIs(t, err, exchange.ErrArgumentsRequired)

	_, err = f.client.SubscribeOrders(ctx, "BTC/USDT:USDT", 0, 0, nil)
	assert.ErrorIs(t, err, exchange.ErrArgumentsRequired)
	assert.ErrorContains(t, err, "spot markets only")

	_, err = f.client.SubscribeOrders(ctx, "NOPE/USDT", 0, 0, nil)
	assert.ErrorIs(t, err, exchange.ErrMarketNotFound)

	assert.Equal(t, 0, f.dialer.Dials)
}
