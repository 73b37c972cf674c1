package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitWaiting gives waiter goroutines time to park on the current generation
func waitWaiting() { time.Sleep(20 * time.Millisecond) }

func TestResolveWakesAllWaiters(t *testing.T) {
	t.Parallel()
	f := New()

	var wg sync.WaitGroup
	results := make(chan any, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.Await(context.Background())
			assert.NoError(t, err)
			results <- v
		}()
	}
	waitWaiting()
	require.True(t, f.Resolve("book"))
	wg.Wait()
	close(results)
	for v := range results {
		assert.Equal(t, "book", v)
	}
}

func TestResolveRepeatedly(t *testing.T) {
	t.Parallel()
	f := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		done := make(chan any)
		go func() {
			v, _ := f.Await(ctx)
			done <- v
		}()
		waitWaiting()
		f.Resolve(i)
		assert.Equal(t, i, <-done, "each await observes the next update")
	}
}

func TestRejectReleasesWaiters(t *testing.T) {
	t.Parallel()
	f := New()
	errBoom := errors.New("boom")

	done := make(chan error)
	go func() {
		_, err := f.Await(context.Background())
		done <- err
	}()
	waitWaiting()
	require.True(t, f.Reject(errBoom))
	assert.ErrorIs(t, <-done, errBoom)

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, errBoom, "later awaits fail immediately")
	assert.False(t, f.Resolve(1), "rejected futures cannot resolve")
	assert.False(t, f.Reject(errors.New("again")))
	assert.ErrorIs(t, f.Err(), errBoom)
}

func TestAwaitContextCancel(t *testing.T) {
	t.Parallel()
	f := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, f.Err(), "caller cancellation does not fail the future")
}

func TestOnceKeepsFirstOutcome(t *testing.T) {
	t.Parallel()
	f := NewOnce()
	require.True(t, f.Resolve("ok"))
	assert.False(t, f.Resolve("again"))
	assert.False(t, f.Reject(errors.New("late")))

	for i := 0; i < 2; i++ {
		v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ok", v, "settled value is returned without waiting")
	}
}

func TestOnceReject(t *testing.T) {
	t.Parallel()
	f := NewOnce()
	errDenied := errors.New("denied")
	require.True(t, f.Reject(errDenied))
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, errDenied)
}
