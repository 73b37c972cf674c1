// Package future implements the handle callers wait on for stream updates.
//
// A Future is resolved many times: every Resolve wakes all callers currently
// waiting with the same value and starts a new round. Reject ends the future;
// all current and later waiters get the error. A Future made by NewOnce
// settles on its first Resolve or Reject and keeps that outcome.
package future

import (
	"context"
	"sync"
)

type generation struct {
	done  chan struct{}
	value any
	err   error
}

func newGeneration() *generation {
	return &generation{done: make(chan struct{})}
}

// Future is safe for concurrent use
type Future struct {
	mu      sync.Mutex
	cur     *generation
	err     error
	once    bool
	settled bool
}

// New returns an unresolved Future
func New() *Future {
	return &Future{cur: newGeneration()}
}

// NewOnce returns a Future that resolves or rejects exactly once
func NewOnce() *Future {
	return &Future{cur: newGeneration(), once: true}
}

// Resolve wakes every waiter with v. It returns false if the future was
// already rejected.
func (f *Future) Resolve(v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil || f.settled {
		return false
	}
	g := f.cur
	g.value = v
	if f.once {
		f.settled = true
	} else {
		f.cur = newGeneration()
	}
	close(g.done)
	return true
}

// Reject wakes every waiter with err and makes the future permanently failed.
// It returns false if the future was already rejected or has settled.
func (f *Future) Reject(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil || f.settled {
		return false
	}
	f.err = err
	f.cur.err = err
	close(f.cur.done)
	return true
}

// Err returns the rejection error, if any
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Await blocks until the next Resolve or Reject, or until ctx ends
func (f *Future) Await(ctx context.Context) (any, error) {
	f.mu.Lock()
	g := f.cur
	f.mu.Unlock()

	select {
	case <-g.done:
		return g.value, g.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
