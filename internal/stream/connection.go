// Package stream tracks the logical subscriptions multiplexed over one
// exchange connection: which subscribe frames were sent and which futures
// are waiting for updates on each channel key.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"marketsync/internal/exchange"
	"marketsync/internal/future"
	"marketsync/internal/logger"
)

// Connection is the subscription state of one exchange connection
type Connection struct {
	ID  string
	URL string

	conn    exchange.Conn
	limiter *rate.Limiter
	log     *logger.Entry

	mu            sync.Mutex
	futures       map[string]*future.Future
	subscriptions map[string]struct{}
	closed        error
}

// New wraps conn. limiter may be nil for unlimited sends.
func New(url string, conn exchange.Conn, limiter *rate.Limiter, log *logger.Log) *Connection {
	id := uuid.New().String()
	return &Connection{
		ID:            id,
		URL:           url,
		conn:          conn,
		limiter:       limiter,
		log:           log.WithComponent("stream").WithFields(logger.Fields{"conn": id, "url": url}),
		futures:       make(map[string]*future.Future),
		subscriptions: make(map[string]struct{}),
	}
}

// Watch returns the future for messageHash and sends request unless
// subscribeHash is already registered on this connection.
func (c *Connection) Watch(ctx context.Context, messageHash string, request any, subscribeHash string) (*future.Future, error) {
	return c.watch(ctx, messageHash, request, subscribeHash, future.New)
}

// WatchOnce is Watch for a one-shot future such as a login acknowledgement
func (c *Connection) WatchOnce(ctx context.Context, messageHash string, request any, subscribeHash string) (*future.Future, error) {
	return c.watch(ctx, messageHash, request, subscribeHash, future.NewOnce)
}

func (c *Connection) watch(ctx context.Context, messageHash string, request any, subscribeHash string, create func() *future.Future) (*future.Future, error) {
	c.mu.Lock()
	if c.closed != nil {
		err := c.closed
		c.mu.Unlock()
		return nil, err
	}
	f, existing := c.futures[messageHash]
	if !existing {
		f = create()
		c.futures[messageHash] = f
	}
	if _, subscribed := c.subscriptions[subscribeHash]; subscribed {
		c.mu.Unlock()
		return f, nil
	}
	c.subscriptions[subscribeHash] = struct{}{}
	c.mu.Unlock()

	if err := c.Send(ctx, request); err != nil {
		c.abandon(messageHash, subscribeHash, f, !existing, err)
		return nil, err
	}
	c.log.WithField("subscribe", subscribeHash).Debug("request sent")
	return f, nil
}

// abandon undoes a watch whose request never went out. Callers that joined
// while the send was in flight hold f, so a future created here is rejected
// with err rather than left waiting on a channel nobody subscribed to.
func (c *Connection) abandon(messageHash, subscribeHash string, f *future.Future, created bool, err error) {
	c.mu.Lock()
	delete(c.subscriptions, subscribeHash)
	if created && c.futures[messageHash] == f {
		delete(c.futures, messageHash)
	}
	c.mu.Unlock()
	if created {
		f.Reject(err)
	}
}

// Send marshals request and writes it, honouring the send rate limit
func (c *Connection) Send(ctx context.Context, request any) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := c.conn.Send(ctx, payload); err != nil {
		return fmt.Errorf("%w: %v", exchange.ErrConnectionUnavailable, err)
	}
	return nil
}

// Resolve wakes the waiters on messageHash. It reports whether anyone was
// registered for it.
func (c *Connection) Resolve(messageHash string, v any) bool {
	c.mu.Lock()
	f, ok := c.futures[messageHash]
	c.mu.Unlock()
	if !ok {
		return false
	}
	f.Resolve(v)
	return true
}

// Reject fails the future for messageHash and forgets it, so the next Watch
// creates a fresh one.
func (c *Connection) Reject(messageHash string, err error) bool {
	c.mu.Lock()
	f, ok := c.futures[messageHash]
	delete(c.futures, messageHash)
	c.mu.Unlock()
	if !ok {
		return false
	}
	f.Reject(err)
	return true
}

// Subscribed reports whether subscribeHash is registered
func (c *Connection) Subscribed(subscribeHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[subscribeHash]
	return ok
}

// Unsubscribe forgets subscribeHash so the next Watch sends again
func (c *Connection) Unsubscribe(subscribeHash string) {
	c.mu.Lock()
	delete(c.subscriptions, subscribeHash)
	c.mu.Unlock()
}

// MessageHashes returns the keys of every pending future, sorted
func (c *Connection) MessageHashes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.futures))
	for k := range c.futures {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Teardown rejects every pending future and refuses further watches
func (c *Connection) Teardown(cause error) {
	err := exchange.ErrConnectionClosed
	if cause != nil {
		err = fmt.Errorf("%w: %v", exchange.ErrConnectionClosed, cause)
	}

	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return
	}
	c.closed = err
	futures := c.futures
	c.futures = make(map[string]*future.Future)
	c.subscriptions = make(map[string]struct{})
	c.mu.Unlock()

	for _, f := range futures {
		f.Reject(err)
	}
	c.log.WithError(err).WithField("pending", len(futures)).Info("connection torn down")
}

// Closed returns the teardown error, nil while the connection is usable
func (c *Connection) Closed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the underlying connection and tears the state down
func (c *Connection) Close() error {
	err := c.conn.Close()
	c.Teardown(nil)
	return err
}

func (c *Connection) Health() exchange.HealthStatus {
	return c.conn.Health()
}
