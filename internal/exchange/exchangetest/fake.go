// Package exchangetest provides in-memory connections for tests.
package exchangetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"marketsync/internal/exchange"
)

var errClosed = errors.New("fake connection closed")

// Conn records every frame sent through it
type Conn struct {
	URL string

	mu        sync.Mutex
	sent      [][]byte
	sendErr   error
	closed    bool
	onMessage func([]byte)
	onClose   func(error)
}

// Send records payload
func (c *Conn) Send(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), payload...))
	return nil
}

// Close marks the connection closed and fires onClose with a nil cause
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	onClose := c.onClose
	c.mu.Unlock()
	if onClose != nil {
		onClose(nil)
	}
	return nil
}

func (c *Conn) Health() exchange.HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return exchange.HealthStatus{Connected: !c.closed, MessageCount: int64(len(c.sent))}
}

// FailSends makes every later Send return err
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// Sent returns copies of the frames sent so far
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentOps decodes the "op" field of every sent frame
func (c *Conn) SentOps() []string {
	var ops []string
	for _, raw := range c.Sent() {
		var req struct {
			Op string `json:"op"`
		}
		_ = json.Unmarshal(raw, &req)
		ops = append(ops, req.Op)
	}
	return ops
}

// Deliver feeds an inbound frame as the transport read loop would
func (c *Conn) Deliver(raw string) {
	c.mu.Lock()
	onMessage := c.onMessage
	c.mu.Unlock()
	if onMessage != nil {
		onMessage([]byte(raw))
	}
}

// Drop simulates the remote side closing the connection
func (c *Conn) Drop(cause error) {
	c.mu.Lock()
	c.closed = true
	onClose := c.onClose
	c.mu.Unlock()
	if onClose != nil {
		onClose(cause)
	}
}

// Dialer hands out one Conn per url
type Dialer struct {
	mu    sync.Mutex
	conns map[string]*Conn
	Err   error
	Dials int
}

// Dial implements exchange.Dialer
func (d *Dialer) Dial(_ context.Context, url string, onMessage func([]byte), onClose func(error)) (exchange.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Dials++
	if d.Err != nil {
		return nil, d.Err
	}
	if d.conns == nil {
		d.conns = make(map[string]*Conn)
	}
	c := &Conn{URL: url, onMessage: onMessage, onClose: onClose}
	d.conns[url] = c
	return c, nil
}

// Conn returns the latest connection dialed for url
func (d *Dialer) Conn(url string) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[url]
}
