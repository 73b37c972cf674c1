// Package transport dials the exchange websocket endpoints. It owns the
// socket: the read loop, keepalive pings, inflating compressed frames and
// serializing writes.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/flate"

	"marketsync/internal/config"
	"marketsync/internal/exchange"
	"marketsync/internal/logger"
)

const (
	defaultKeepAlive = 15 * time.Second
	writeTimeout     = 10 * time.Second
)

var errClosed = errors.New("websocket closed")

// Dialer implements exchange.Dialer over gorilla/websocket
type Dialer struct {
	cfg config.StreamConfig
	log *logger.Log
}

// NewDialer creates a dialer using the stream settings
func NewDialer(cfg config.StreamConfig, log *logger.Log) *Dialer {
	return &Dialer{cfg: cfg, log: log}
}

// Dial connects to url and starts the read and keepalive loops
func (d *Dialer) Dial(ctx context.Context, url string, onMessage func([]byte), onClose func(error)) (exchange.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}

	keepAlive := d.cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	c := &Conn{
		ws:        ws,
		inflate:   d.cfg.Inflate,
		keepAlive: keepAlive,
		onMessage: onMessage,
		onClose:   onClose,
		done:      make(chan struct{}),
		log:       d.log.WithComponent("transport").WithField("url", url),
	}
	c.health.Store(exchange.HealthStatus{})
	c.updateConnectionStatus(true)
	ws.SetPongHandler(func(string) error {
		c.updateLastPing()
		return nil
	})
	c.log.Info("websocket connected")

	go c.readMessages()
	go c.pingLoop()
	return c, nil
}

// Conn is one websocket connection
type Conn struct {
	ws        *websocket.Conn
	inflate   bool
	keepAlive time.Duration
	onMessage func([]byte)
	onClose   func(error)
	log       *logger.Entry

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool
	health    atomic.Value // stores exchange.HealthStatus
}

// Send writes payload as one text frame
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.incrementErrorCount()
		return err
	}
	return nil
}

// Close sends a close frame and tears the connection down
func (c *Conn) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	err := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	if err != nil {
		c.log.WithError(err).Debug("error sending close message")
	}
	c.finish(nil)
	return nil
}

// Health returns connection health information
func (c *Conn) Health() exchange.HealthStatus {
	if status, ok := c.health.Load().(exchange.HealthStatus); ok {
		return status
	}
	return exchange.HealthStatus{}
}

func (c *Conn) finish(cause error) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.updateConnectionStatus(false)
		_ = c.ws.Close()
		if c.onClose != nil {
			c.onClose(cause)
		}
	})
}

// readMessages delivers every frame to onMessage until the socket fails
func (c *Conn) readMessages() {
	for {
		kind, payload, err := c.ws.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				c.finish(nil)
				return
			}
			c.incrementErrorCount()
			c.log.WithError(err).Warn("websocket read error")
			c.finish(err)
			return
		}
		c.incrementMessageCount()
		c.updateLastPing()

		if kind == websocket.BinaryMessage && c.inflate {
			if payload, err = Inflate(payload); err != nil {
				c.incrementErrorCount()
				c.log.WithError(err).Warn("failed to inflate frame")
				continue
			}
		}
		if bytes.Equal(payload, []byte("pong")) {
			continue
		}
		c.onMessage(payload)
	}
}

// pingLoop keeps the connection alive until it closes
func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.log.WithError(err).Warn("failed to send websocket ping")
				c.finish(err)
				return
			}
		}
	}
}

// Inflate decompresses a raw deflate frame
func Inflate(payload []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}

func (c *Conn) updateConnectionStatus(connected bool) {
	status := c.Health()
	status.Connected = connected
	if !connected {
		now := time.Now()
		status.ReconnectTime = &now
	}
	c.health.Store(status)
}

func (c *Conn) incrementMessageCount() {
	status := c.Health()
	status.MessageCount++
	c.health.Store(status)
}

func (c *Conn) incrementErrorCount() {
	status := c.Health()
	status.ErrorCount++
	c.health.Store(status)
}

func (c *Conn) updateLastPing() {
	status := c.Health()
	status.LastPing = time.Now()
	c.health.Store(status)
}
