package exchange

import (
	"context"
	"time"
)

// ExchangeName represents supported exchange identifiers
type ExchangeName string

const (
	Bitmart ExchangeName = "bitmart"
)

// Conn is a live connection to one endpoint of the exchange
type Conn interface {
	// Send writes one text frame
	Send(ctx context.Context, payload []byte) error

	// Close closes the connection gracefully
	Close() error

	// Health returns connection health information
	Health() HealthStatus
}

// Dialer opens connections. Inbound frames are delivered to onMessage from a
// single goroutine per connection; onClose fires exactly once when the
// connection ends, with the cause (nil on a local Close).
type Dialer interface {
	Dial(ctx context.Context, url string, onMessage func([]byte), onClose func(error)) (Conn, error)
}

// HealthStatus represents connection health information
type HealthStatus struct {
	Connected     bool
	LastPing      time.Time
	MessageCount  int64
	ErrorCount    int64
	ReconnectTime *time.Time
}
