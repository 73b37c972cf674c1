// Package cache provides the bounded rolling containers that hold trades,
// candles and orders between updates. Every cache evicts its oldest entry
// once capacity is exceeded and hands out copies, never its own storage.
package cache

import (
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/emirpasic/gods/queues/circularbuffer"
)

// DefaultCapacity is used when a non-positive capacity is requested
const DefaultCapacity = 1000

func capacityOrDefault(capacity int) int {
	if capacity <= 0 {
		return DefaultCapacity
	}
	return capacity
}

// Array is an append-only ring buffer
type Array[T any] struct {
	mu       sync.RWMutex
	capacity int
	buf      *circularbuffer.Queue
}

// NewArray returns an empty ring buffer holding at most capacity entries
func NewArray[T any](capacity int) *Array[T] {
	capacity = capacityOrDefault(capacity)
	return &Array[T]{capacity: capacity, buf: circularbuffer.New(capacity)}
}

// Append adds v as the newest entry, evicting the oldest when full
func (a *Array[T]) Append(v T) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buf.Full() {
		a.buf.Dequeue()
	}
	a.buf.Enqueue(v)
}

func (a *Array[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.buf.Size()
}

func (a *Array[T]) Cap() int { return a.capacity }

// Snapshot returns the entries oldest first
func (a *Array[T]) Snapshot() []T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return convert[T](a.buf.Values())
}

// BySymbolByID is a ring buffer deduplicated on (symbol, id). A record whose
// key is already stored replaces the old record and becomes the newest entry.
type BySymbolByID[T any] struct {
	mu       sync.RWMutex
	capacity int
	key      func(T) (symbol, id string)
	entries  *linkedhashmap.Map
}

type symbolID struct {
	symbol string
	id     string
}

// NewBySymbolByID returns an empty cache; key extracts (symbol, id) from a record
func NewBySymbolByID[T any](capacity int, key func(T) (symbol, id string)) *BySymbolByID[T] {
	return &BySymbolByID[T]{
		capacity: capacityOrDefault(capacity),
		key:      key,
		entries:  linkedhashmap.New(),
	}
}

// Append stores v, replacing any record with the same (symbol, id)
func (c *BySymbolByID[T]) Append(v T) {
	symbol, id := c.key(v)
	k := symbolID{symbol: symbol, id: id}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.entries.Get(k); found {
		c.entries.Remove(k)
	} else if c.entries.Size() >= c.capacity {
		evictOldest(c.entries)
	}
	c.entries.Put(k, v)
}

func (c *BySymbolByID[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries.Size()
}

func (c *BySymbolByID[T]) Cap() int { return c.capacity }

// Snapshot returns every record oldest first
func (c *BySymbolByID[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return convert[T](c.entries.Values())
}

// BySymbol returns the records for one symbol oldest first
func (c *BySymbolByID[T]) BySymbol(symbol string) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0)
	it := c.entries.Iterator()
	for it.Next() {
		if it.Key().(symbolID).symbol == symbol {
			out = append(out, it.Value().(T))
		}
	}
	return out
}

// Get looks a record up by (symbol, id)
func (c *BySymbolByID[T]) Get(symbol, id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, found := c.entries.Get(symbolID{symbol: symbol, id: id})
	if !found {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// ByTimestamp is a ring buffer keyed by timestamp. Appending a record whose
// timestamp is already stored replaces that record in place.
type ByTimestamp[T any] struct {
	mu        sync.RWMutex
	capacity  int
	timestamp func(T) int64
	entries   *linkedhashmap.Map
}

// NewByTimestamp returns an empty cache; timestamp extracts the record key
func NewByTimestamp[T any](capacity int, timestamp func(T) int64) *ByTimestamp[T] {
	return &ByTimestamp[T]{
		capacity:  capacityOrDefault(capacity),
		timestamp: timestamp,
		entries:   linkedhashmap.New(),
	}
}

// Append stores v
func (c *ByTimestamp[T]) Append(v T) {
	ts := c.timestamp(v)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.entries.Get(ts); !found && c.entries.Size() >= c.capacity {
		evictOldest(c.entries)
	}
	// Put keeps the original position for an existing key
	c.entries.Put(ts, v)
}

func (c *ByTimestamp[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries.Size()
}

func (c *ByTimestamp[T]) Cap() int { return c.capacity }

// Snapshot returns every record oldest first
func (c *ByTimestamp[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return convert[T](c.entries.Values())
}

// Last returns the newest record
func (c *ByTimestamp[T]) Last() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it := c.entries.Iterator()
	if !it.Last() {
		var zero T
		return zero, false
	}
	return it.Value().(T), true
}

func evictOldest(m *linkedhashmap.Map) {
	it := m.Iterator()
	if it.First() {
		m.Remove(it.Key())
	}
}

func convert[T any](values []interface{}) []T {
	out := make([]T, len(values))
	for i, v := range values {
		out[i] = v.(T)
	}
	return out
}

// Newest returns the last n entries of values (all of them when n <= 0)
func Newest[T any](values []T, n int) []T {
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}
