package orderbook

import (
	"sort"
	"sync"

	"marketsync/internal/types"
)

// Books holds one OrderBook per symbol
type Books struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBooks returns an empty registry
func NewBooks() *Books {
	return &Books{books: make(map[string]*OrderBook)}
}

// ApplyBatch applies batch to the book for batch.Symbol, creating it with
// the given depth limit on first sight.
func (bs *Books) ApplyBatch(depth int, batch Batch) Snapshot {
	bs.mu.Lock()
	ob, ok := bs.books[batch.Symbol]
	if !ok {
		ob = New(batch.Symbol, depth)
		bs.books[batch.Symbol] = ob
	}
	bs.mu.Unlock()
	return ob.ApplyBatch(batch)
}

// Get returns the book for symbol
func (bs *Books) Get(symbol string) (*OrderBook, bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	ob, ok := bs.books[symbol]
	return ob, ok
}

// Snapshot returns a copy of the book for symbol
func (bs *Books) Snapshot(symbol string) (Snapshot, bool) {
	ob, ok := bs.Get(symbol)
	if !ok {
		return Snapshot{}, false
	}
	return ob.Snapshot(), true
}

// Stats returns the statistics of the book for symbol
func (bs *Books) Stats(symbol string) (types.Stats, bool) {
	ob, ok := bs.Get(symbol)
	if !ok {
		return types.Stats{}, false
	}
	return ob.GetStats(), true
}

// Symbols returns every symbol with a book, sorted
func (bs *Books) Symbols() []string {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	out := make([]string, 0, len(bs.books))
	for s := range bs.books {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
