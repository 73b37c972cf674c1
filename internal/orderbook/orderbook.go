package orderbook

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"

	"marketsync/internal/types"
)

// Batch is one self-contained order book update for a symbol
type Batch struct {
	Symbol    string
	Timestamp int64 // server time in ms
	Bids      []types.PriceLevel
	Asks      []types.PriceLevel
}

// Snapshot is an immutable copy of a book
type Snapshot struct {
	Symbol    string
	Timestamp int64
	Datetime  string
	Depth     int
	Bids      []types.PriceLevel // best (highest) first
	Asks      []types.PriceLevel // best (lowest) first
}

// Limit returns a view with at most n levels per side. n <= 0 returns the
// whole snapshot. The receiver is not modified.
func (s Snapshot) Limit(n int) Snapshot {
	if n <= 0 {
		return s
	}
	out := s
	if len(out.Bids) > n {
		out.Bids = out.Bids[:n:n]
	}
	if len(out.Asks) > n {
		out.Asks = out.Asks[:n:n]
	}
	return out
}

// BestBid returns the highest bid
func (s Snapshot) BestBid() (types.PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return types.PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask
func (s Snapshot) BestAsk() (types.PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return types.PriceLevel{}, false
	}
	return s.Asks[0], true
}

func ascending(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}

func descending(a, b interface{}) int {
	return b.(decimal.Decimal).Cmp(a.(decimal.Decimal))
}

// OrderBook is the materialized book of one symbol. Each side is a sorted
// map price -> amount; a price appears at most once per side and zero
// amounts are never stored.
type OrderBook struct {
	mu        sync.RWMutex
	symbol    string
	depth     int
	bids      *treemap.Map
	asks      *treemap.Map
	timestamp int64
	datetime  string
	stats     types.Stats
}

// New creates an empty book retaining at most depth levels per side
func New(symbol string, depth int) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		depth:  depth,
		bids:   treemap.NewWith(descending),
		asks:   treemap.NewWith(ascending),
	}
}

func (ob *OrderBook) reset() {
	ob.bids.Clear()
	ob.asks.Clear()
	ob.timestamp = 0
	ob.datetime = ""
}

// ApplyBatch resets the book and applies batch. The feed delivers every
// update as a complete batch, so nothing from the previous state survives.
func (ob *OrderBook) ApplyBatch(batch Batch) Snapshot {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.reset()
	applySide(ob.asks, batch.Asks)
	applySide(ob.bids, batch.Bids)
	ob.trim(ob.asks)
	ob.trim(ob.bids)

	if batch.Symbol != "" {
		ob.symbol = batch.Symbol
	}
	ob.timestamp = batch.Timestamp
	ob.datetime = types.ISO8601(batch.Timestamp)

	ob.stats.Updates++
	ob.stats.LastUpdate = time.UnixMilli(batch.Timestamp)
	snap := ob.snapshot()
	ob.updateStats(snap)
	return snap
}

func applySide(side *treemap.Map, levels []types.PriceLevel) {
	for _, level := range levels {
		if level.Amount.IsZero() {
			side.Remove(level.Price)
			continue
		}
		side.Put(level.Price, level.Amount)
	}
}

// trim drops the worst levels beyond the configured depth
func (ob *OrderBook) trim(side *treemap.Map) {
	if ob.depth <= 0 {
		return
	}
	for side.Size() > ob.depth {
		worst, _ := side.Max()
		side.Remove(worst)
	}
}

// Snapshot returns a copy of the current state
func (ob *OrderBook) Snapshot() Snapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.snapshot()
}

func (ob *OrderBook) snapshot() Snapshot {
	return Snapshot{
		Symbol:    ob.symbol,
		Timestamp: ob.timestamp,
		Datetime:  ob.datetime,
		Depth:     ob.depth,
		Bids:      levels(ob.bids),
		Asks:      levels(ob.asks),
	}
}

func levels(side *treemap.Map) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, side.Size())
	it := side.Iterator()
	for it.Next() {
		out = append(out, types.PriceLevel{
			Price:  it.Key().(decimal.Decimal),
			Amount: it.Value().(decimal.Decimal),
		})
	}
	return out
}

// GetStats returns a copy of the current statistics
func (ob *OrderBook) GetStats() types.Stats {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.stats
}

// DepthFromChannel parses the level count from a depth channel name
// ("depth5" -> 5); a bare "depth" or an unparsable suffix yields def.
func DepthFromChannel(channel string, def int) int {
	n, err := strconv.Atoi(strings.TrimPrefix(channel, "depth"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
