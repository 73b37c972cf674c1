package aggregation

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"

	"marketsync/internal/orderbook"
	"marketsync/internal/types"
)

// Aggregator groups book levels into tick-sized price buckets. It is safe
// for concurrent use.
type Aggregator struct {
	mu          sync.RWMutex
	currentTick types.TickLevel
}

var _ types.PriceAggregator = (*Aggregator)(nil)

// New creates a new Aggregator instance
func New(tick types.TickLevel) *Aggregator {
	return &Aggregator{
		currentTick: tick,
	}
}

// SetTickLevel updates the tick level for aggregation
func (a *Aggregator) SetTickLevel(tick types.TickLevel) {
	a.mu.Lock()
	a.currentTick = tick
	a.mu.Unlock()
}

// GetTickLevel returns the current tick level
func (a *Aggregator) GetTickLevel() types.TickLevel {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentTick
}

// StepTickLevel moves to the next coarser (up) or finer tick level and
// returns it
func (a *Aggregator) StepTickLevel(up bool) types.TickLevel {
	a.mu.Lock()
	defer a.mu.Unlock()
	if up {
		a.currentTick = types.GetNextTickLevel(a.currentTick)
	} else {
		a.currentTick = types.GetPreviousTickLevel(a.currentTick)
	}
	return a.currentTick
}

// AggregateBids floors bid prices to the tick and sums amounts; the result
// is sorted best (highest) first
func (a *Aggregator) AggregateBids(levels []types.PriceLevel) []types.PriceLevel {
	tick := tickSize(a.GetTickLevel())
	return aggregate(levels, descending, func(p decimal.Decimal) decimal.Decimal {
		if tick.IsZero() {
			return p
		}
		return p.Div(tick).Floor().Mul(tick)
	})
}

// AggregateAsks ceils ask prices to the tick and sums amounts; the result is
// sorted best (lowest) first
func (a *Aggregator) AggregateAsks(levels []types.PriceLevel) []types.PriceLevel {
	tick := tickSize(a.GetTickLevel())
	return aggregate(levels, ascending, func(p decimal.Decimal) decimal.Decimal {
		if tick.IsZero() {
			return p
		}
		return p.Div(tick).Ceil().Mul(tick)
	})
}

// AggregateSnapshot aggregates both sides of snap, dropping bids that are
// far from the best ask
func (a *Aggregator) AggregateSnapshot(snap orderbook.Snapshot) (bids, asks []types.PriceLevel) {
	bestAsk := decimal.Zero
	if ask, ok := snap.BestAsk(); ok {
		bestAsk = ask.Price
	}
	return a.AggregateBids(FilterLevels(snap.Bids, bestAsk, true)), a.AggregateAsks(snap.Asks)
}

func tickSize(tick types.TickLevel) decimal.Decimal {
	return decimal.NewFromFloat(float64(tick))
}

func ascending(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}

func descending(a, b interface{}) int {
	return b.(decimal.Decimal).Cmp(a.(decimal.Decimal))
}

func aggregate(levels []types.PriceLevel, cmp func(a, b interface{}) int, round func(decimal.Decimal) decimal.Decimal) []types.PriceLevel {
	if len(levels) == 0 {
		return []types.PriceLevel{}
	}
	buckets := treemap.NewWith(cmp)
	for _, level := range levels {
		price := round(level.Price)
		if existing, ok := buckets.Get(price); ok {
			buckets.Put(price, existing.(decimal.Decimal).Add(level.Amount))
			continue
		}
		buckets.Put(price, level.Amount)
	}

	out := make([]types.PriceLevel, 0, buckets.Size())
	it := buckets.Iterator()
	for it.Next() {
		out = append(out, types.PriceLevel{
			Price:  it.Key().(decimal.Decimal),
			Amount: it.Value().(decimal.Decimal),
		})
	}
	return out
}

// FilterLevels filters price levels based on best ask price to remove outliers
func FilterLevels(levels []types.PriceLevel, bestAsk decimal.Decimal, isBid bool) []types.PriceLevel {
	if bestAsk.IsZero() || !isBid {
		return levels
	}

	filtered := make([]types.PriceLevel, 0, len(levels))
	maxPrice := bestAsk.Mul(decimal.NewFromFloat(2.0))
	minPrice := bestAsk.Mul(decimal.NewFromFloat(0.2))

	for _, level := range levels {
		if level.Price.LessThanOrEqual(maxPrice) && level.Price.GreaterThanOrEqual(minPrice) {
			filtered = append(filtered, level)
		}
	}
	return filtered
}
