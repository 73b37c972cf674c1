package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickLevel represents available tick size options for price aggregation
type TickLevel float64

const (
	Tick001 TickLevel = 0.01
	Tick01  TickLevel = 0.1
	Tick1   TickLevel = 1.0
	Tick10  TickLevel = 10.0
	Tick100 TickLevel = 100.0
)

// AvailableTickLevels defines the available tick levels in order of precision
var AvailableTickLevels = []TickLevel{
	Tick001,
	Tick01,
	Tick1,
	Tick10,
	Tick100,
}

// Order sides as delivered by the feed (lowercased)
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Unified order statuses
const (
	StatusOpen      = "open"
	StatusClosed    = "closed"
	StatusCanceled  = "canceled"
	StatusCanceling = "canceling"
	StatusFailed    = "failed"
)

// PriceLevel represents a single price level in the order book
type PriceLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// Trade is a public trade parsed from one trade record
type Trade struct {
	Symbol    string
	Timestamp int64 // ms
	Datetime  string
	Side      string
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Cost      decimal.Decimal
}

// Ticker holds the rolling 24h statistics for one market
type Ticker struct {
	Symbol     string
	Timestamp  int64
	Datetime   string
	High       decimal.Decimal
	Low        decimal.Decimal
	Open       decimal.Decimal
	Last       decimal.Decimal
	Close      decimal.Decimal
	Change     decimal.Decimal
	Percentage decimal.Decimal
	Average    decimal.Decimal
	BaseVolume decimal.Decimal
}

// OHLCV is a single candle; Timestamp is aligned to the interval boundary
type OHLCV struct {
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Order is one of the user's own orders as reported by the private feed
type Order struct {
	ID                 string
	ClientOrderID      string
	Symbol             string
	Type               string
	Side               string
	Status             string
	Price              decimal.Decimal
	Amount             decimal.Decimal
	Filled             decimal.Decimal
	Remaining          decimal.Decimal
	LastTradeTimestamp int64
}

// Stats holds statistical information about the order book
type Stats struct {
	Updates    int64
	LastUpdate time.Time
	BidLevels  int
	AskLevels  int
	BestBid    decimal.Decimal
	BestAsk    decimal.Decimal
	Spread     decimal.Decimal
	MidPrice   decimal.Decimal

	// Liquidity depth metrics (in base asset units)
	BidLiquidity05Pct decimal.Decimal // Total bid size within 0.5% of mid
	AskLiquidity05Pct decimal.Decimal // Total ask size within 0.5% of mid
	BidLiquidity2Pct  decimal.Decimal // Total bid size within 2% of mid
	AskLiquidity2Pct  decimal.Decimal // Total ask size within 2% of mid
	BidLiquidity10Pct decimal.Decimal // Total bid size within 10% of mid
	AskLiquidity10Pct decimal.Decimal // Total ask size within 10% of mid

	// Liquidity imbalance (positive = more bids, negative = more asks)
	DeltaLiquidity05Pct decimal.Decimal
	DeltaLiquidity2Pct  decimal.Decimal
	DeltaLiquidity10Pct decimal.Decimal

	TotalBidsQty decimal.Decimal
	TotalAsksQty decimal.Decimal
	TotalDelta   decimal.Decimal // TotalBidsQty - TotalAsksQty (positive = more bids)
}

// ISO8601 formats a millisecond timestamp the way the feed's consumers expect it
func ISO8601(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

// GetNextTickLevel returns the next tick level in the sequence
func GetNextTickLevel(current TickLevel) TickLevel {
	for i, tick := range AvailableTickLevels {
		if tick == current {
			if i+1 < len(AvailableTickLevels) {
				return AvailableTickLevels[i+1]
			}
			return AvailableTickLevels[0]
		}
	}
	return AvailableTickLevels[0]
}

// GetPreviousTickLevel returns the previous tick level in the sequence
func GetPreviousTickLevel(current TickLevel) TickLevel {
	for i, tick := range AvailableTickLevels {
		if tick == current {
			if i-1 >= 0 {
				return AvailableTickLevels[i-1]
			}
			return AvailableTickLevels[len(AvailableTickLevels)-1]
		}
	}
	return AvailableTickLevels[0]
}

// IsValidTickLevel reports whether tick is one of AvailableTickLevels
func IsValidTickLevel(tick TickLevel) bool {
	for _, available := range AvailableTickLevels {
		if available == tick {
			return true
		}
	}
	return false
}
