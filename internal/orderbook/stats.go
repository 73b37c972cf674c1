package orderbook

import (
	"github.com/shopspring/decimal"
)

var (
	two   = decimal.NewFromInt(2)
	pct05 = decimal.NewFromFloat(0.005)
	pct2  = decimal.NewFromFloat(0.02)
	pct10 = decimal.NewFromFloat(0.10)
)

// updateStats recalculates orderbook statistics (must be called with mutex locked)
func (ob *OrderBook) updateStats(snap Snapshot) {
	ob.stats.BidLevels = len(snap.Bids)
	ob.stats.AskLevels = len(snap.Asks)
	ob.stats.BestBid = decimal.Zero
	ob.stats.BestAsk = decimal.Zero
	if best, ok := snap.BestBid(); ok {
		ob.stats.BestBid = best.Price
	}
	if best, ok := snap.BestAsk(); ok {
		ob.stats.BestAsk = best.Price
	}

	bestBid, bestAsk := ob.stats.BestBid, ob.stats.BestAsk
	if !bestBid.IsZero() && !bestAsk.IsZero() && bestAsk.GreaterThan(bestBid) {
		ob.stats.Spread = bestAsk.Sub(bestBid)
	} else {
		ob.stats.Spread = decimal.Zero
	}

	ob.calculateLiquidityDepth(snap)
}

// calculateLiquidityDepth calculates liquidity at various depth percentages (must be called with mutex locked)
func (ob *OrderBook) calculateLiquidityDepth(snap Snapshot) {
	if ob.stats.BestBid.IsZero() || ob.stats.BestAsk.IsZero() {
		ob.stats.MidPrice = decimal.Zero
		ob.stats.BidLiquidity05Pct = decimal.Zero
		ob.stats.AskLiquidity05Pct = decimal.Zero
		ob.stats.BidLiquidity2Pct = decimal.Zero
		ob.stats.AskLiquidity2Pct = decimal.Zero
		ob.stats.BidLiquidity10Pct = decimal.Zero
		ob.stats.AskLiquidity10Pct = decimal.Zero
		ob.stats.DeltaLiquidity05Pct = decimal.Zero
		ob.stats.DeltaLiquidity2Pct = decimal.Zero
		ob.stats.DeltaLiquidity10Pct = decimal.Zero
		ob.stats.TotalBidsQty = decimal.Zero
		ob.stats.TotalAsksQty = decimal.Zero
		ob.stats.TotalDelta = decimal.Zero
		return
	}

	midPrice := ob.stats.BestBid.Add(ob.stats.BestAsk).Div(two)
	ob.stats.MidPrice = midPrice

	bidLiq05, bidLiq2, bidLiq10, totalBids := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	minBid05 := midPrice.Sub(midPrice.Mul(pct05))
	minBid2 := midPrice.Sub(midPrice.Mul(pct2))
	minBid10 := midPrice.Sub(midPrice.Mul(pct10))
	for _, level := range snap.Bids {
		totalBids = totalBids.Add(level.Amount)
		if level.Price.GreaterThanOrEqual(minBid05) {
			bidLiq05 = bidLiq05.Add(level.Amount)
		}
		if level.Price.GreaterThanOrEqual(minBid2) {
			bidLiq2 = bidLiq2.Add(level.Amount)
		}
		if level.Price.GreaterThanOrEqual(minBid10) {
			bidLiq10 = bidLiq10.Add(level.Amount)
		}
	}

	askLiq05, askLiq2, askLiq10, totalAsks := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	maxAsk05 := midPrice.Add(midPrice.Mul(pct05))
	maxAsk2 := midPrice.Add(midPrice.Mul(pct2))
	maxAsk10 := midPrice.Add(midPrice.Mul(pct10))
	for _, level := range snap.Asks {
		totalAsks = totalAsks.Add(level.Amount)
		if level.Price.LessThanOrEqual(maxAsk05) {
			askLiq05 = askLiq05.Add(level.Amount)
		}
		if level.Price.LessThanOrEqual(maxAsk2) {
			askLiq2 = askLiq2.Add(level.Amount)
		}
		if level.Price.LessThanOrEqual(maxAsk10) {
			askLiq10 = askLiq10.Add(level.Amount)
		}
	}

	ob.stats.BidLiquidity05Pct = bidLiq05
	ob.stats.AskLiquidity05Pct = askLiq05
	ob.stats.BidLiquidity2Pct = bidLiq2
	ob.stats.AskLiquidity2Pct = askLiq2
	ob.stats.BidLiquidity10Pct = bidLiq10
	ob.stats.AskLiquidity10Pct = askLiq10
	ob.stats.TotalBidsQty = totalBids
	ob.stats.TotalAsksQty = totalAsks

	// positive = more bid liquidity
	ob.stats.DeltaLiquidity05Pct = bidLiq05.Sub(askLiq05)
	ob.stats.DeltaLiquidity2Pct = bidLiq2.Sub(askLiq2)
	ob.stats.DeltaLiquidity10Pct = bidLiq10.Sub(askLiq10)
	ob.stats.TotalDelta = totalBids.Sub(totalAsks)
}
