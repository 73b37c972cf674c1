package orderbook

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsync/internal/types"
)

func TestBooksMissingSymbol(t *testing.T) {
	t.Parallel()
	books := NewBooks()

	_, ok := books.Snapshot("BTC/USDT")
	assert.False(t, ok)
	_, ok = books.Stats("BTC/USDT")
	assert.False(t, ok)
	assert.Empty(t, books.Symbols())
}

func TestBooksKeepsDepthFromFirstBatch(t *testing.T) {
	t.Parallel()
	books := NewBooks()
	books.ApplyBatch(1, Batch{Symbol: "ETH/USDT", Bids: []types.PriceLevel{lvl("10", "1"), lvl("9", "1")}})
	snap := books.ApplyBatch(50, Batch{Symbol: "ETH/USDT", Bids: []types.PriceLevel{lvl("10", "1"), lvl("9", "1")}})

	assert.Equal(t, []string{"10"}, prices(snap.Bids))

	stored, ok := books.Snapshot("ETH/USDT")
	require.True(t, ok)
	assert.Equal(t, snap.Bids, stored.Bids)
}

func TestBooksSymbolsSorted(t *testing.T) {
	t.Parallel()
	books := NewBooks()
	for _, s := range []string{"XRP/USDT", "BTC/USDT", "ETH/USDT"} {
		books.ApplyBatch(5, Batch{Symbol: s})
	}
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT", "XRP/USDT"}, books.Symbols())
}

func TestBooksConcurrentApply(t *testing.T) {
	t.Parallel()
	books := NewBooks()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				books.ApplyBatch(5, Batch{
					Symbol: "BTC/USDT",
					Bids:   []types.PriceLevel{lvl("100", "1")},
					Asks:   []types.PriceLevel{lvl("101", "1")},
				})
				books.Stats("BTC/USDT")
			}
		}()
	}
	wg.Wait()

	stats, ok := books.Stats("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, "1", stats.Spread.String())
	assert.Equal(t, 1, stats.BidLevels)
}
