package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsync/internal/exchange"
)

func TestStaticRegistry(t *testing.T) {
	t.Parallel()
	r := NewStatic([]Market{
		{ID: "BTC_USDT", Symbol: "BTC/USDT", Type: Spot},
		{ID: "ETH_USDT"},
	})
	require.NoError(t, r.LoadMarkets(context.Background()))
	assert.True(t, r.Loaded())

	m, err := r.Market("BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, "BTC_USDT", m.ID)

	m, err = r.Market("BTC_USDT")
	require.NoError(t, err, "exchange id must resolve too")
	assert.Equal(t, "BTC/USDT", m.Symbol)

	m, err = r.Market("ETH/USDT")
	require.NoError(t, err, "symbol derived from id")
	assert.Equal(t, Spot, m.Type)

	_, err = r.Market("DOGE/USDT")
	assert.ErrorIs(t, err, exchange.ErrMarketNotFound)
}

func TestSafeMarket(t *testing.T) {
	t.Parallel()
	r := NewStatic([]Market{{ID: "BTC_USDT", Symbol: "BTC/USDT", Type: Spot}})
	assert.Equal(t, "BTC/USDT", SafeMarket(r, "BTC_USDT", Swap).Symbol)
	assert.Equal(t, Spot, SafeMarket(r, "BTC_USDT", Swap).Type, "known markets keep their own type")

	unknown := SafeMarket(r, "XYZ_USDT", Spot)
	assert.Equal(t, "XYZ_USDT", unknown.ID)
	assert.Equal(t, "XYZ_USDT", unknown.Symbol)
	assert.Equal(t, Spot, unknown.Type)

	assert.Equal(t, Swap, SafeMarket(r, "XYZUSDT", Swap).Type)
}

func TestSymbolFromID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "BTC/USDT", SymbolFromID("btc_usdt"))
	assert.Equal(t, "BTCUSDT", SymbolFromID("BTCUSDT"))
}
