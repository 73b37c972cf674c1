package bitmart

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"marketsync/internal/market"
)

func TestChannelKeys(t *testing.T) {
	t.Parallel()
	spot := market.Market{ID: "BTC_USDT", Symbol: "BTC/USDT", Type: market.Spot}

	assert.Equal(t, "spot/trade:BTC_USDT", PublicChannelKey(spot, "trade"))
	assert.Equal(t, "spot/depth5:BTC_USDT", PublicChannelKey(spot, "depth5"))
	assert.Equal(t, "spot/user/order:BTC_USDT", PrivateChannelKey(spot, "spot/user/order"))

	assert.Equal(t, PublicChannelKey(spot, "kline1m"), InboundChannelKey("spot/kline1m", "BTC_USDT"))
	assert.Equal(t, PrivateChannelKey(spot, "spot/user/order"), InboundChannelKey("spot/user/order", "BTC_USDT"))

	swap := market.Market{ID: "BTCUSDT", Symbol: "BTC/USDT:USDT", Type: market.Swap}
	assert.NotEqual(t, PublicChannelKey(spot, "ticker"), PublicChannelKey(swap, "ticker"))
}
