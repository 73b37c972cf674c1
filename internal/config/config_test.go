package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "wss://ws-manager-compress.bitmart.com/api?protocol=1.1", cfg.PublicURL())
	assert.Equal(t, "wss://ws-manager-compress.bitmart.com/user?protocol=1.1", cfg.PrivateURL())
	assert.Equal(t, "1H", cfg.Exchange.Timeframes["1h"])
	assert.Equal(t, 1000, cfg.Exchange.TradesLimit)
	assert.Equal(t, 15*time.Second, cfg.Stream.KeepAlive)

	cfg.Exchange.Timeframes["1h"] = "changed"
	assert.Equal(t, "1H", Default().Exchange.Timeframes["1h"], "defaults must not share maps")
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
exchange:
  hostname: bitmart.news
  order_book_channel: depth400
  trades_limit: 50
stream:
  keep_alive: 30s
markets:
  - id: LTC_USDT
    symbol: LTC/USDT
    type: spot
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://ws-manager-compress.bitmart.news/api?protocol=1.1", cfg.PublicURL())
	assert.Equal(t, "depth400", cfg.Exchange.OrderBookChannel)
	assert.Equal(t, 50, cfg.Exchange.TradesLimit)
	assert.Equal(t, 1000, cfg.Exchange.OrdersLimit, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Stream.KeepAlive)
	require.Len(t, cfg.Markets, 1)
	assert.Equal(t, "LTC_USDT", cfg.Markets[0].ID)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("exchange:\n  orders_limit: -1\n"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "orders_limit")

	require.NoError(t, os.WriteFile(path, []byte("exchange: ["), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "cannot parse YAML")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Exchange.OrderBookChannel = "book"
	cfg.Exchange.OrderBookDepth = 0
	cfg.Exchange.DefaultType = "margin"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "default_type")
	assert.ErrorContains(t, err, "order_book_channel")
	assert.ErrorContains(t, err, "order_book_depth")
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "key")
	t.Setenv(EnvSecret, "secret")
	t.Setenv(EnvUID, "")

	cfg := Default().WithCredentialsFromEnv()
	assert.Equal(t, "key", cfg.Credentials.APIKey)
	assert.False(t, cfg.Credentials.Complete())

	t.Setenv(EnvUID, "memo")
	assert.True(t, Default().WithCredentialsFromEnv().Credentials.Complete())
}
