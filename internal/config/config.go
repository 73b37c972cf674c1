package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"marketsync/internal/exchange"
	"marketsync/internal/market"
	"marketsync/internal/types"
)

// Credential environment variables
const (
	EnvAPIKey = "BITMART_API_KEY"
	EnvSecret = "BITMART_SECRET"
	EnvUID    = "BITMART_UID"
)

// Config holds all application configuration. It is built once and passed by
// value; nothing reads configuration from globals.
type Config struct {
	Exchange    ExchangeConfig  `yaml:"exchange"`
	Credentials Credentials     `yaml:"-"`
	Stream      StreamConfig    `yaml:"stream"`
	Markets     []market.Market `yaml:"markets"`
	Server      ServerConfig    `yaml:"server"`
	Display     DisplayConfig   `yaml:"display"`
	Logging     LoggingConfig   `yaml:"logging"`
}

// ExchangeConfig holds exchange-specific configuration
type ExchangeConfig struct {
	Name       exchange.ExchangeName `yaml:"name"`
	Hostname   string                `yaml:"hostname"`
	PublicURL  string                `yaml:"public_url"`  // may contain {hostname}
	PrivateURL string                `yaml:"private_url"` // may contain {hostname}

	DefaultType market.Type `yaml:"default_type"`

	// OrderBookChannel is the depth channel watched by default (depth5, depth400)
	OrderBookChannel string `yaml:"order_book_channel"`
	// OrderBookDepth is the depth used when the channel name carries no limit
	OrderBookDepth int `yaml:"order_book_depth"`

	// Timeframes maps unified timeframes to exchange interval tokens
	Timeframes map[string]string `yaml:"timeframes"`

	TradesLimit int `yaml:"trades_limit"`
	OrdersLimit int `yaml:"orders_limit"`
	OHLCVLimit  int `yaml:"ohlcv_limit"`
}

// Credentials for the private endpoint
type Credentials struct {
	APIKey string
	Secret string
	UID    string
}

// Complete reports whether every credential is set
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.Secret != "" && c.UID != ""
}

// StreamConfig holds transport settings
type StreamConfig struct {
	KeepAlive        time.Duration `yaml:"keep_alive"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	SendRate         float64       `yaml:"send_rate"` // frames per second
	SendBurst        int           `yaml:"send_burst"`
	Inflate          bool          `yaml:"inflate"`
}

// ServerConfig holds the local push server settings
type ServerConfig struct {
	Port         string        `yaml:"port"`
	PushInterval time.Duration `yaml:"push_interval"`
}

// DisplayConfig holds display-related configuration
type DisplayConfig struct {
	Top              int             `yaml:"top"`
	LogInterval      time.Duration   `yaml:"log_interval"`
	DefaultTickLevel types.TickLevel `yaml:"default_tick_level"`
}

// LoggingConfig mirrors logger.Configure
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// DefaultTimeframes returns the exchange kline interval table
func DefaultTimeframes() map[string]string {
	return map[string]string{
		"1m":  "1m",
		"3m":  "3m",
		"5m":  "5m",
		"15m": "15m",
		"30m": "30m",
		"45m": "45m",
		"1h":  "1H",
		"2h":  "2H",
		"3h":  "3H",
		"4h":  "4H",
		"1d":  "1D",
		"1w":  "1W",
		"1M":  "1M",
	}
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Exchange: ExchangeConfig{
			Name:             exchange.Bitmart,
			Hostname:         "bitmart.com",
			PublicURL:        "wss://ws-manager-compress.{hostname}/api?protocol=1.1",
			PrivateURL:       "wss://ws-manager-compress.{hostname}/user?protocol=1.1",
			DefaultType:      market.Spot,
			OrderBookChannel: "depth5",
			OrderBookDepth:   400,
			Timeframes:       DefaultTimeframes(),
			TradesLimit:      1000,
			OrdersLimit:      1000,
			OHLCVLimit:       1000,
		},
		Stream: StreamConfig{
			KeepAlive:        15 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			SendRate:         10,
			SendBurst:        10,
			Inflate:          true,
		},
		Markets: []market.Market{
			{ID: "BTC_USDT", Symbol: "BTC/USDT", Type: market.Spot},
			{ID: "ETH_USDT", Symbol: "ETH/USDT", Type: market.Spot},
		},
		Server: ServerConfig{
			Port:         "8086",
			PushInterval: 200 * time.Millisecond,
		},
		Display: DisplayConfig{
			Top:              10,
			LogInterval:      10 * time.Second,
			DefaultTickLevel: types.Tick1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads a YAML file and overlays it on Default
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithCredentialsFromEnv returns a copy of c with credentials read from the
// environment
func (c Config) WithCredentialsFromEnv() Config {
	c.Credentials = Credentials{
		APIKey: os.Getenv(EnvAPIKey),
		Secret: os.Getenv(EnvSecret),
		UID:    os.Getenv(EnvUID),
	}
	return c
}

// Validate rejects configurations the client cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.Exchange.PublicURL == "" || c.Exchange.PrivateURL == "" {
		errs = append(errs, errors.New("exchange urls must be set"))
	}
	if c.Exchange.DefaultType != market.Spot && c.Exchange.DefaultType != market.Swap {
		errs = append(errs, fmt.Errorf("default_type must be %q or %q, got %q", market.Spot, market.Swap, c.Exchange.DefaultType))
	}
	if c.Exchange.OrderBookDepth <= 0 {
		errs = append(errs, fmt.Errorf("order_book_depth must be positive, got %d", c.Exchange.OrderBookDepth))
	}
	if !strings.HasPrefix(c.Exchange.OrderBookChannel, "depth") {
		errs = append(errs, fmt.Errorf("order_book_channel %q is not a depth channel", c.Exchange.OrderBookChannel))
	}
	for name, limit := range map[string]int{
		"trades_limit": c.Exchange.TradesLimit,
		"orders_limit": c.Exchange.OrdersLimit,
		"ohlcv_limit":  c.Exchange.OHLCVLimit,
	} {
		if limit <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, limit))
		}
	}
	if len(c.Exchange.Timeframes) == 0 {
		errs = append(errs, errors.New("timeframes must not be empty"))
	}
	if c.Stream.SendRate < 0 || c.Stream.SendBurst < 0 {
		errs = append(errs, errors.New("send_rate and send_burst must not be negative"))
	}
	return errors.Join(errs...)
}

// PublicURL returns the public endpoint with the hostname substituted
func (c Config) PublicURL() string {
	return strings.ReplaceAll(c.Exchange.PublicURL, "{hostname}", c.Exchange.Hostname)
}

// PrivateURL returns the private endpoint with the hostname substituted
func (c Config) PrivateURL() string {
	return strings.ReplaceAll(c.Exchange.PrivateURL, "{hostname}", c.Exchange.Hostname)
}
