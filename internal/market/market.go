// Package market holds exchange reference data and the registry the
// streaming client resolves symbols against.
package market

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"marketsync/internal/exchange"
)

// Type is the market kind; it prefixes public channel keys
type Type string

const (
	Spot Type = "spot"
	Swap Type = "swap"
)

// Market is immutable reference data for one tradable instrument
type Market struct {
	ID     string `yaml:"id"`     // exchange-native id, e.g. BTC_USDT
	Symbol string `yaml:"symbol"` // unified symbol, e.g. BTC/USDT
	Type   Type   `yaml:"type"`
}

// Registry resolves markets by exchange id or unified symbol
type Registry interface {
	// LoadMarkets makes sure metadata is available; repeated calls are cheap
	LoadMarkets(ctx context.Context) error

	// Market resolves a unified symbol or an exchange id
	Market(symbol string) (Market, error)

	// MarketByID resolves an exchange id
	MarketByID(id string) (Market, bool)
}

// Static is a Registry over a fixed list of markets
type Static struct {
	mu       sync.RWMutex
	loaded   bool
	byID     map[string]Market
	bySymbol map[string]Market
}

// NewStatic creates a registry from markets. Entries with an empty symbol get
// one derived from the id (BTC_USDT -> BTC/USDT); an empty type means spot.
func NewStatic(markets []Market) *Static {
	s := &Static{
		byID:     make(map[string]Market, len(markets)),
		bySymbol: make(map[string]Market, len(markets)),
	}
	for _, m := range markets {
		if m.Symbol == "" {
			m.Symbol = SymbolFromID(m.ID)
		}
		if m.Type == "" {
			m.Type = Spot
		}
		s.byID[m.ID] = m
		s.bySymbol[m.Symbol] = m
	}
	return s
}

// LoadMarkets marks the registry as loaded
func (s *Static) LoadMarkets(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Loaded reports whether LoadMarkets has been called
func (s *Static) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Market resolves a unified symbol, falling back to the exchange id
func (s *Static) Market(symbol string) (Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.bySymbol[symbol]; ok {
		return m, nil
	}
	if m, ok := s.byID[symbol]; ok {
		return m, nil
	}
	return Market{}, fmt.Errorf("%w: %s", exchange.ErrMarketNotFound, symbol)
}

// MarketByID resolves an exchange id
func (s *Static) MarketByID(id string) (Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	return m, ok
}

// SafeMarket resolves id, or returns a market of fallback type standing in
// for an id the registry does not know so records are never dropped for
// missing metadata.
func SafeMarket(r Registry, id string, fallback Type) Market {
	if m, ok := r.MarketByID(id); ok {
		return m
	}
	return Market{ID: id, Symbol: id, Type: fallback}
}

// SymbolFromID converts BTC_USDT to BTC/USDT
func SymbolFromID(id string) string {
	base, quote, ok := strings.Cut(id, "_")
	if !ok {
		return strings.ToUpper(id)
	}
	return strings.ToUpper(base) + "/" + strings.ToUpper(quote)
}
