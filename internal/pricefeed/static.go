package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"alpharoyale/internal/core"
	apperrors "alpharoyale/pkg/errors"
)

// Static is a fixed-price source for tests and throwaway runs. Prices are
// mutable so a test can move the market between ticks.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	fail   bool
}

// NewStatic builds a static source with the given canonical prices.
func NewStatic(prices map[string]decimal.Decimal) *Static {
	copied := make(map[string]decimal.Decimal, len(prices))
	for k, v := range prices {
		copied[k] = v
	}
	return &Static{prices: copied}
}

// Set replaces the price for a symbol.
func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// Remove drops a symbol so the next batch has no quote for it.
func (s *Static) Remove(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, symbol)
}

// SetUnavailable makes every subsequent batch fail with
// ErrPriceFeedUnavailable until called again with false.
func (s *Static) SetUnavailable(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// Quotes implements core.PriceSource.
func (s *Static) Quotes(_ context.Context, symbols []string) (map[string]core.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.fail {
		return nil, apperrors.ErrPriceFeedUnavailable
	}

	now := time.Now().UTC()
	quotes := make(map[string]core.Quote, len(symbols))
	for _, symbol := range symbols {
		price, ok := s.prices[symbol]
		if !ok {
			continue
		}
		quotes[symbol] = core.Quote{Symbol: symbol, Price: price, At: now}
	}
	return quotes, nil
}
