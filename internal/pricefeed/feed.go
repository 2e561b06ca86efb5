// Package pricefeed fetches latest quotes from the external price vendor.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"alpharoyale/internal/config"
	"alpharoyale/internal/core"
	apperrors "alpharoyale/pkg/errors"
	"alpharoyale/pkg/httpclient"
	"alpharoyale/pkg/telemetry"
)

// Client fetches quotes from the vendor's HTTP API. It implements
// core.PriceSource.
type Client struct {
	http       *httpclient.Client
	credential string
	limiter    *rate.Limiter
	logger     core.ILogger

	quoteCounter metric.Int64Counter
	missCounter  metric.Int64Counter
}

// NewClient builds a vendor client from configuration. The underlying HTTP
// client already carries retry and circuit-breaking; the rate limiter keeps
// the per-symbol fan-out inside the vendor's request budget.
func NewClient(cfg config.VendorConfig, logger core.ILogger) *Client {
	meter := telemetry.GetMeter("pricefeed")
	quoteCounter, _ := meter.Int64Counter(telemetry.MetricQuotesTotal,
		metric.WithDescription("Total quotes fetched from the price vendor"))
	missCounter, _ := meter.Int64Counter("match_engine_quote_misses_total",
		metric.WithDescription("Symbols that returned no quote this round"))

	return &Client{
		http:         httpclient.NewClient(cfg.BaseURL, time.Duration(cfg.TimeoutMs)*time.Millisecond),
		credential:   string(cfg.Credential),
		limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitPerSec),
		logger:       logger.WithField("component", "pricefeed"),
		quoteCounter: quoteCounter,
		missCounter:  missCounter,
	}
}

// vendorQuote is the vendor's wire format: current price and source timestamp.
type vendorQuote struct {
	Price decimal.Decimal `json:"c"`
	At    int64           `json:"t"`
}

// Quotes fetches the latest quote for each canonical symbol. Symbols the
// vendor cannot serve are absent from the result; the tick must still
// advance, so only a fully failed batch returns ErrPriceFeedUnavailable.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]core.Quote, error) {
	quotes := make(map[string]core.Quote, len(symbols))
	var lastErr error

	for _, symbol := range symbols {
		vendor, ok := VendorSymbol(symbol)
		if !ok {
			c.logger.Warn("No vendor mapping for symbol, skipping", "symbol", symbol)
			continue
		}

		quote, err := c.fetchOne(ctx, symbol, vendor)
		if err != nil {
			lastErr = err
			c.missCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
			c.logger.Warn("Quote fetch failed, symbol has no price this round",
				"symbol", symbol, "error", err)
			continue
		}

		quotes[symbol] = quote
		c.quoteCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
	}

	if len(quotes) == 0 && lastErr != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrPriceFeedUnavailable, lastErr)
	}
	return quotes, nil
}

func (c *Client) fetchOne(ctx context.Context, canonical, vendor string) (core.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return core.Quote{}, err
	}

	body, err := c.http.Get(ctx, "/quote", map[string]string{
		"symbol": vendor,
		"token":  c.credential,
	})
	if err != nil {
		return core.Quote{}, fmt.Errorf("%w: %v", apperrors.ErrPriceFeedUnavailable, err)
	}

	var vq vendorQuote
	if err := json.Unmarshal(body, &vq); err != nil {
		return core.Quote{}, fmt.Errorf("%w: decode quote: %v", apperrors.ErrPriceFeedUnavailable, err)
	}
	if !vq.Price.IsPositive() {
		return core.Quote{}, fmt.Errorf("%w: vendor returned non-positive price %s for %s",
			apperrors.ErrPriceFeedUnavailable, vq.Price, vendor)
	}

	return core.Quote{
		Symbol: canonical,
		Price:  vq.Price,
		At:     time.Unix(vq.At, 0).UTC(),
	}, nil
}
