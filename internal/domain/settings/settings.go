// Package settings exposes shop-wide key/value settings and the typed pricing
// configuration derived from them.
package settings

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/pricing"
)

// Keys consumed by the pricing calculator.
const (
	KeyTaxRate               = "tax_rate"
	KeyShippingCostStandard  = "shipping_cost_standard"
	KeyFreeShippingThreshold = "free_shipping_threshold"
)

// Repository stores settings as string rows.
type Repository interface {
	All(ctx context.Context) (map[string]string, error)
	Upsert(ctx context.Context, values map[string]string) error
}

// Provider serves the typed pricing settings, loading them once and keeping
// them until Invalidate is called.
type Provider struct {
	repo Repository

	mu     sync.RWMutex
	cached *pricing.Settings
}

// NewProvider creates a Provider reading from repo.
func NewProvider(repo Repository) *Provider {
	return &Provider{repo: repo}
}

// Pricing returns the current pricing settings.
func (p *Provider) Pricing(ctx context.Context) (pricing.Settings, error) {
	p.mu.RLock()
	cached := p.cached
	p.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	raw, err := p.repo.All(ctx)
	if err != nil {
		return pricing.Settings{}, errors.Wrap(err, "load settings")
	}
	s := Parse(ctx, raw)

	p.mu.Lock()
	p.cached = &s
	p.mu.Unlock()
	return s, nil
}

// Invalidate drops the cached settings.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// Parse converts raw rows into pricing settings. Missing or unparsable values
// fall back to the defaults.
func Parse(ctx context.Context, raw map[string]string) pricing.Settings {
	return pricing.Settings{
		TaxRate:               parseDecimal(ctx, raw, KeyTaxRate, pricing.DefaultTaxRate),
		ShippingCostStandard:  parseDecimal(ctx, raw, KeyShippingCostStandard, pricing.DefaultShippingCostStandard),
		FreeShippingThreshold: parseDecimal(ctx, raw, KeyFreeShippingThreshold, pricing.DefaultFreeShippingThreshold),
	}
}

func parseDecimal(ctx context.Context, raw map[string]string, key string, def decimal.Decimal) decimal.Decimal {
	v, ok := raw[key]
	if !ok || v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		zctx.From(ctx).Warn("Unparsable setting, using default",
			zap.String("key", key),
			zap.String("value", v),
			zap.Stringer("default", def),
		)
		return def
	}
	return d
}

// Service reads and updates settings.
type Service struct {
	repo     Repository
	provider *Provider
}

// NewService creates a settings Service. Updates invalidate provider.
func NewService(repo Repository, provider *Provider) *Service {
	return &Service{repo: repo, provider: provider}
}

// Get returns every stored setting.
func (s *Service) Get(ctx context.Context) (map[string]string, error) {
	raw, err := s.repo.All(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load settings")
	}
	return raw, nil
}

// Update stores values. Pricing keys must be non-negative decimals.
func (s *Service) Update(ctx context.Context, values map[string]string) error {
	var fields []apperr.FieldError
	for _, key := range []string{KeyTaxRate, KeyShippingCostStandard, KeyFreeShippingThreshold} {
		v, ok := values[key]
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			fields = append(fields, apperr.FieldError{Field: key, Message: "must be a non-negative number"})
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("Invalid settings", fields...)
	}
	if len(values) == 0 {
		return nil
	}

	if err := s.repo.Upsert(ctx, values); err != nil {
		return errors.Wrap(err, "upsert settings")
	}
	s.provider.Invalidate()
	return nil
}
