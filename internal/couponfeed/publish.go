package couponfeed

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/oolio-shop/internal/domain/coupon"
)

// Upserter stores coupons by code, keeping usage counters of existing codes.
type Upserter interface {
	Upsert(ctx context.Context, c *coupon.Coupon) error
}

// PublishConfig controls how scanned codes become coupons.
type PublishConfig struct {
	// Template is copied for every code. Code, ID and timestamps are set per
	// coupon.
	Template coupon.Coupon
	Workers  int
	Now      func() time.Time
}

// Publish upserts one active coupon per code and returns how many were
// written.
func Publish(ctx context.Context, repo Upserter, codes []string, cfg PublishConfig) (int, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	probe := cfg.Template
	probe.Code = "TEMPLATE"
	if err := probe.Validate(); err != nil {
		return 0, errors.Wrap(err, "invalid coupon template")
	}

	lg := zctx.From(ctx)
	now := cfg.Now().UTC()
	var written atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, code := range codes {
		g.Go(func() error {
			c := cfg.Template
			c.ID = uuid.NewString()
			c.Code = code
			c.UsedCount = 0
			c.IsActive = true
			c.CreatedAt = now
			c.UpdatedAt = now
			if err := repo.Upsert(ctx, &c); err != nil {
				return errors.Wrapf(err, "upsert %s", code)
			}
			if n := written.Add(1); n%1000 == 0 {
				lg.Info("Publishing coupons", zap.Int64("written", n), zap.Int("total", len(codes)))
			}
			return nil
		})
	}
	err := g.Wait()
	return int(written.Load()), err
}
