// Command coupon-ingest publishes coupons from gzip-compressed partner code
// lists.
package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/oolio-shop/internal/couponfeed"
	"github.com/xenking/oolio-shop/internal/domain/coupon"
	"github.com/xenking/oolio-shop/internal/storage/sqlstore"
)

type config struct {
	DatabaseDSN string `usage:"Database DSN (or DATABASE_URL)"`
	Files       string `default:"data/*.gz" usage:"Glob of gzip code lists"`
	MinSources  int    `default:"2" usage:"Lists a code must appear in"`
	MinLen      int    `default:"8"`
	MaxLen      int    `default:"10"`
	Expected    uint   `default:"120000000" usage:"Expected codes per list, sizes the bloom filters"`
	Workers     int    `default:"8" usage:"Concurrent upserts"`
	DryRun      bool   `usage:"Scan only, write nothing"`

	Type         string        `default:"percentage" usage:"percentage, fixed_amount or free_shipping"`
	Value        string        `default:"10" usage:"Discount value"`
	MinimumOrder string        `default:"0"`
	PerCustomer  int           `default:"1" usage:"Uses per customer, 0 for unlimited"`
	ValidFor     time.Duration `default:"0s" usage:"Expire coupons after this long, 0 for never"`
	Description  string        `default:"Partner promotion"`
}

func (c config) template(now time.Time) (coupon.Coupon, error) {
	value, err := decimal.NewFromString(c.Value)
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse value")
	}
	minOrder, err := decimal.NewFromString(c.MinimumOrder)
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse minimum order")
	}
	t := coupon.Coupon{
		Description:        c.Description,
		Type:               coupon.Type(c.Type),
		DiscountValue:      value,
		MinimumOrderAmount: minOrder,
	}
	if c.PerCustomer > 0 {
		perCustomer := c.PerCustomer
		t.UsageLimitPerCustomer = &perCustomer
	}
	if c.ValidFor > 0 {
		expires := now.Add(c.ValidFor)
		t.ExpiresAt = &expires
	}
	return t, nil
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		var cfg config
		loader := aconfig.LoaderFor(&cfg, aconfig.Config{
			EnvPrefix:        "SHOP_INGEST",
			AllowUnknownEnvs: true,
			SkipFiles:        true,
		})
		if err := loader.Load(); err != nil {
			return errors.Wrap(err, "load config")
		}
		if cfg.DatabaseDSN == "" {
			cfg.DatabaseDSN = os.Getenv("DATABASE_URL")
		}
		return run(zctx.Base(ctx, lg), cfg)
	})
}

func run(ctx context.Context, cfg config) error {
	lg := zctx.From(ctx)
	now := time.Now().UTC()
	tmpl, err := cfg.template(now)
	if err != nil {
		return err
	}

	files, err := filepath.Glob(cfg.Files)
	if err != nil {
		return errors.Wrap(err, "expand files")
	}
	lg.Info("Scanning code lists", zap.Strings("files", files), zap.Int("min_sources", cfg.MinSources))

	start := time.Now()
	codes, err := couponfeed.Scan(ctx, files, couponfeed.ScanConfig{
		MinSources:    cfg.MinSources,
		MinLen:        cfg.MinLen,
		MaxLen:        cfg.MaxLen,
		ExpectedCodes: cfg.Expected,
		ProgressEvery: 10_000_000,
	})
	if err != nil {
		return errors.Wrap(err, "scan")
	}
	lg.Info("Scan finished", zap.Int("codes", len(codes)), zap.Duration("took", time.Since(start)))
	if cfg.DryRun || len(codes) == 0 {
		return nil
	}

	if cfg.DatabaseDSN == "" {
		return errors.New("database DSN is required: set SHOP_INGEST_DATABASE_DSN or DATABASE_URL")
	}
	db, err := sqlstore.Open(ctx, sqlstore.Config{DSN: cfg.DatabaseDSN})
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer func() { _ = db.Close() }()

	n, err := couponfeed.Publish(ctx, db.Coupons(), codes, couponfeed.PublishConfig{
		Template: tmpl,
		Workers:  cfg.Workers,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		return errors.Wrapf(err, "publish (%d written)", n)
	}
	lg.Info("Coupons published", zap.Int("count", n))
	return nil
}
