// Command seed-db applies migrations and loads the default settings, email
// templates, catalog, coupons and admin account. Running it twice is safe.
package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/auth"
	"github.com/xenking/oolio-shop/internal/domain/coupon"
	"github.com/xenking/oolio-shop/internal/domain/notify"
	"github.com/xenking/oolio-shop/internal/domain/pricing"
	"github.com/xenking/oolio-shop/internal/domain/product"
	"github.com/xenking/oolio-shop/internal/domain/settings"
	"github.com/xenking/oolio-shop/internal/storage/sqlstore"
)

type config struct {
	DatabaseDSN   string `usage:"Database DSN (or DATABASE_URL)"`
	CatalogFile   string `default:"db/seed/catalog.json" usage:"Path to the catalog JSON file"`
	AdminEmail    string `default:"admin@shop.local" usage:"Admin account email"`
	AdminPassword string `usage:"Admin account password, the account is skipped when empty"`
	AdminName     string `default:"Shop Admin"`
}

type optionJSON struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type variationJSON struct {
	SKU           string              `json:"sku"`
	Price         decimal.Decimal     `json:"price"`
	SalePrice     decimal.NullDecimal `json:"sale_price"`
	StockQuantity int                 `json:"stock_quantity"`
	Options       []optionJSON        `json:"options"`
}

type productJSON struct {
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	Category      string              `json:"category"`
	SKU           string              `json:"sku"`
	Price         decimal.Decimal     `json:"price"`
	SalePrice     decimal.NullDecimal `json:"sale_price"`
	StockQuantity int                 `json:"stock_quantity"`
	Variations    []variationJSON     `json:"variations"`
}

func (p productJSON) toDomain() *product.Product {
	out := &product.Product{
		Name:          p.Name,
		Description:   p.Description,
		Category:      p.Category,
		SKU:           p.SKU,
		Price:         p.Price,
		SalePrice:     p.SalePrice,
		StockQuantity: p.StockQuantity,
		Status:        product.StatusActive,
	}
	for _, v := range p.Variations {
		pv := product.Variation{
			SKU:           v.SKU,
			Price:         v.Price,
			SalePrice:     v.SalePrice,
			StockQuantity: v.StockQuantity,
		}
		for _, o := range v.Options {
			pv.Options = append(pv.Options, product.Option{Type: o.Type, Value: o.Value})
		}
		out.Variations = append(out.Variations, pv)
	}
	return out
}

func intPtr(v int) *int { return &v }

// coupons are the promotional codes every fresh install starts with.
var coupons = []coupon.Coupon{
	{
		Code:          "WELCOME10",
		Description:   "10% off your first order",
		Type:          coupon.TypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		MaximumDiscountAmount: decimal.NullDecimal{
			Decimal: decimal.NewFromInt(5000),
			Valid:   true,
		},
		UsageLimitPerCustomer: intPtr(1),
	},
	{
		Code:               "SAVE2000",
		Description:        "2000 off orders above 20000",
		Type:               coupon.TypeFixedAmount,
		DiscountValue:      decimal.NewFromInt(2000),
		MinimumOrderAmount: decimal.NewFromInt(20000),
		UsageLimit:         intPtr(500),
	},
	{
		Code:          "FREESHIP",
		Description:   "Free standard shipping",
		Type:          coupon.TypeFreeShipping,
		DiscountValue: decimal.Zero,
	},
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		var cfg config
		loader := aconfig.LoaderFor(&cfg, aconfig.Config{
			EnvPrefix:        "SHOP_SEED",
			AllowUnknownEnvs: true,
			SkipFiles:        true,
		})
		if err := loader.Load(); err != nil {
			return errors.Wrap(err, "load config")
		}
		if cfg.DatabaseDSN == "" {
			cfg.DatabaseDSN = os.Getenv("DATABASE_URL")
		}
		if cfg.DatabaseDSN == "" {
			return errors.New("database DSN is required: set SHOP_SEED_DATABASE_DSN or DATABASE_URL")
		}
		return run(zctx.Base(ctx, lg), cfg)
	})
}

func run(ctx context.Context, cfg config) error {
	lg := zctx.From(ctx)
	dbCfg := sqlstore.Config{DSN: cfg.DatabaseDSN}

	lg.Info("Running migrations")
	if err := sqlstore.Migrate(ctx, dbCfg); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	db, err := sqlstore.Open(ctx, dbCfg)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	if err := seedSettings(ctx, db.Settings()); err != nil {
		return errors.Wrap(err, "seed settings")
	}
	if err := seedTemplates(ctx, db.Templates(), now); err != nil {
		return errors.Wrap(err, "seed templates")
	}
	if err := seedCatalog(ctx, product.NewService(db.Products(), db), cfg.CatalogFile); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedCoupons(ctx, db.Coupons(), now); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAdmin(ctx, db.Users(), cfg, now); err != nil {
		return errors.Wrap(err, "seed admin")
	}
	lg.Info("Seed completed")
	return nil
}

// seedSettings writes default pricing settings without overwriting values an
// admin already changed.
func seedSettings(ctx context.Context, repo settings.Repository) error {
	current, err := repo.All(ctx)
	if err != nil {
		return err
	}
	defaults := map[string]string{
		settings.KeyTaxRate:               pricing.DefaultTaxRate.String(),
		settings.KeyShippingCostStandard:  pricing.DefaultShippingCostStandard.String(),
		settings.KeyFreeShippingThreshold: pricing.DefaultFreeShippingThreshold.String(),
	}
	missing := make(map[string]string)
	for k, v := range defaults {
		if _, ok := current[k]; !ok {
			missing[k] = v
		}
	}
	if len(missing) == 0 {
		return nil
	}
	zctx.From(ctx).Info("Writing default settings", zap.Int("count", len(missing)))
	return repo.Upsert(ctx, missing)
}

func seedTemplates(ctx context.Context, repo *sqlstore.TemplateRepo, now time.Time) error {
	for _, t := range notify.Builtin() {
		if _, err := repo.FindTemplate(ctx, t.Name); err == nil {
			continue
		} else if !errors.Is(err, notify.ErrTemplateNotFound) {
			return err
		}
		if err := repo.Upsert(ctx, t, now); err != nil {
			return err
		}
		zctx.From(ctx).Info("Stored email template", zap.String("name", t.Name))
	}
	return nil
}

func seedCatalog(ctx context.Context, svc *product.Service, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}
	var items []productJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "parse catalog")
	}

	lg := zctx.From(ctx)
	for _, item := range items {
		p := item.toDomain()
		err := svc.Create(ctx, p)
		switch {
		case err == nil:
			lg.Info("Created product", zap.String("id", p.ID), zap.String("slug", p.Slug))
		case apperr.KindOf(err) == apperr.KindConflict:
			lg.Debug("Product exists", zap.String("sku", item.SKU))
		default:
			return errors.Wrapf(err, "create %s", item.SKU)
		}
	}
	return nil
}

func seedCoupons(ctx context.Context, repo *sqlstore.CouponRepo, now time.Time) error {
	for _, c := range coupons {
		existing, err := repo.FindByCode(ctx, c.Code)
		switch {
		case err == nil:
			c.ID = existing.ID
			c.CreatedAt = existing.CreatedAt
		case errors.Is(err, coupon.ErrNotFound):
			c.ID = uuid.NewString()
			c.CreatedAt = now
		default:
			return err
		}
		c.IsActive = true
		c.UpdatedAt = now
		if err := repo.Upsert(ctx, &c); err != nil {
			return err
		}
		zctx.From(ctx).Info("Upserted coupon", zap.String("code", c.Code))
	}
	return nil
}

func seedAdmin(ctx context.Context, repo *sqlstore.UserRepo, cfg config, now time.Time) error {
	if cfg.AdminPassword == "" {
		zctx.From(ctx).Info("No admin password given, skipping admin account")
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	u := &auth.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         cfg.AdminName,
		Role:         auth.RoleAdmin,
		CreatedAt:    now,
	}
	if existing, err := repo.FindByEmail(ctx, email); err == nil {
		u.ID = existing.ID
		u.CreatedAt = existing.CreatedAt
	}
	if err := repo.UpsertUser(ctx, u); err != nil {
		return err
	}
	zctx.From(ctx).Info("Upserted admin account", zap.String("email", email))
	return nil
}
