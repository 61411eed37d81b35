package app

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/oolio-shop/internal/awsx"
	"github.com/xenking/oolio-shop/internal/domain/auth"
	"github.com/xenking/oolio-shop/internal/domain/cart"
	"github.com/xenking/oolio-shop/internal/domain/coupon"
	"github.com/xenking/oolio-shop/internal/domain/dashboard"
	"github.com/xenking/oolio-shop/internal/domain/notify"
	"github.com/xenking/oolio-shop/internal/domain/order"
	"github.com/xenking/oolio-shop/internal/domain/product"
	"github.com/xenking/oolio-shop/internal/domain/settings"
	"github.com/xenking/oolio-shop/internal/events"
	"github.com/xenking/oolio-shop/internal/handler"
	"github.com/xenking/oolio-shop/internal/mail"
	"github.com/xenking/oolio-shop/internal/storage/dynamo"
	"github.com/xenking/oolio-shop/internal/storage/sqlstore"
	"github.com/xenking/oolio-shop/pkg/httpmiddleware"
)

const meterName = "github.com/xenking/oolio-shop"

// Telemetry is the subset of the sdk telemetry the API needs.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// API is the wired REST API on top of an open database.
type API struct {
	Handler   *handler.Handler
	publisher events.Publisher
}

// NewAPI wires repositories, domain services and the HTTP handler.
func NewAPI(ctx context.Context, cfg *Config, db *sqlstore.DB, mp metric.MeterProvider) (*API, error) {
	var awsCfg aws.Config
	if cfg.Events.Driver == events.DriverSQS || cfg.Idempotency.Table != "" {
		loaded, err := awsx.Load(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		awsCfg = loaded
	}

	publisher, err := events.New(cfg.Events, awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create event publisher")
	}

	var mailer notify.Mailer = mail.LogMailer{}
	if cfg.Mail.SMTPHost != "" {
		smtp, err := mail.NewSMTPMailer(cfg.Mail.smtp())
		if err != nil {
			return nil, err
		}
		mailer = smtp
	}
	notifier := notify.NewDispatcher(db.Templates(), mailer, cfg.Mail.Timeout)

	metrics, err := order.NewMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, errors.Wrap(err, "create order metrics")
	}

	tokens := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	pricingSettings := settings.NewProvider(db.Settings())
	validator := coupon.NewRepoValidator(db.Coupons())

	deps := order.Deps{
		Store:     db.OrderStore(),
		Orders:    db.Orders(),
		Settings:  pricingSettings,
		Coupons:   validator,
		Notifier:  notifier,
		Publisher: publisher,
		Metrics:   metrics,
	}
	orderCfg := order.Config{
		TrustClientPrice:  cfg.Orders.TrustClientPrice,
		StrictTransitions: cfg.Orders.StrictTransitions,
		AdminEmail:        cfg.Orders.AdminEmail,
	}
	machine := order.NewStatusMachine(deps, orderCfg)

	svc := handler.Services{
		Auth: auth.NewService(db.Users(), tokens, notifier, auth.Config{
			BcryptCost: cfg.Auth.BcryptCost,
			ResetTTL:   cfg.Auth.ResetTTL,
			ResetURL:   cfg.Auth.ResetURL,
		}),
		Tokens:    tokens,
		Sessions:  auth.NewSessionSigner([]byte(cfg.Auth.SessionPepper)),
		Products:  product.NewService(db.Products(), db),
		Carts:     cart.NewService(db.Carts(), db.Products(), pricingSettings, validator),
		Coupons:   coupon.NewService(db.Coupons()),
		Validator: validator,
		Orders:    order.NewService(deps, orderCfg, machine),
		Machine:   machine,
		Settings:  settings.NewService(db.Settings(), pricingSettings),
		Dashboard: dashboard.NewService(db.Dashboard(), product.LowStockThreshold),
	}
	if cfg.Idempotency.Table != "" {
		store := dynamo.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.Idempotency.Table, cfg.Idempotency.TTL)
		svc.Idempotency = idempotencyStore{store: store}
	}

	return &API{
		Handler: handler.New(svc, handler.Config{
			SessionCookieSecure: cfg.Auth.CookieSecure,
			SessionTTL:          cfg.Auth.SessionTTL,
			IdempotencyTimeout:  cfg.Idempotency.Timeout,
		}),
		publisher: publisher,
	}, nil
}

// Close flushes the event publisher.
func (a *API) Close() error {
	return a.publisher.Close()
}

// Middlewares returns the chain every API request passes through, outermost
// first.
func Middlewares(ctx context.Context, lg *zap.Logger, cfg *Config, t Telemetry) []httpmiddleware.Middleware {
	return []httpmiddleware.Middleware{
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins:     cfg.CORS.Origins,
			Headers:     []string{"Content-Type", "Authorization", "Idempotency-Key", httpmiddleware.RequestIDHeader},
			Expose:      []string{httpmiddleware.RequestIDHeader, "Idempotent-Replayed", "Retry-After"},
			Credentials: cfg.CORS.AllowCredentials,
			MaxAge:      86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.Instrument("shop-api", t.TracerProvider(), t.MeterProvider()),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.LogRequests(),
		httpmiddleware.Recovery(),
	}
}

// HTTPHandler is the API router behind the middleware chain. It serves every
// route under /api.
func (a *API) HTTPHandler(ctx context.Context, lg *zap.Logger, cfg *Config, t Telemetry) http.Handler {
	return httpmiddleware.Wrap(a.Handler.Router(), Middlewares(ctx, lg, cfg, t)...)
}
