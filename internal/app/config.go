package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/oolio-shop/internal/awsx"
	"github.com/xenking/oolio-shop/internal/events"
	"github.com/xenking/oolio-shop/internal/mail"
	"github.com/xenking/oolio-shop/internal/storage/sqlstore"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Database    DatabaseConfig
	Auth        AuthConfig
	Mail        MailConfig
	Orders      OrdersConfig
	Events      events.Config
	Idempotency IdempotencyConfig
	AWS         awsx.Config
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// DatabaseConfig selects and tunes the SQL backend.
type DatabaseConfig struct {
	// DSN is a MySQL DSN (user:pass@tcp(host)/db) or a postgres:// URL.
	DSN             string        `usage:"Database DSN (SHOP_DATABASE_DSN or DATABASE_URL)" flag:"database-dsn"`
	Dialect         string        `default:"" usage:"mysql or postgres, detected from the DSN when empty"`
	MaxOpenConns    int           `default:"20"`
	MaxIdleConns    int           `default:"10"`
	ConnMaxLifetime time.Duration `default:"30m"`
	Migrate         bool          `default:"true" usage:"Apply migrations on start"`
}

func (c DatabaseConfig) sqlstore() sqlstore.Config {
	return sqlstore.Config{
		Dialect:         sqlstore.Dialect(c.Dialect),
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// AuthConfig configures tokens, passwords and guest sessions.
type AuthConfig struct {
	JWTSecret     string        `usage:"HS256 signing secret (SHOP_AUTH_JWT_SECRET or JWT_SECRET)" flag:"jwt-secret"`
	TokenTTL      time.Duration `default:"24h"`
	SessionPepper string        `usage:"HMAC key for guest cart cookies"`
	SessionTTL    time.Duration `default:"720h"`
	CookieSecure  bool          `default:"false"`
	BcryptCost    int           `default:"10"`
	ResetTTL      time.Duration `default:"1h"`
	ResetURL      string        `default:"http://localhost:3000/reset-password"`
}

// MailConfig configures outgoing email. An empty SMTPHost logs emails
// instead of sending them.
type MailConfig struct {
	SMTPHost     string
	SMTPPort     int    `default:"587"`
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      bool          `default:"false"`
	From         string        `default:"Shop <no-reply@shop.local>"`
	Timeout      time.Duration `default:"10s"`
}

func (c MailConfig) smtp() mail.SMTPConfig {
	return mail.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.From,
		TLS:      c.SMTPTLS,
	}
}

// OrdersConfig holds order policy switches.
type OrdersConfig struct {
	TrustClientPrice  bool   `default:"true" usage:"Keep client line prices as the order snapshot"`
	StrictTransitions bool   `default:"false" usage:"Only allow the documented status transitions"`
	AdminEmail        string `usage:"Recipient of admin order alerts"`
}

// IdempotencyConfig enables Idempotency-Key handling on checkout. An empty
// Table disables it.
type IdempotencyConfig struct {
	Table   string
	TTL     time.Duration `default:"24h"`
	Timeout time.Duration `default:"5s"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window, 0 disables"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow the guest cart cookie cross-origin" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "SHOP",
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		Files:            []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the unprefixed variables set by hosting
// platforms (DATABASE_URL, PORT, JWT_SECRET) onto the SHOP_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Database.DSN == "" {
		c.Database.DSN = os.Getenv("DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Auth.SessionPepper == "" {
		c.Auth.SessionPepper = c.Auth.JWTSecret
	}
}

func (c *Config) validate() error {
	var missing []string
	if c.Database.DSN == "" {
		missing = append(missing, "SHOP_DATABASE_DSN")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "SHOP_AUTH_JWT_SECRET")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("SHOP_AUTH_JWT_SECRET must be at least 32 bytes")
	}
	return nil
}
