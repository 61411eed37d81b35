package sqlstore

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/xenking/oolio-shop/db"
)

// migrateLogger adapts zap to migrate.Logger.
type migrateLogger struct {
	lg *zap.SugaredLogger
}

func (l migrateLogger) Printf(format string, v ...any) { l.lg.Infof(format, v...) }
func (l migrateLogger) Verbose() bool                  { return false }

// Migrate applies all pending up migrations for the configured dialect. It
// opens a dedicated connection since migration files hold several
// statements.
func Migrate(ctx context.Context, cfg Config) error {
	dialect := cfg.dialect()
	sqlDB, err := openSQL(dialect, cfg.DSN, true)
	if err != nil {
		return err
	}

	var driver database.Driver
	switch dialect {
	case Postgres:
		driver, err = migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	default:
		driver, err = migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
	}
	if err != nil {
		_ = sqlDB.Close()
		return errors.Wrap(err, "create migrate driver")
	}

	src, err := iofs.New(db.Migrations, "migrations/"+string(dialect))
	if err != nil {
		_ = driver.Close()
		return errors.Wrap(err, "open migrations")
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		_ = driver.Close()
		return errors.Wrap(err, "create migrator")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			zctx.From(ctx).Warn("Close migrator", zap.NamedError("source", srcErr), zap.NamedError("db", dbErr))
		}
	}()
	m.Log = migrateLogger{lg: zctx.From(ctx).Sugar()}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrate up")
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return errors.Wrap(err, "read migration version")
	}
	zctx.From(ctx).Info("Migrations applied",
		zap.String("dialect", string(dialect)),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}
