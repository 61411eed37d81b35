// Package sqlstore implements the shop repositories on MySQL or PostgreSQL
// through sqlx. Queries are written with ? placeholders and rebound for the
// active driver.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-sql-driver/mysql"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// driverName is the database/sql driver name sqlx uses to pick the bind type.
func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "mysql"
}

// Config describes how to reach the database.
type Config struct {
	// Dialect is mysql or postgres. Empty means detect from DSN.
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DetectDialect guesses the dialect from a DSN. URLs with a postgres scheme
// select Postgres; everything else is a go-sql-driver/mysql DSN.
func DetectDialect(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return Postgres
	}
	return MySQL
}

func (c Config) dialect() Dialect {
	if c.Dialect != "" {
		return c.Dialect
	}
	return DetectDialect(c.DSN)
}

// DB is the shared connection pool.
type DB struct {
	db      *sqlx.DB
	dialect Dialect
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dialect := cfg.dialect()
	sqlDB, err := openSQL(dialect, cfg.DSN, false)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	db := sqlx.NewDb(sqlDB, dialect.driverName())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return &DB{db: db, dialect: dialect}, nil
}

// openSQL builds a *sql.DB for the dialect. multiStatements is only used by
// migrations, whose files hold several statements.
func openSQL(dialect Dialect, dsn string, multiStatements bool) (*sql.DB, error) {
	switch dialect {
	case Postgres:
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "parse postgres dsn")
		}
		return stdlib.OpenDB(*cfg, stdlib.OptionAfterConnect(func(_ context.Context, conn *pgx.Conn) error {
			pgxdecimal.Register(conn.TypeMap())
			return nil
		})), nil
	case MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "parse mysql dsn")
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		// Report matched rows so updates that change nothing still count.
		cfg.ClientFoundRows = true
		cfg.MultiStatements = multiStatements
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "create mysql connector")
		}
		return sql.OpenDB(connector), nil
	default:
		return nil, errors.Errorf("unsupported dialect %q", dialect)
	}
}

// Dialect returns the active backend.
func (d *DB) Dialect() Dialect { return d.dialect }

// PingContext checks connectivity. Used by the readiness probe.
func (d *DB) PingContext(ctx context.Context) error { return d.db.PingContext(ctx) }

// Close releases the pool.
func (d *DB) Close() error { return d.db.Close() }

// InTx runs fn in a transaction. The transaction is committed when fn returns
// nil and rolled back otherwise, including when fn panics.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) (err error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			zctx.From(ctx).Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// dialectOf reads the backend from the driver name. Repositories take a
// sqlx.ExtContext so they run on the pool or inside a transaction alike.
func dialectOf(q sqlx.ExtContext) Dialect {
	if q.DriverName() == "pgx" {
		return Postgres
	}
	return MySQL
}

// isUniqueViolation reports a duplicate key error on either backend.
func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// limitOffset appends a page clause with its arguments.
func limitOffset(query string, args []any, limit, offset int) (string, []any) {
	return query + " LIMIT ? OFFSET ?", append(args, limit, offset)
}
