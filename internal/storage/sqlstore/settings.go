package sqlstore

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"github.com/xenking/oolio-shop/internal/domain/settings"
)

var _ settings.Repository = (*SettingsRepo)(nil)

// SettingsRepo implements settings.Repository over the key/value table.
type SettingsRepo struct {
	q   sqlx.ExtContext
	now func() time.Time
}

// NewSettingsRepo binds the repository to a pool or transaction.
func NewSettingsRepo(q sqlx.ExtContext) *SettingsRepo {
	return &SettingsRepo{q: q, now: time.Now}
}

// All returns every stored setting.
func (r *SettingsRepo) All(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Key   string `db:"setting_key"`
		Value string `db:"setting_value"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows, "SELECT setting_key, setting_value FROM settings"); err != nil {
		return nil, errors.Wrap(err, "list settings")
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// Upsert writes the given keys, leaving the others untouched.
func (r *SettingsRepo) Upsert(ctx context.Context, values map[string]string) error {
	query := "INSERT INTO settings (setting_key, setting_value, updated_at) VALUES (?, ?, ?)"
	switch dialectOf(r.q) {
	case Postgres:
		query += " ON CONFLICT (setting_key) DO UPDATE SET setting_value = EXCLUDED.setting_value, updated_at = EXCLUDED.updated_at"
	default:
		query += " ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value), updated_at = VALUES(updated_at)"
	}
	query = r.q.Rebind(query)

	now := r.now().UTC()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if _, err := r.q.ExecContext(ctx, query, k, values[k], now); err != nil {
			return errors.Wrapf(err, "upsert setting %s", k)
		}
	}
	return nil
}
