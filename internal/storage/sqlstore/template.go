package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/xenking/oolio-shop/internal/domain/notify"
)

var _ notify.TemplateStore = (*TemplateRepo)(nil)

// TemplateRepo reads email templates.
type TemplateRepo struct {
	q sqlx.ExtContext
}

// NewTemplateRepo binds the repository to a pool or transaction.
func NewTemplateRepo(q sqlx.ExtContext) *TemplateRepo {
	return &TemplateRepo{q: q}
}

// FindTemplate returns the template stored under name.
func (r *TemplateRepo) FindTemplate(ctx context.Context, name string) (*notify.Template, error) {
	var row struct {
		Name    string `db:"name"`
		Subject string `db:"subject"`
		Body    string `db:"body"`
	}
	err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(
		"SELECT name, subject, body FROM email_templates WHERE name = ?"), name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, notify.ErrTemplateNotFound
	case err != nil:
		return nil, errors.Wrapf(err, "get template %s", name)
	}
	return &notify.Template{Name: row.Name, Subject: row.Subject, Body: row.Body}, nil
}

// Upsert stores a template by name.
func (r *TemplateRepo) Upsert(ctx context.Context, t notify.Template, at time.Time) error {
	query := "INSERT INTO email_templates (id, name, subject, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
	switch dialectOf(r.q) {
	case Postgres:
		query += " ON CONFLICT (name) DO UPDATE SET subject = EXCLUDED.subject, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at"
	default:
		query += " ON DUPLICATE KEY UPDATE subject = VALUES(subject), body = VALUES(body), updated_at = VALUES(updated_at)"
	}
	_, err := r.q.ExecContext(ctx, r.q.Rebind(query), uuid.NewString(), t.Name, t.Subject, t.Body, at, at)
	if err != nil {
		return errors.Wrapf(err, "upsert template %s", t.Name)
	}
	return nil
}
