package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"github.com/xenking/oolio-shop/internal/domain/auth"
)

var _ auth.Repository = (*UserRepo)(nil)

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Name         string    `db:"name"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

// UserRepo implements auth.Repository.
type UserRepo struct {
	q sqlx.ExtContext
}

// NewUserRepo binds the repository to a pool or transaction.
func NewUserRepo(q sqlx.ExtContext) *UserRepo {
	return &UserRepo{q: q}
}

// CreateUser inserts a user. A taken email yields auth.ErrEmailTaken.
func (r *UserRepo) CreateUser(ctx context.Context, u *auth.User) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO users
		(id, email, password_hash, name, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		u.ID, u.Email, u.PasswordHash, u.Name, string(u.Role), u.CreatedAt)
	if isUniqueViolation(err) {
		return auth.ErrEmailTaken
	}
	if err != nil {
		return errors.Wrap(err, "insert user")
	}
	return nil
}

// FindByEmail looks a user up by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.findBy(ctx, "email", email)
}

// FindByID returns one user.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return r.findBy(ctx, "id", id)
}

func (r *UserRepo) findBy(ctx context.Context, column, value string) (*auth.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(
		"SELECT id, email, password_hash, name, role, created_at FROM users WHERE "+column+" = ?"), value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, auth.ErrUserNotFound
	case err != nil:
		return nil, errors.Wrap(err, "get user")
	}
	return &auth.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Name:         row.Name,
		Role:         auth.Role(row.Role),
		CreatedAt:    row.CreatedAt,
	}, nil
}

// UpdatePassword replaces the stored bcrypt hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, userID, hash string) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind("UPDATE users SET password_hash = ? WHERE id = ?"), hash, userID)
	if err != nil {
		return errors.Wrap(err, "update password")
	}
	return requireRow(res, auth.ErrUserNotFound)
}

// CreatePasswordReset stores a hashed reset token.
func (r *UserRepo) CreatePasswordReset(ctx context.Context, pr *auth.PasswordReset) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO password_resets
		(id, user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`),
		pr.ID, pr.UserID, pr.TokenHash, pr.ExpiresAt, pr.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert password reset")
	}
	return nil
}

// FindPasswordReset looks a reset up by token hash. Expiry is checked by the caller.
func (r *UserRepo) FindPasswordReset(ctx context.Context, tokenHash string) (*auth.PasswordReset, error) {
	var row struct {
		ID        string    `db:"id"`
		UserID    string    `db:"user_id"`
		TokenHash string    `db:"token_hash"`
		ExpiresAt time.Time `db:"expires_at"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(
		"SELECT id, user_id, token_hash, expires_at, created_at FROM password_resets WHERE token_hash = ?"), tokenHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, auth.ErrResetNotFound
	case err != nil:
		return nil, errors.Wrap(err, "get password reset")
	}
	return &auth.PasswordReset{
		ID:        row.ID,
		UserID:    row.UserID,
		TokenHash: row.TokenHash,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}, nil
}

// DeletePasswordResets drops every pending reset of the user.
func (r *UserRepo) DeletePasswordResets(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind("DELETE FROM password_resets WHERE user_id = ?"), userID)
	if err != nil {
		return errors.Wrap(err, "delete password resets")
	}
	return nil
}

// UpsertUser creates the user or refreshes name, role and hash of an existing
// email. Used by the seeder to provision the admin account.
func (r *UserRepo) UpsertUser(ctx context.Context, u *auth.User) error {
	query := `INSERT INTO users (id, email, password_hash, name, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	switch dialectOf(r.q) {
	case Postgres:
		query += ` ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash,
			name = EXCLUDED.name, role = EXCLUDED.role`
	default:
		query += ` ON DUPLICATE KEY UPDATE password_hash = VALUES(password_hash), name = VALUES(name), role = VALUES(role)`
	}
	_, err := r.q.ExecContext(ctx, r.q.Rebind(query),
		u.ID, u.Email, u.PasswordHash, u.Name, string(u.Role), u.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "upsert user %s", u.Email)
	}
	return nil
}
