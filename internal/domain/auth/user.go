package auth

import (
	"context"
	"time"

	"github.com/xenking/oolio-shop/internal/apperr"
)

var (
	// ErrUserNotFound is returned when no user matches.
	ErrUserNotFound = apperr.NotFound("user")
	// ErrEmailTaken is returned when registering an existing email.
	ErrEmailTaken = apperr.Conflict("Email is already registered")
	// ErrInvalidCredentials is returned for a wrong email or password.
	ErrInvalidCredentials = apperr.Unauthorized("Invalid email or password")
	// ErrInvalidResetToken is returned for an unknown or expired reset token.
	ErrInvalidResetToken = apperr.Validation("Invalid or expired reset token")
	// ErrResetNotFound is returned by repositories when no reset row matches.
	ErrResetNotFound = apperr.NotFound("password reset")
)

// User is a registered account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         Role
	CreatedAt    time.Time
}

// Identity returns the request identity for u.
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

// PasswordReset is a pending reset. Only the sha256 of the token is stored.
type PasswordReset struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Repository stores users and password resets.
type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	UpdatePassword(ctx context.Context, userID, hash string) error
	CreatePasswordReset(ctx context.Context, r *PasswordReset) error
	FindPasswordReset(ctx context.Context, tokenHash string) (*PasswordReset, error)
	DeletePasswordResets(ctx context.Context, userID string) error
}
