package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/notify"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// Config tunes the identity service.
type Config struct {
	BcryptCost int
	ResetTTL   time.Duration
	// ResetURL is the frontend page receiving ?token=.
	ResetURL string
}

// Session is the result of a successful sign-in.
type Session struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}

// Service handles registration, sign-in and password recovery.
type Service struct {
	users    Repository
	tokens   *TokenIssuer
	notifier notify.Sender
	cfg      Config
	now      func() time.Time
}

// NewService creates an identity Service.
func NewService(users Repository, tokens *TokenIssuer, notifier notify.Sender, cfg Config) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.ResetTTL == 0 {
		cfg.ResetTTL = time.Hour
	}
	return &Service{users: users, tokens: tokens, notifier: notifier, cfg: cfg, now: time.Now}
}

// NormalizeEmail canonicalizes an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterRequest is the input of Register.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
}

// Register creates a customer account and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	email := NormalizeEmail(req.Email)
	var fields []apperr.FieldError
	if _, err := mail.ParseAddress(email); err != nil {
		fields = append(fields, apperr.FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if len(req.Password) < MinPasswordLength {
		fields = append(fields, apperr.FieldError{Field: "password", Message: "must be at least 8 characters"})
	}
	if strings.TrimSpace(req.Name) == "" {
		fields = append(fields, apperr.FieldError{Field: "name", Message: "is required"})
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("Validation failed", fields...)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(req.Name),
		Role:         RoleCustomer,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}

	s.notifier.Send(ctx, notify.Message{
		Event: notify.EventWelcome,
		To:    u.Email,
		Data:  map[string]any{"name": u.Name},
	})

	return s.session(u)
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	switch {
	case errors.Is(err, ErrUserNotFound):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, errors.Wrap(err, "find user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

// Me returns the user behind an identity.
func (s *Service) Me(ctx context.Context, userID string) (*User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "find user")
	}
	return u, nil
}

// ForgotPassword emails a reset link. Unknown addresses succeed silently so
// the endpoint cannot be used to probe for accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	switch {
	case errors.Is(err, ErrUserNotFound):
		zctx.From(ctx).Debug("Password reset for unknown email")
		return nil
	case err != nil:
		return errors.Wrap(err, "find user")
	}

	token, err := randomToken()
	if err != nil {
		return errors.Wrap(err, "generate token")
	}
	now := s.now().UTC()
	reset := &PasswordReset{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(s.cfg.ResetTTL),
		CreatedAt: now,
	}
	if err := s.users.CreatePasswordReset(ctx, reset); err != nil {
		return errors.Wrap(err, "store reset")
	}

	s.notifier.Send(ctx, notify.Message{
		Event: notify.EventPasswordReset,
		To:    u.Email,
		Data: map[string]any{
			"name":       u.Name,
			"reset_url":  s.cfg.ResetURL + "?token=" + token,
			"expires_in": s.cfg.ResetTTL.String(),
		},
	})
	return nil
}

// ResetPassword replaces the password of the user owning token and consumes
// every pending reset of that user.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if len(password) < MinPasswordLength {
		return apperr.Validation("Validation failed",
			apperr.FieldError{Field: "password", Message: "must be at least 8 characters"})
	}

	reset, err := s.users.FindPasswordReset(ctx, HashToken(token))
	switch {
	case errors.Is(err, ErrResetNotFound):
		return ErrInvalidResetToken
	case err != nil:
		return errors.Wrap(err, "find reset")
	}
	if s.now().After(reset.ExpiresAt) {
		return ErrInvalidResetToken
	}

	u, err := s.users.FindByID(ctx, reset.UserID)
	if err != nil {
		return errors.Wrap(err, "find user")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	if err := s.users.UpdatePassword(ctx, u.ID, string(hash)); err != nil {
		return errors.Wrap(err, "update password")
	}
	if err := s.users.DeletePasswordResets(ctx, u.ID); err != nil {
		zctx.From(ctx).Warn("Delete consumed password resets", zap.Error(err))
	}

	s.notifier.Send(ctx, notify.Message{
		Event: notify.EventPasswordResetSuccess,
		To:    u.Email,
		Data:  map[string]any{"name": u.Name},
	})
	return nil
}

func (s *Service) session(u *User) (*Session, error) {
	token, exp, err := s.tokens.Issue(u.Identity())
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token, ExpiresAt: exp}, nil
}

// HashToken returns the hex sha256 of a reset token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
