package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/paging"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage discounts a percentage of the subtotal, optionally capped.
	TypePercentage Type = "percentage"
	// TypeFixedAmount discounts a fixed amount, never more than the subtotal.
	TypeFixedAmount Type = "fixed_amount"
	// TypeFreeShipping discounts the shipping cost.
	TypeFreeShipping Type = "free_shipping"
)

// Valid reports whether t is a known coupon type.
func (t Type) Valid() bool {
	switch t {
	case TypePercentage, TypeFixedAmount, TypeFreeShipping:
		return true
	}
	return false
}

// ErrNotFound is returned by repositories when no coupon matches.
var ErrNotFound = apperr.NotFound("coupon")

// Coupon is a discount code with validity, usage and amount constraints.
type Coupon struct {
	ID                    string
	Code                  string
	Description           string
	Type                  Type
	DiscountValue         decimal.Decimal
	MinimumOrderAmount    decimal.Decimal
	MaximumDiscountAmount decimal.NullDecimal
	UsageLimit            *int
	UsageLimitPerCustomer *int
	StartsAt              *time.Time
	ExpiresAt             *time.Time
	UsedCount             int
	IsActive              bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Usage records a coupon redemption by an order. Rows are append-only.
type Usage struct {
	ID             string
	CouponID       string
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
	UsedAt         time.Time
}

// NormalizeCode canonicalizes a user-entered coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository is the coupon storage used during validation and redemption.
type Repository interface {
	// FindByCode returns ErrNotFound when no coupon has the normalized code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	CountCustomerUsage(ctx context.Context, couponID, userID string) (int, error)
	// RecordUsage increments the coupon's used count and appends a usage row.
	// The increment respects usage_limit; ErrUsageLimitReached means no
	// redemption was left.
	RecordUsage(ctx context.Context, u *Usage) error
}

// AdminRepository adds the management operations on top of Repository.
type AdminRepository interface {
	Repository
	List(ctx context.Context, page paging.Request) ([]Coupon, int, error)
	GetByID(ctx context.Context, id string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	ListUsage(ctx context.Context, couponID string) ([]Usage, error)
}

// ErrDuplicateCode is returned when a coupon code is already taken.
var ErrDuplicateCode = apperr.Conflict("Coupon code already exists")

// validateWindow rejects an inverted validity window.
func validateWindow(c *Coupon) error {
	if c.StartsAt != nil && c.ExpiresAt != nil && !c.StartsAt.Before(*c.ExpiresAt) {
		return apperr.Validation("Invalid coupon dates",
			apperr.FieldError{Field: "expires_at", Message: "must be after starts_at"})
	}
	return nil
}

func validateDefinition(c *Coupon) error {
	var fields []apperr.FieldError
	if c.Code == "" {
		fields = append(fields, apperr.FieldError{Field: "code", Message: "is required"})
	}
	if !c.Type.Valid() {
		fields = append(fields, apperr.FieldError{Field: "type", Message: "must be one of percentage, fixed_amount, free_shipping"})
	}
	if c.DiscountValue.IsNegative() {
		fields = append(fields, apperr.FieldError{Field: "discount_value", Message: "must not be negative"})
	}
	if c.Type == TypePercentage && c.DiscountValue.GreaterThan(hundred) {
		fields = append(fields, apperr.FieldError{Field: "discount_value", Message: "must not exceed 100"})
	}
	if len(fields) > 0 {
		return apperr.Validation("Invalid coupon", fields...)
	}
	return validateWindow(c)
}

// Validate checks the definition of c the way Service.Create does.
func (c *Coupon) Validate() error { return validateDefinition(c) }
