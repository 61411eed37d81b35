package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/apperr"
)

// Reason identifies which eligibility rule rejected a coupon.
type Reason string

const (
	ReasonInvalid              Reason = "invalid"
	ReasonNotYetActive         Reason = "not_yet_active"
	ReasonExpired              Reason = "expired"
	ReasonMinimumNotMet        Reason = "minimum_not_met"
	ReasonUsageLimitReached    Reason = "usage_limit_reached"
	ReasonCustomerLimitReached Reason = "customer_limit_reached"
	ReasonLoginRequired        Reason = "login_required"
)

// RuleError reports a coupon that cannot be applied.
type RuleError struct {
	Reason  Reason
	Code    string
	Message string
}

func (e *RuleError) Error() string { return e.Message }

// Kind implements apperr.Kinder.
func (e *RuleError) Kind() apperr.Kind { return apperr.KindBusinessRule }

// ErrUsageLimitReached is returned by Repository.RecordUsage when the coupon
// ran out of redemptions after it was validated.
var ErrUsageLimitReached = ruleErr(ReasonUsageLimitReached, "", "Coupon usage limit reached")

func ruleErr(reason Reason, code, msg string) *RuleError {
	return &RuleError{Reason: reason, Code: code, Message: msg}
}

// Request is the input for a validation.
type Request struct {
	Code         string
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	// UserID is empty for guests.
	UserID string
}

// Result is an applicable coupon and the discount it grants.
type Result struct {
	Coupon   *Coupon
	Discount decimal.Decimal
}

// Validator checks whether a coupon applies and computes its discount.
type Validator interface {
	Validate(ctx context.Context, req Request) (*Result, error)
}

// RepoValidator implements Validator on top of a Repository. It never records
// usage; redemption happens once, when an order is placed.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

var _ Validator = (*RepoValidator)(nil)

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// WithRepository returns a copy of v reading from repo, typically one bound to
// an open transaction.
func (v *RepoValidator) WithRepository(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: v.now}
}

// Validate runs the eligibility checks in order and stops at the first
// failure.
func (v *RepoValidator) Validate(ctx context.Context, req Request) (*Result, error) {
	code := NormalizeCode(req.Code)

	c, err := v.repo.FindByCode(ctx, code)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, ruleErr(ReasonInvalid, code, "Invalid or inactive coupon")
	case err != nil:
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !c.IsActive {
		return nil, ruleErr(ReasonInvalid, code, "Invalid or inactive coupon")
	}

	now := v.now()
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return nil, ruleErr(ReasonNotYetActive, code, "Coupon is not yet active")
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return nil, ruleErr(ReasonExpired, code, "Coupon has expired")
	}

	if req.Subtotal.LessThan(c.MinimumOrderAmount) {
		return nil, ruleErr(ReasonMinimumNotMet, code,
			fmt.Sprintf("Minimum order amount of %s required", c.MinimumOrderAmount.StringFixed(2)))
	}

	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return nil, ruleErr(ReasonUsageLimitReached, code, "Coupon usage limit reached")
	}

	if c.UsageLimitPerCustomer != nil {
		if req.UserID == "" {
			return nil, ruleErr(ReasonLoginRequired, code, "Please sign in to use this coupon")
		}
		used, err := v.repo.CountCustomerUsage(ctx, c.ID, req.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "count customer usage")
		}
		if used >= *c.UsageLimitPerCustomer {
			return nil, ruleErr(ReasonCustomerLimitReached, code, "You have already used this coupon the maximum number of times")
		}
	}

	amount, err := Discount(c, req.Subtotal, req.ShippingCost)
	if err != nil {
		return nil, err
	}

	return &Result{Coupon: c, Discount: amount}, nil
}
