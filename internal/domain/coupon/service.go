package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/domain/paging"
)

// UsageReport summarizes the redemptions of one coupon.
type UsageReport struct {
	Coupon        *Coupon
	Usages        []Usage
	TotalDiscount decimal.Decimal
}

// Service manages coupon definitions.
type Service struct {
	repo AdminRepository
	now  func() time.Time
}

// NewService creates a coupon administration Service.
func NewService(repo AdminRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns a page of coupons.
func (s *Service) List(ctx context.Context, page paging.Request) ([]Coupon, paging.Meta, error) {
	items, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, paging.Meta{}, errors.Wrap(err, "list coupons")
	}
	return items, paging.NewMeta(page, total), nil
}

// Get returns a coupon by id.
func (s *Service) Get(ctx context.Context, id string) (*Coupon, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}
	return c, nil
}

// Create validates and stores a new coupon. The code is stored uppercase.
func (s *Service) Create(ctx context.Context, c *Coupon) error {
	c.Code = NormalizeCode(c.Code)
	if err := validateDefinition(c); err != nil {
		return err
	}

	now := s.now().UTC()
	c.ID = uuid.NewString()
	c.UsedCount = 0
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.repo.Create(ctx, c); err != nil {
		return errors.Wrap(err, "create coupon")
	}
	return nil
}

// Update replaces the editable fields of an existing coupon. The used count
// is preserved.
func (s *Service) Update(ctx context.Context, c *Coupon) error {
	existing, err := s.repo.GetByID(ctx, c.ID)
	if err != nil {
		return errors.Wrap(err, "get coupon")
	}

	c.Code = NormalizeCode(c.Code)
	if err := validateDefinition(c); err != nil {
		return err
	}
	c.UsedCount = existing.UsedCount
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, c); err != nil {
		return errors.Wrap(err, "update coupon")
	}
	return nil
}

// Deactivate disables a coupon. Coupons are never deleted since usage rows
// reference them.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "get coupon")
	}
	c.IsActive = false
	c.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return errors.Wrap(err, "deactivate coupon")
	}
	return nil
}

// Usage returns the redemption history of a coupon.
func (s *Service) Usage(ctx context.Context, id string) (*UsageReport, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}
	usages, err := s.repo.ListUsage(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "list usage")
	}

	total := decimal.Zero
	for _, u := range usages {
		total = total.Add(u.DiscountAmount)
	}
	return &UsageReport{Coupon: c, Usages: usages, TotalDiscount: total}, nil
}
