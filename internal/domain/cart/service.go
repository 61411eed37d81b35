package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/coupon"
	"github.com/xenking/oolio-shop/internal/domain/pricing"
	"github.com/xenking/oolio-shop/internal/domain/product"
)

// AddRequest is the input of Add.
type AddRequest struct {
	ProductID   string
	VariationID string
	Quantity    int
	Attributes  map[string]string
}

// Summary is a priced view of a cart.
type Summary struct {
	Items     []Item
	ItemCount int
	Totals    pricing.Totals
	// CouponCode is set when a previewed coupon applies.
	CouponCode string
	// CouponError explains why a previewed coupon does not apply.
	CouponError string
}

// Service manages carts.
type Service struct {
	repo     Repository
	catalog  Catalog
	settings SettingsProvider
	coupons  coupon.Validator
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(repo Repository, catalog Catalog, settings SettingsProvider, coupons coupon.Validator) *Service {
	return &Service{repo: repo, catalog: catalog, settings: settings, coupons: coupons, now: time.Now}
}

// Items returns the lines of a cart.
func (s *Service) Items(ctx context.Context, owner Owner) ([]Item, error) {
	if !owner.Valid() {
		return nil, ErrNoOwner
	}
	items, err := s.repo.Items(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}
	return items, nil
}

// Add puts a product in the cart, merging with an identical existing line.
func (s *Service) Add(ctx context.Context, owner Owner, req AddRequest) (*Item, error) {
	if !owner.Valid() {
		return nil, ErrNoOwner
	}
	if req.Quantity <= 0 {
		return nil, apperr.Validation("Validation failed",
			apperr.FieldError{Field: "quantity", Message: "must be greater than 0"})
	}

	name, price, stock, err := s.resolve(ctx, req.ProductID, req.VariationID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	existing, err := s.repo.FindLine(ctx, owner, req.ProductID, req.VariationID)
	switch {
	case err == nil:
		qty := existing.Quantity + req.Quantity
		if qty > stock {
			return nil, stockErr(name, stock)
		}
		if err := s.repo.UpdateQuantity(ctx, owner, existing.ID, qty, now); err != nil {
			return nil, errors.Wrap(err, "update cart item")
		}
		existing.Quantity = qty
		existing.UpdatedAt = now
		return existing, nil
	case !errors.Is(err, ErrItemNotFound):
		return nil, errors.Wrap(err, "find cart item")
	}

	if req.Quantity > stock {
		return nil, stockErr(name, stock)
	}
	item := &Item{
		ID:          uuid.NewString(),
		Owner:       owner,
		ProductID:   req.ProductID,
		VariationID: req.VariationID,
		ProductName: name,
		Quantity:    req.Quantity,
		Attributes:  req.Attributes,
		Price:       price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, item); err != nil {
		return nil, errors.Wrap(err, "insert cart item")
	}
	return item, nil
}

// UpdateQuantity sets the quantity of a line. Zero removes it.
func (s *Service) UpdateQuantity(ctx context.Context, owner Owner, itemID string, qty int) error {
	if !owner.Valid() {
		return ErrNoOwner
	}
	if qty < 0 {
		return apperr.Validation("Validation failed",
			apperr.FieldError{Field: "quantity", Message: "must not be negative"})
	}
	if qty == 0 {
		return s.Remove(ctx, owner, itemID)
	}

	item, err := s.repo.Get(ctx, owner, itemID)
	if err != nil {
		return errors.Wrap(err, "get cart item")
	}
	name, _, stock, err := s.resolve(ctx, item.ProductID, item.VariationID)
	if err != nil {
		return err
	}
	if qty > stock {
		return stockErr(name, stock)
	}
	if err := s.repo.UpdateQuantity(ctx, owner, itemID, qty, s.now().UTC()); err != nil {
		return errors.Wrap(err, "update cart item")
	}
	return nil
}

// Remove deletes a line.
func (s *Service) Remove(ctx context.Context, owner Owner, itemID string) error {
	if !owner.Valid() {
		return ErrNoOwner
	}
	if err := s.repo.Delete(ctx, owner, itemID); err != nil {
		return errors.Wrap(err, "delete cart item")
	}
	return nil
}

// Clear empties a cart.
func (s *Service) Clear(ctx context.Context, owner Owner) error {
	if !owner.Valid() {
		return ErrNoOwner
	}
	if err := s.repo.Clear(ctx, owner); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Summary prices the cart and previews couponCode when given. A coupon that
// does not apply is reported in CouponError rather than failing the call.
// Previews never record coupon usage.
func (s *Service) Summary(ctx context.Context, owner Owner, couponCode string) (*Summary, error) {
	items, err := s.Items(ctx, owner)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Pricing(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load settings")
	}

	lines := make([]pricing.Line, len(items))
	count := 0
	for i, it := range items {
		lines[i] = pricing.Line{Price: it.Price, Quantity: it.Quantity}
		count += it.Quantity
	}
	sum := &Summary{
		Items:     items,
		ItemCount: count,
		Totals:    pricing.Calculate(lines, settings, pricing.Options{}),
	}
	if couponCode == "" {
		return sum, nil
	}

	res, err := s.coupons.Validate(ctx, coupon.Request{
		Code:         couponCode,
		Subtotal:     sum.Totals.Subtotal,
		ShippingCost: sum.Totals.ShippingCost,
		UserID:       owner.UserID,
	})
	var ruleErr *coupon.RuleError
	switch {
	case errors.As(err, &ruleErr):
		sum.CouponError = ruleErr.Message
	case err != nil:
		return nil, errors.Wrap(err, "validate coupon")
	default:
		sum.CouponCode = res.Coupon.Code
		sum.Totals = sum.Totals.ApplyDiscount(res.Discount)
	}
	return sum, nil
}

// MergeGuest moves a guest session's lines into a user's cart. Lines for the
// same product and variation are combined.
func (s *Service) MergeGuest(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" || userID == "" {
		return nil
	}
	guest := Owner{SessionID: sessionID}
	user := Owner{UserID: userID}

	items, err := s.repo.Items(ctx, guest)
	if err != nil {
		return errors.Wrap(err, "list guest cart")
	}
	if len(items) == 0 {
		return nil
	}

	now := s.now().UTC()
	for _, it := range items {
		existing, err := s.repo.FindLine(ctx, user, it.ProductID, it.VariationID)
		switch {
		case err == nil:
			if err := s.repo.UpdateQuantity(ctx, user, existing.ID, existing.Quantity+it.Quantity, now); err != nil {
				return errors.Wrap(err, "merge cart item")
			}
			if err := s.repo.Delete(ctx, guest, it.ID); err != nil {
				return errors.Wrap(err, "delete merged item")
			}
		case errors.Is(err, ErrItemNotFound):
			if err := s.repo.MoveToUser(ctx, it.ID, userID, now); err != nil {
				return errors.Wrap(err, "move cart item")
			}
		default:
			return errors.Wrap(err, "find cart item")
		}
	}
	return nil
}

// resolve returns the display name, effective price and stock of a product or
// one of its variations. Inactive products are treated as missing.
func (s *Service) resolve(ctx context.Context, productID, variationID string) (string, decimal.Decimal, int, error) {
	p, err := s.catalog.GetByID(ctx, productID)
	if err != nil {
		return "", decimal.Zero, 0, errors.Wrap(err, "get product")
	}
	if p.Status != product.StatusActive {
		return "", decimal.Zero, 0, product.ErrNotFound
	}
	if variationID == "" {
		return p.Name, p.EffectivePrice(), p.StockQuantity, nil
	}
	v, ok := p.Variation(variationID)
	if !ok {
		return "", decimal.Zero, 0, product.ErrVariationNotFound
	}
	return p.Name, v.EffectivePrice(), v.StockQuantity, nil
}

func stockErr(name string, available int) error {
	return apperr.BusinessRule(fmt.Sprintf("Only %d of %s available in stock", max(available, 0), name))
}
