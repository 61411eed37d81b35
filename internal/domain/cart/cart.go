// Package cart keeps shopping cart lines for users and guest sessions.
package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/pricing"
	"github.com/xenking/oolio-shop/internal/domain/product"
)

var (
	// ErrItemNotFound is returned when a cart line does not exist for the owner.
	ErrItemNotFound = apperr.NotFound("cart item")
	// ErrNoOwner is returned when a request carries neither a user nor a
	// guest session.
	ErrNoOwner = apperr.Validation("Cart session is required")
)

// Owner identifies whose cart a line belongs to. Exactly one field is set.
type Owner struct {
	UserID    string
	SessionID string
}

// Valid reports whether exactly one of the owner fields is set.
func (o Owner) Valid() bool {
	return (o.UserID == "") != (o.SessionID == "")
}

// Item is a cart line. Price is the effective price snapshot taken when the
// line was added.
type Item struct {
	ID          string
	Owner       Owner
	ProductID   string
	VariationID string
	ProductName string
	Quantity    int
	Attributes  map[string]string
	Price       decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LineTotal is price times quantity.
func (i *Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Repository stores cart lines. Every lookup is scoped to an owner.
type Repository interface {
	Items(ctx context.Context, owner Owner) ([]Item, error)
	Get(ctx context.Context, owner Owner, itemID string) (*Item, error)
	// FindLine returns the line for the same product and variation, or
	// ErrItemNotFound.
	FindLine(ctx context.Context, owner Owner, productID, variationID string) (*Item, error)
	Insert(ctx context.Context, item *Item) error
	UpdateQuantity(ctx context.Context, owner Owner, itemID string, qty int, at time.Time) error
	// MoveToUser reassigns a guest line to a user.
	MoveToUser(ctx context.Context, itemID, userID string, at time.Time) error
	Delete(ctx context.Context, owner Owner, itemID string) error
	Clear(ctx context.Context, owner Owner) error
}

// Catalog reads products for price and stock checks.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
}

// SettingsProvider returns the current pricing settings.
type SettingsProvider interface {
	Pricing(ctx context.Context) (pricing.Settings, error)
}
