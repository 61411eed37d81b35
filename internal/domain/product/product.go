package product

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/paging"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = apperr.NotFound("product")
	// ErrVariationNotFound is returned when a variation does not exist or
	// belongs to another product.
	ErrVariationNotFound = apperr.NotFound("product variation")
	// ErrDuplicate is returned when a slug or SKU is already taken.
	ErrDuplicate = apperr.Conflict("Product with this slug or SKU already exists")
)

// Status controls catalog visibility.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDraft    Status = "draft"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDraft:
		return true
	}
	return false
}

// StockStatus is derived from a stock quantity and never stored.
type StockStatus string

const (
	InStock    StockStatus = "in_stock"
	LowStock   StockStatus = "low_stock"
	OutOfStock StockStatus = "out_of_stock"
)

// LowStockThreshold is the quantity at or below which stock is low.
const LowStockThreshold = 5

// StockStatusOf derives the stock label for qty.
func StockStatusOf(qty int) StockStatus {
	switch {
	case qty <= 0:
		return OutOfStock
	case qty <= LowStockThreshold:
		return LowStock
	default:
		return InStock
	}
}

// effectivePrice returns sale when it is set and positive, price otherwise.
func effectivePrice(price decimal.Decimal, sale decimal.NullDecimal) decimal.Decimal {
	if sale.Valid && sale.Decimal.IsPositive() {
		return sale.Decimal
	}
	return price
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID            string
	Name          string
	Slug          string
	Description   string
	Category      string
	SKU           string
	Price         decimal.Decimal
	SalePrice     decimal.NullDecimal
	StockQuantity int
	Status        Status
	Variations    []Variation
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectivePrice is the price a customer pays.
func (p *Product) EffectivePrice() decimal.Decimal {
	return effectivePrice(p.Price, p.SalePrice)
}

// StockStatus derives the stock label from StockQuantity.
func (p *Product) StockStatus() StockStatus {
	return StockStatusOf(p.StockQuantity)
}

// Variation returns the variation with the given id.
func (p *Product) Variation(id string) (*Variation, bool) {
	for i := range p.Variations {
		if p.Variations[i].ID == id {
			return &p.Variations[i], true
		}
	}
	return nil, false
}

// Variation is a purchasable configuration of a product with its own price
// and stock.
type Variation struct {
	ID            string
	ProductID     string
	SKU           string
	Price         decimal.Decimal
	SalePrice     decimal.NullDecimal
	StockQuantity int
	Options       []Option
}

// EffectivePrice is the price a customer pays.
func (v *Variation) EffectivePrice() decimal.Decimal {
	return effectivePrice(v.Price, v.SalePrice)
}

// StockStatus derives the stock label from StockQuantity.
func (v *Variation) StockStatus() StockStatus {
	return StockStatusOf(v.StockQuantity)
}

// Option is a value of a variation type, e.g. Size=Large.
type Option struct {
	ID     string
	TypeID string
	Type   string
	Value  string
}

// Filter narrows a product listing.
type Filter struct {
	Category string
	Status   Status
	Search   string
	Page     paging.Request
}

// Repository defines catalog persistence.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, int, error)
	// GetByID returns the product with its variations.
	GetByID(ctx context.Context, id string) (*Product, error)
	// Create stores the product, its variations, variation types, options and
	// combinations. Callers run it inside a transaction.
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	SetStatus(ctx context.Context, id string, status Status, at time.Time) error
}

// StockRepository performs row-locked stock bookkeeping inside a transaction.
type StockRepository interface {
	// LockForUpdate locks the product row and returns it with variations.
	LockForUpdate(ctx context.Context, id string) (*Product, error)
	// DecrementStock subtracts qty only if enough stock is left and reports
	// whether a row changed. An empty variationID targets the product row.
	DecrementStock(ctx context.Context, productID, variationID string, qty int) (bool, error)
	RestoreStock(ctx context.Context, productID, variationID string, qty int) error
}

// Store runs catalog writes atomically.
type Store interface {
	InCatalogTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
