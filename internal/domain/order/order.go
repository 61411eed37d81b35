package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/coupon"
	"github.com/xenking/oolio-shop/internal/domain/paging"
	"github.com/xenking/oolio-shop/internal/domain/pricing"
	"github.com/xenking/oolio-shop/internal/domain/product"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Address is a shipping address, stored as JSON on the order row.
type Address struct {
	FullName     string `json:"full_name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Country      string `json:"country"`
}

// Validate returns the missing required fields.
func (a Address) Validate() []apperr.FieldError {
	var fields []apperr.FieldError
	required := []struct{ name, value string }{
		{"shipping_address.full_name", a.FullName},
		{"shipping_address.phone", a.Phone},
		{"shipping_address.address_line1", a.AddressLine1},
		{"shipping_address.city", a.City},
		{"shipping_address.country", a.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			fields = append(fields, apperr.FieldError{Field: r.name, Message: "is required"})
		}
	}
	return fields
}

// Order is a placed customer order. Monetary fields carry two decimals and
// TotalAmount is the sum of the rounded components.
type Order struct {
	ID              string
	UserID          string
	CustomerEmail   string
	CustomerName    string
	Status          Status
	PaymentStatus   PaymentStatus
	PaymentMethod   string
	Subtotal        decimal.Decimal
	TaxAmount       decimal.Decimal
	TaxRate         decimal.Decimal
	ShippingCost    decimal.Decimal
	DiscountAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
	ShippingAddress Address
	CouponID        string
	CouponCode      string
	TrackingNumber  string
	Notes           string
	Items           []Item
	History         []HistoryEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// applyTotals copies calculated totals onto the order.
func (o *Order) applyTotals(t pricing.Totals) {
	o.Subtotal = t.Subtotal
	o.TaxAmount = t.TaxAmount
	o.TaxRate = t.TaxRate
	o.ShippingCost = t.ShippingCost
	o.DiscountAmount = t.DiscountAmount
	o.TotalAmount = t.TotalAmount
}

// Item is an order line with name and price snapshots.
type Item struct {
	ID          string
	OrderID     string
	ProductID   string
	VariationID string
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	Total       decimal.Decimal
}

// HistoryEntry is one append-only status history row.
type HistoryEntry struct {
	ID        string
	OrderID   string
	Status    Status
	Notes     string
	ChangedBy string
	CreatedAt time.Time
}

// ErrNotFound is returned by repositories when no order matches.
var ErrNotFound = apperr.NotFound("order")

// Filter narrows an order listing.
type Filter struct {
	UserID string
	Status Status
	Page   paging.Request
}

// Repository defines order persistence.
type Repository interface {
	// Insert stores the order row and its items.
	Insert(ctx context.Context, o *Order) error
	// Get returns the order with items and history.
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate locks the order row and returns it with items.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, int, error)
	UpdateStatus(ctx context.Context, id string, status Status, trackingNumber string, at time.Time) error
	UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus, at time.Time) error
	AppendHistory(ctx context.Context, h *HistoryEntry) error
}

// Tx exposes the repositories bound to one open transaction.
type Tx interface {
	Orders() Repository
	Stock() product.StockRepository
	Coupons() coupon.Repository
}

// Store runs fn inside a transaction, committing when it returns nil and
// rolling back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// SettingsProvider returns the current pricing settings.
type SettingsProvider interface {
	Pricing(ctx context.Context) (pricing.Settings, error)
}

// Config holds order policy switches.
type Config struct {
	// TrustClientPrice keeps the client-supplied line price as the snapshot.
	// When false a price differing from the catalog is rejected.
	TrustClientPrice bool
	// StrictTransitions enforces the allowed transition table.
	StrictTransitions bool
	// AdminEmail receives admin alerts. Empty disables them.
	AdminEmail string
}

// Viewer scopes reads: customers only see their own orders.
type Viewer struct {
	UserID string
	// All grants access to every order.
	All bool
}

func (v Viewer) canSee(o *Order) bool {
	return v.All || (v.UserID != "" && o.UserID == v.UserID)
}
