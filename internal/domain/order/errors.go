package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/apperr"
)

var (
	// ErrEmptyItems is returned for an order without lines.
	ErrEmptyItems = apperr.Validation("Order must contain at least one item",
		apperr.FieldError{Field: "items", Message: "at least one item is required"})
	// ErrNotCancellable is returned when a customer cancels a non-pending order.
	ErrNotCancellable = apperr.BusinessRule("Only pending orders can be cancelled")
	// ErrOrderCancelled is returned when paying for a cancelled order.
	ErrOrderCancelled = apperr.BusinessRule("Cannot confirm payment for a cancelled order")
)

// OrderNotFoundError indicates a requested order does not exist or is not
// visible to the caller.
type OrderNotFoundError struct {
	OrderID string
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}

// Kind implements apperr.Kinder.
func (e *OrderNotFoundError) Kind() apperr.Kind { return apperr.KindNotFound }

// ProductNotFoundError indicates a requested product does not exist or is not
// active.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Kind implements apperr.Kinder.
func (e *ProductNotFoundError) Kind() apperr.Kind { return apperr.KindNotFound }

// VariationNotFoundError indicates a variation is unknown or belongs to
// another product.
type VariationNotFoundError struct {
	ProductID   string
	VariationID string
}

func (e *VariationNotFoundError) Error() string {
	return fmt.Sprintf("variation %s of product %s not found", e.VariationID, e.ProductID)
}

// Kind implements apperr.Kinder.
func (e *VariationNotFoundError) Kind() apperr.Kind { return apperr.KindNotFound }

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// Kind implements apperr.Kinder.
func (e *InvalidQuantityError) Kind() apperr.Kind { return apperr.KindValidation }

// InsufficientStockError indicates a line asks for more than is in stock.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s: %d available, %d requested", e.Name, max(e.Available, 0), e.Requested)
}

// Kind implements apperr.Kinder.
func (e *InsufficientStockError) Kind() apperr.Kind { return apperr.KindBusinessRule }

// PriceMismatchError indicates a client price that differs from the catalog.
type PriceMismatchError struct {
	ProductID string
	Expected  decimal.Decimal
	Got       decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("Price for product %s has changed to %s", e.ProductID, e.Expected.StringFixed(2))
}

// Kind implements apperr.Kinder.
func (e *PriceMismatchError) Kind() apperr.Kind { return apperr.KindBusinessRule }

// InvalidTransitionError indicates a status change the policy forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("Cannot change order status from %s to %s", e.From, e.To)
}

// Kind implements apperr.Kinder.
func (e *InvalidTransitionError) Kind() apperr.Kind { return apperr.KindBusinessRule }
