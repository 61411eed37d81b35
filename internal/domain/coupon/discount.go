package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount computes the amount c takes off an order with the given subtotal
// and shipping cost, rounded to cents.
func Discount(c *Coupon, subtotal, shipping decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch c.Type {
	case TypePercentage:
		amount = subtotal.Mul(c.DiscountValue).Div(hundred)
		if c.MaximumDiscountAmount.Valid && amount.GreaterThan(c.MaximumDiscountAmount.Decimal) {
			amount = c.MaximumDiscountAmount.Decimal
		}
	case TypeFixedAmount:
		amount = decimal.Min(c.DiscountValue, subtotal)
	case TypeFreeShipping:
		amount = shipping
	default:
		return decimal.Zero, errors.Errorf("unsupported coupon type: %q", c.Type)
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2), nil
}
