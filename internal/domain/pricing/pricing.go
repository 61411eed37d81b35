// Package pricing derives order totals from line items and shop settings.
package pricing

import (
	"github.com/shopspring/decimal"
)

// Defaults applied when a setting is missing or unparsable.
var (
	DefaultTaxRate               = decimal.RequireFromString("7.5")
	DefaultShippingCostStandard  = decimal.NewFromInt(1500)
	DefaultFreeShippingThreshold = decimal.NewFromInt(50000)
)

var hundred = decimal.NewFromInt(100)

// Settings holds the pricing-relevant shop configuration.
type Settings struct {
	// TaxRate is a percentage, e.g. 7.5.
	TaxRate               decimal.Decimal
	ShippingCostStandard  decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// DefaultSettings returns the built-in pricing configuration.
func DefaultSettings() Settings {
	return Settings{
		TaxRate:               DefaultTaxRate,
		ShippingCostStandard:  DefaultShippingCostStandard,
		FreeShippingThreshold: DefaultFreeShippingThreshold,
	}
}

// Line is a priced quantity.
type Line struct {
	Price    decimal.Decimal
	Quantity int
}

// Options tunes a single calculation.
type Options struct {
	// ShippingOverride replaces the settings-derived shipping cost, e.g. a
	// quoted delivery price.
	ShippingOverride *decimal.Decimal
}

// Totals is the result of a calculation. All amounts carry two decimals.
type Totals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	TaxRate        decimal.Decimal
	ShippingCost   decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// Calculate prices lines against settings. Quantities are not validated.
//
// Every monetary field is rounded to cents on its own and the total is the
// sum of the rounded components, so it may differ by a cent from rounding the
// unrounded sum.
func Calculate(lines []Line, s Settings, opts Options) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	tax := subtotal.Mul(s.TaxRate).Div(hundred)

	shipping := s.ShippingCostStandard
	if subtotal.GreaterThanOrEqual(s.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	if opts.ShippingOverride != nil {
		shipping = *opts.ShippingOverride
	}

	t := Totals{
		Subtotal:       subtotal.Round(2),
		TaxAmount:      tax.Round(2),
		TaxRate:        s.TaxRate,
		ShippingCost:   shipping.Round(2),
		DiscountAmount: decimal.Zero,
	}
	t.TotalAmount = t.Subtotal.Add(t.TaxAmount).Add(t.ShippingCost)
	return t
}

// ApplyDiscount returns a copy of t with the discount rounded and the total
// recomputed from the rounded components, floored at zero.
func (t Totals) ApplyDiscount(discount decimal.Decimal) Totals {
	t.DiscountAmount = discount.Round(2)
	total := t.Subtotal.Add(t.TaxAmount).Add(t.ShippingCost).Sub(t.DiscountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	t.TotalAmount = total
	return t
}
