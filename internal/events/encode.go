// Package events publishes committed order changes to a message bus.
package events

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/domain/order"
)

// encodeOrderEvent renders the event as a compact JSON document.
func encodeOrderEvent(e order.Event) []byte {
	var w jx.Encoder
	w.ObjStart()
	w.FieldStart("type")
	w.Str(e.Type)
	w.FieldStart("occurred_at")
	w.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	if e.Actor != "" {
		w.FieldStart("actor")
		w.Str(e.Actor)
	}
	if e.PreviousStatus != "" {
		w.FieldStart("previous_status")
		w.Str(string(e.PreviousStatus))
	}
	if o := e.Order; o != nil {
		w.FieldStart("order")
		encodeOrder(&w, o)
	}
	w.ObjEnd()
	return w.Bytes()
}

func encodeOrder(w *jx.Encoder, o *order.Order) {
	w.ObjStart()
	str := func(name, v string) {
		w.FieldStart(name)
		w.Str(v)
	}
	money := func(name string, v decimal.Decimal) {
		w.FieldStart(name)
		w.Str(v.StringFixed(2))
	}
	str("id", o.ID)
	if o.UserID != "" {
		str("user_id", o.UserID)
	}
	str("customer_email", o.CustomerEmail)
	str("status", string(o.Status))
	str("payment_status", string(o.PaymentStatus))
	money("subtotal", o.Subtotal)
	money("tax_amount", o.TaxAmount)
	money("shipping_cost", o.ShippingCost)
	money("discount_amount", o.DiscountAmount)
	money("total_amount", o.TotalAmount)
	if o.CouponCode != "" {
		str("coupon_code", o.CouponCode)
	}
	if o.TrackingNumber != "" {
		str("tracking_number", o.TrackingNumber)
	}

	w.FieldStart("items")
	w.ArrStart()
	for _, it := range o.Items {
		w.ObjStart()
		str("product_id", it.ProductID)
		if it.VariationID != "" {
			str("variation_id", it.VariationID)
		}
		str("product_name", it.ProductName)
		w.FieldStart("quantity")
		w.Int(it.Quantity)
		money("price", it.Price)
		money("total", it.Total)
		w.ObjEnd()
	}
	w.ArrEnd()
	w.ObjEnd()
}
