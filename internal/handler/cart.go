package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xenking/oolio-shop/internal/domain/cart"
	"github.com/xenking/oolio-shop/internal/domain/pricing"
)

type cartItemView struct {
	ID          string            `json:"id"`
	ProductID   string            `json:"product_id"`
	VariationID string            `json:"variation_id,omitempty"`
	ProductName string            `json:"product_name"`
	Quantity    int               `json:"quantity"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Price       amount            `json:"price"`
	LineTotal   amount            `json:"line_total"`
}

func toCartItemView(it *cart.Item) cartItemView {
	return cartItemView{
		ID:          it.ID,
		ProductID:   it.ProductID,
		VariationID: it.VariationID,
		ProductName: it.ProductName,
		Quantity:    it.Quantity,
		Attributes:  it.Attributes,
		Price:       amount(it.Price),
		LineTotal:   amount(it.LineTotal()),
	}
}

type totalsView struct {
	Subtotal       amount `json:"subtotal"`
	TaxRate        amount `json:"tax_rate"`
	TaxAmount      amount `json:"tax_amount"`
	ShippingCost   amount `json:"shipping_cost"`
	DiscountAmount amount `json:"discount_amount"`
	TotalAmount    amount `json:"total_amount"`
}

func toTotalsView(t pricing.Totals) totalsView {
	return totalsView{
		Subtotal:       amount(t.Subtotal),
		TaxRate:        amount(t.TaxRate),
		TaxAmount:      amount(t.TaxAmount),
		ShippingCost:   amount(t.ShippingCost),
		DiscountAmount: amount(t.DiscountAmount),
		TotalAmount:    amount(t.TotalAmount),
	}
}

type cartView struct {
	Items       []cartItemView `json:"items"`
	ItemCount   int            `json:"item_count"`
	Totals      totalsView     `json:"totals"`
	CouponCode  string         `json:"coupon_code,omitempty"`
	CouponError string         `json:"coupon_error,omitempty"`
}

type addCartItemBody struct {
	ProductID   string            `json:"product_id" validate:"required"`
	VariationID string            `json:"variation_id"`
	Quantity    int               `json:"quantity" validate:"required,gt=0"`
	Attributes  map[string]string `json:"attributes"`
}

type updateCartItemBody struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) getCart(c *gin.Context) {
	sum, err := h.svc.Carts.Summary(c.Request.Context(), ownerOf(c), c.Query("coupon_code"))
	if err != nil {
		fail(c, err)
		return
	}
	out := cartView{
		Items:       make([]cartItemView, len(sum.Items)),
		ItemCount:   sum.ItemCount,
		Totals:      toTotalsView(sum.Totals),
		CouponCode:  sum.CouponCode,
		CouponError: sum.CouponError,
	}
	for i := range sum.Items {
		out.Items[i] = toCartItemView(&sum.Items[i])
	}
	respond(c, http.StatusOK, "", out)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var body addCartItemBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	it, err := h.svc.Carts.Add(c.Request.Context(), ownerOf(c), cart.AddRequest{
		ProductID:   body.ProductID,
		VariationID: body.VariationID,
		Quantity:    body.Quantity,
		Attributes:  body.Attributes,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Item added to cart", toCartItemView(it))
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var body updateCartItemBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	if err := h.svc.Carts.UpdateQuantity(c.Request.Context(), ownerOf(c), c.Param("id"), body.Quantity); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Cart updated", nil)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	if err := h.svc.Carts.Remove(c.Request.Context(), ownerOf(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Item removed from cart", nil)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.svc.Carts.Clear(c.Request.Context(), ownerOf(c)); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Cart cleared", nil)
}
