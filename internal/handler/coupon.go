package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/domain/coupon"
)

type couponView struct {
	ID                    string      `json:"id"`
	Code                  string      `json:"code"`
	Description           string      `json:"description"`
	Type                  coupon.Type `json:"type"`
	DiscountValue         amount      `json:"discount_value"`
	MinimumOrderAmount    amount      `json:"minimum_order_amount"`
	MaximumDiscountAmount *amount     `json:"maximum_discount_amount,omitempty"`
	UsageLimit            *int        `json:"usage_limit,omitempty"`
	UsageLimitPerCustomer *int        `json:"usage_limit_per_customer,omitempty"`
	StartsAt              *time.Time  `json:"starts_at,omitempty"`
	ExpiresAt             *time.Time  `json:"expires_at,omitempty"`
	UsedCount             int         `json:"used_count"`
	IsActive              bool        `json:"is_active"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

func toCouponView(c *coupon.Coupon) couponView {
	return couponView{
		ID:                    c.ID,
		Code:                  c.Code,
		Description:           c.Description,
		Type:                  c.Type,
		DiscountValue:         amount(c.DiscountValue),
		MinimumOrderAmount:    amount(c.MinimumOrderAmount),
		MaximumDiscountAmount: optionalAmount(c.MaximumDiscountAmount),
		UsageLimit:            c.UsageLimit,
		UsageLimitPerCustomer: c.UsageLimitPerCustomer,
		StartsAt:              c.StartsAt,
		ExpiresAt:             c.ExpiresAt,
		UsedCount:             c.UsedCount,
		IsActive:              c.IsActive,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

type couponBody struct {
	Code                  string              `json:"code" validate:"required,max=50"`
	Description           string              `json:"description"`
	Type                  coupon.Type         `json:"type" validate:"required,oneof=percentage fixed_amount free_shipping"`
	DiscountValue         decimal.Decimal     `json:"discount_value"`
	MinimumOrderAmount    decimal.Decimal     `json:"minimum_order_amount"`
	MaximumDiscountAmount decimal.NullDecimal `json:"maximum_discount_amount"`
	UsageLimit            *int                `json:"usage_limit" validate:"omitempty,gt=0"`
	UsageLimitPerCustomer *int                `json:"usage_limit_per_customer" validate:"omitempty,gt=0"`
	StartsAt              *time.Time          `json:"starts_at"`
	ExpiresAt             *time.Time          `json:"expires_at"`
	IsActive              *bool               `json:"is_active"`
}

func (b couponBody) toDomain() *coupon.Coupon {
	active := true
	if b.IsActive != nil {
		active = *b.IsActive
	}
	return &coupon.Coupon{
		Code:                  b.Code,
		Description:           b.Description,
		Type:                  b.Type,
		DiscountValue:         b.DiscountValue,
		MinimumOrderAmount:    b.MinimumOrderAmount,
		MaximumDiscountAmount: b.MaximumDiscountAmount,
		UsageLimit:            b.UsageLimit,
		UsageLimitPerCustomer: b.UsageLimitPerCustomer,
		StartsAt:              b.StartsAt,
		ExpiresAt:             b.ExpiresAt,
		IsActive:              active,
	}
}

type validateCouponBody struct {
	Code string `json:"code" validate:"required"`
	// Subtotal and ShippingCost default to the caller's cart.
	Subtotal     decimal.NullDecimal `json:"subtotal"`
	ShippingCost decimal.NullDecimal `json:"shipping_cost"`
}

type couponCheckView struct {
	Code           string      `json:"code"`
	Type           coupon.Type `json:"type"`
	Description    string      `json:"description"`
	DiscountAmount amount      `json:"discount_amount"`
}

func (h *Handler) validateCoupon(c *gin.Context) {
	var body validateCouponBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()
	owner := ownerOf(c)

	req := coupon.Request{
		Code:         body.Code,
		Subtotal:     body.Subtotal.Decimal,
		ShippingCost: body.ShippingCost.Decimal,
		UserID:       owner.UserID,
	}
	if !body.Subtotal.Valid {
		sum, err := h.svc.Carts.Summary(ctx, owner, "")
		if err != nil {
			fail(c, err)
			return
		}
		req.Subtotal = sum.Totals.Subtotal
		if !body.ShippingCost.Valid {
			req.ShippingCost = sum.Totals.ShippingCost
		}
	}

	res, err := h.svc.Validator.Validate(ctx, req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Coupon is valid", couponCheckView{
		Code:           res.Coupon.Code,
		Type:           res.Coupon.Type,
		Description:    res.Coupon.Description,
		DiscountAmount: amount(res.Discount),
	})
}

func (h *Handler) listCoupons(c *gin.Context) {
	items, meta, err := h.svc.Coupons.List(c.Request.Context(), pageOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]couponView, len(items))
	for i := range items {
		out[i] = toCouponView(&items[i])
	}
	respondList(c, out, meta)
}

func (h *Handler) createCoupon(c *gin.Context) {
	var body couponBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	cp := body.toDomain()
	if err := h.svc.Coupons.Create(c.Request.Context(), cp); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Coupon created", toCouponView(cp))
}

func (h *Handler) updateCoupon(c *gin.Context) {
	var body couponBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	cp := body.toDomain()
	cp.ID = c.Param("id")
	if err := h.svc.Coupons.Update(c.Request.Context(), cp); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Coupon updated", toCouponView(cp))
}

func (h *Handler) deleteCoupon(c *gin.Context) {
	if err := h.svc.Coupons.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Coupon deactivated", nil)
}

type usageView struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	UserID         string    `json:"user_id,omitempty"`
	DiscountAmount amount    `json:"discount_amount"`
	UsedAt         time.Time `json:"used_at"`
}

type usageReportView struct {
	Coupon        couponView  `json:"coupon"`
	Usages        []usageView `json:"usages"`
	TotalUses     int         `json:"total_uses"`
	TotalDiscount amount      `json:"total_discount"`
}

func (h *Handler) couponUsage(c *gin.Context) {
	rep, err := h.svc.Coupons.Usage(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	out := usageReportView{
		Coupon:        toCouponView(rep.Coupon),
		Usages:        make([]usageView, len(rep.Usages)),
		TotalUses:     len(rep.Usages),
		TotalDiscount: amount(rep.TotalDiscount),
	}
	for i, u := range rep.Usages {
		out.Usages[i] = usageView{
			ID:             u.ID,
			OrderID:        u.OrderID,
			UserID:         u.UserID,
			DiscountAmount: amount(u.DiscountAmount),
			UsedAt:         u.UsedAt,
		}
	}
	respond(c, http.StatusOK, "", out)
}
