package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/auth"
	"github.com/xenking/oolio-shop/internal/domain/order"
)

type orderItemView struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	VariationID string `json:"variation_id,omitempty"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       amount `json:"price"`
	Total       amount `json:"total"`
}

type historyView struct {
	Status    order.Status `json:"status"`
	Notes     string       `json:"notes,omitempty"`
	ChangedBy string       `json:"changed_by,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type orderView struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id,omitempty"`
	CustomerEmail   string              `json:"customer_email"`
	CustomerName    string              `json:"customer_name"`
	Status          order.Status        `json:"status"`
	PaymentStatus   order.PaymentStatus `json:"payment_status"`
	PaymentMethod   string              `json:"payment_method"`
	Subtotal        amount              `json:"subtotal"`
	TaxRate         amount              `json:"tax_rate"`
	TaxAmount       amount              `json:"tax_amount"`
	ShippingCost    amount              `json:"shipping_cost"`
	DiscountAmount  amount              `json:"discount_amount"`
	TotalAmount     amount              `json:"total_amount"`
	ShippingAddress order.Address       `json:"shipping_address"`
	CouponCode      string              `json:"coupon_code,omitempty"`
	TrackingNumber  string              `json:"tracking_number,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	Items           []orderItemView     `json:"items"`
	History         []historyView       `json:"history,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func toOrderView(o *order.Order) orderView {
	v := orderView{
		ID:              o.ID,
		UserID:          o.UserID,
		CustomerEmail:   o.CustomerEmail,
		CustomerName:    o.CustomerName,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		PaymentMethod:   o.PaymentMethod,
		Subtotal:        amount(o.Subtotal),
		TaxRate:         amount(o.TaxRate),
		TaxAmount:       amount(o.TaxAmount),
		ShippingCost:    amount(o.ShippingCost),
		DiscountAmount:  amount(o.DiscountAmount),
		TotalAmount:     amount(o.TotalAmount),
		ShippingAddress: o.ShippingAddress,
		CouponCode:      o.CouponCode,
		TrackingNumber:  o.TrackingNumber,
		Notes:           o.Notes,
		Items:           make([]orderItemView, len(o.Items)),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for i, it := range o.Items {
		v.Items[i] = orderItemView{
			ID:          it.ID,
			ProductID:   it.ProductID,
			VariationID: it.VariationID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       amount(it.Price),
			Total:       amount(it.Total),
		}
	}
	for _, h := range o.History {
		v.History = append(v.History, historyView{
			Status:    h.Status,
			Notes:     h.Notes,
			ChangedBy: h.ChangedBy,
			CreatedAt: h.CreatedAt,
		})
	}
	return v
}

type orderLineBody struct {
	ProductID   string              `json:"product_id" validate:"required"`
	VariationID string              `json:"variation_id"`
	Quantity    int                 `json:"quantity"`
	Price       decimal.NullDecimal `json:"price"`
}

type placeOrderBody struct {
	Items           []orderLineBody  `json:"items" validate:"required,min=1,dive"`
	ShippingAddress order.Address    `json:"shipping_address"`
	CustomerEmail   string           `json:"customer_email"`
	CustomerName    string           `json:"customer_name"`
	PaymentMethod   string           `json:"payment_method"`
	CouponCode      string           `json:"coupon_code"`
	ShippingCost    *decimal.Decimal `json:"shipping_cost"`
	Notes           string           `json:"notes" validate:"max=1000"`
}

// toRequest builds the domain request. Signed-in callers default to their
// own email and name. Only staff may override the shipping cost.
func (b placeOrderBody) toRequest(id auth.Identity, signedIn bool) order.PlaceOrderRequest {
	req := order.PlaceOrderRequest{
		Customer: order.Customer{
			Email: b.CustomerEmail,
			Name:  b.CustomerName,
		},
		Items:           make([]order.LineRequest, len(b.Items)),
		ShippingAddress: b.ShippingAddress,
		PaymentMethod:   b.PaymentMethod,
		CouponCode:      b.CouponCode,
		Notes:           b.Notes,
	}
	for i, it := range b.Items {
		req.Items[i] = order.LineRequest{
			ProductID:   it.ProductID,
			VariationID: it.VariationID,
			Quantity:    it.Quantity,
			Price:       it.Price,
		}
	}
	if signedIn {
		req.Customer.UserID = id.UserID
		if req.Customer.Email == "" {
			req.Customer.Email = id.Email
		}
		if req.Customer.Name == "" {
			req.Customer.Name = id.Name
		}
		if id.Can(auth.PermUpdateOrderStatus) {
			req.ShippingOverride = b.ShippingCost
		}
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash_on_delivery"
	}
	return req
}

func (h *Handler) placeOrder(c *gin.Context) {
	id, signedIn := identity(c)
	if signedIn && !id.Can(auth.PermCreateOrder) {
		fail(c, apperr.Forbidden())
		return
	}
	var body placeOrderBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}

	ctx := c.Request.Context()
	o, err := h.svc.Orders.PlaceOrder(ctx, body.toRequest(id, signedIn))
	if err != nil {
		fail(c, err)
		return
	}

	// The order is committed; a cart left behind is only an inconvenience.
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.svc.Carts.Clear(clearCtx, ownerOf(c)); err != nil {
		zctx.From(ctx).Warn("Clear cart after checkout", zap.String("order_id", o.ID), zap.Error(err))
	}

	respond(c, http.StatusCreated, "Order placed successfully", toOrderView(o))
}

func viewerOf(c *gin.Context) order.Viewer {
	id, _ := identity(c)
	return order.Viewer{UserID: id.UserID, All: id.Can(auth.PermViewOrders)}
}

func (h *Handler) listOrders(c *gin.Context) {
	f := order.Filter{
		Status: order.Status(c.Query("status")),
		Page:   pageOf(c),
	}
	if f.Status != "" && !f.Status.Valid() {
		fail(c, apperr.Validation("Invalid order status",
			apperr.FieldError{Field: "status", Message: "is not a known status"}))
		return
	}
	if viewer := viewerOf(c); viewer.All {
		f.UserID = c.Query("user_id")
	}
	items, meta, err := h.svc.Orders.List(c.Request.Context(), f, viewerOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]orderView, len(items))
	for i := range items {
		out[i] = toOrderView(&items[i])
	}
	respondList(c, out, meta)
}

func (h *Handler) getOrder(c *gin.Context) {
	o, err := h.svc.Orders.Get(c.Request.Context(), c.Param("id"), viewerOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", toOrderView(o))
}

type cancelBody struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) cancelOrder(c *gin.Context) {
	var body cancelBody
	if c.Request.ContentLength > 0 {
		if err := h.bindJSON(c, &body); err != nil {
			fail(c, err)
			return
		}
	}
	id, _ := identity(c)
	viewer := order.Viewer{UserID: id.UserID}
	o, err := h.svc.Orders.CancelByCustomer(c.Request.Context(), c.Param("id"), viewer, body.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Order cancelled", toOrderView(o))
}

type statusBody struct {
	Status         order.Status `json:"status" validate:"required"`
	Notes          string       `json:"notes" validate:"max=1000"`
	TrackingNumber string       `json:"tracking_number" validate:"max=100"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var body statusBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	id, _ := identity(c)
	o, err := h.svc.Machine.Transition(c.Request.Context(), order.TransitionRequest{
		OrderID:        c.Param("id"),
		Status:         body.Status,
		Notes:          body.Notes,
		TrackingNumber: body.TrackingNumber,
		Actor:          id.UserID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Order status updated", toOrderView(o))
}

type bulkStatusBody struct {
	OrderIDs []string     `json:"order_ids" validate:"required,min=1,max=100"`
	Status   order.Status `json:"status" validate:"required"`
	Notes    string       `json:"notes" validate:"max=1000"`
}

type bulkFailureView struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

type bulkResultView struct {
	Updated  int               `json:"updated"`
	Total    int               `json:"total"`
	Failures []bulkFailureView `json:"failures"`
}

func (h *Handler) bulkStatus(c *gin.Context) {
	var body bulkStatusBody
	if err := h.bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	id, _ := identity(c)
	res, err := h.svc.Machine.BulkTransition(c.Request.Context(), body.OrderIDs, body.Status, body.Notes, id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	out := bulkResultView{Updated: res.Updated, Total: res.Total, Failures: []bulkFailureView{}}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, bulkFailureView{OrderID: f.OrderID, Error: f.Error})
	}
	respond(c, http.StatusOK, "Bulk status update finished", out)
}

func (h *Handler) confirmPayment(c *gin.Context) {
	o, err := h.svc.Orders.ConfirmPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Payment confirmed", toOrderView(o))
}
