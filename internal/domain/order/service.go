package order

import (
	"cmp"
	"context"
	"net/mail"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/coupon"
	"github.com/xenking/oolio-shop/internal/domain/notify"
	"github.com/xenking/oolio-shop/internal/domain/paging"
	"github.com/xenking/oolio-shop/internal/domain/pricing"
	"github.com/xenking/oolio-shop/internal/domain/product"
)

// Customer identifies who places an order. UserID is empty for guests.
type Customer struct {
	UserID string
	Email  string
	Name   string
}

// LineRequest is a requested order line. Price is what the client saw; it is
// optional.
type LineRequest struct {
	ProductID   string
	VariationID string
	Quantity    int
	Price       decimal.NullDecimal
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Customer         Customer
	Items            []LineRequest
	ShippingAddress  Address
	PaymentMethod    string
	CouponCode       string
	ShippingOverride *decimal.Decimal
	Notes            string
}

// Deps are the collaborators shared by Service and StatusMachine.
type Deps struct {
	Store     Store
	Orders    Repository
	Settings  SettingsProvider
	Coupons   *coupon.RepoValidator
	Notifier  notify.Sender
	Publisher Publisher
	Metrics   *Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Publisher == nil {
		d.Publisher = NopPublisher{}
	}
	return d
}

// Service encapsulates order placement and customer-facing order operations.
type Service struct {
	deps    Deps
	cfg     Config
	machine *StatusMachine
	now     func() time.Time
}

// NewService creates an order Service. Customer cancellations go through
// machine.
func NewService(deps Deps, cfg Config, machine *StatusMachine) *Service {
	return &Service{deps: deps.withDefaults(), cfg: cfg, machine: machine, now: time.Now}
}

// stockKey identifies the row a line draws stock from.
type stockKey struct {
	productID   string
	variationID string
}

// PlaceOrder validates the request, then in one transaction locks the
// products, checks stock, prices the lines, applies the coupon, stores the
// order with its items and initial history row, decrements stock and records
// coupon usage. Admin alert and event are sent after commit.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	settings, err := s.deps.Settings.Pricing(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load settings")
	}

	now := s.now().UTC()
	o := &Order{
		ID:              uuid.NewString(),
		UserID:          req.Customer.UserID,
		CustomerEmail:   req.Customer.Email,
		CustomerName:    req.Customer.Name,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.deps.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		products, err := lockProducts(ctx, tx.Stock(), req.Items)
		if err != nil {
			return err
		}

		requested, err := checkStock(products, req.Items)
		if err != nil {
			return err
		}

		items, lines, err := s.priceLines(o.ID, products, req.Items)
		if err != nil {
			return err
		}
		o.Items = items

		totals := pricing.Calculate(lines, settings, pricing.Options{ShippingOverride: req.ShippingOverride})
		var applied *coupon.Result
		if req.CouponCode != "" {
			applied, err = s.deps.Coupons.WithRepository(tx.Coupons()).Validate(ctx, coupon.Request{
				Code:         req.CouponCode,
				Subtotal:     totals.Subtotal,
				ShippingCost: totals.ShippingCost,
				UserID:       req.Customer.UserID,
			})
			if err != nil {
				return err
			}
			totals = totals.ApplyDiscount(applied.Discount)
			o.CouponID = applied.Coupon.ID
			o.CouponCode = applied.Coupon.Code
		}
		o.applyTotals(totals)

		if err := tx.Orders().Insert(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}

		for _, k := range sortedKeys(requested) {
			ok, err := tx.Stock().DecrementStock(ctx, k.productID, k.variationID, requested[k])
			if err != nil {
				return errors.Wrap(err, "decrement stock")
			}
			if !ok {
				p := products[k.productID]
				return &InsufficientStockError{
					ProductID: k.productID,
					Name:      p.Name,
					Available: available(p, k.variationID),
					Requested: requested[k],
				}
			}
		}

		if applied != nil {
			if err := tx.Coupons().RecordUsage(ctx, &coupon.Usage{
				ID:             uuid.NewString(),
				CouponID:       applied.Coupon.ID,
				UserID:         req.Customer.UserID,
				OrderID:        o.ID,
				DiscountAmount: o.DiscountAmount,
				UsedAt:         now,
			}); err != nil {
				return errors.Wrap(err, "record coupon usage")
			}
		}

		entry := HistoryEntry{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			Status:    StatusPending,
			Notes:     "Order created",
			ChangedBy: req.Customer.UserID,
			CreatedAt: now,
		}
		if err := tx.Orders().AppendHistory(ctx, &entry); err != nil {
			return errors.Wrap(err, "append history")
		}
		o.History = []HistoryEntry{entry}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "place order")
	}

	s.deps.Metrics.orderPlaced(ctx, o)
	if s.cfg.AdminEmail != "" {
		s.deps.Notifier.Send(ctx, notify.Message{
			Event: notify.EventAdminAlert,
			To:    s.cfg.AdminEmail,
			Data:  adminData(o, "New order received"),
		})
	}
	publish(ctx, s.deps.Publisher, Event{
		Type:       EventOrderCreated,
		Order:      o,
		Actor:      req.Customer.UserID,
		OccurredAt: now,
	})
	return o, nil
}

func (s *Service) validate(req PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: item.ProductID}
		}
	}
	fields := req.ShippingAddress.Validate()
	if _, err := mail.ParseAddress(req.Customer.Email); err != nil {
		fields = append(fields, apperr.FieldError{Field: "customer_email", Message: "must be a valid email address"})
	}
	if len(fields) > 0 {
		return apperr.Validation("Validation failed", fields...)
	}
	return nil
}

// lockProducts locks every distinct product in id order so concurrent orders
// acquire row locks in the same sequence.
func lockProducts(ctx context.Context, stock product.StockRepository, lines []LineRequest) (map[string]*product.Product, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	products := make(map[string]*product.Product, len(ids))
	for _, id := range ids {
		p, err := stock.LockForUpdate(ctx, id)
		switch {
		case errors.Is(err, product.ErrNotFound):
			return nil, &ProductNotFoundError{ProductID: id}
		case err != nil:
			return nil, errors.Wrapf(err, "lock product %s", id)
		}
		if p.Status != product.StatusActive {
			return nil, &ProductNotFoundError{ProductID: id}
		}
		products[id] = p
	}

	for _, l := range lines {
		if l.VariationID == "" {
			continue
		}
		if _, ok := products[l.ProductID].Variation(l.VariationID); !ok {
			return nil, &VariationNotFoundError{ProductID: l.ProductID, VariationID: l.VariationID}
		}
	}
	return products, nil
}

// checkStock sums requested quantities per stock row and verifies every row
// can cover them.
func checkStock(products map[string]*product.Product, lines []LineRequest) (map[stockKey]int, error) {
	requested := make(map[stockKey]int, len(lines))
	for _, l := range lines {
		requested[stockKey{l.ProductID, l.VariationID}] += l.Quantity
	}
	for _, k := range sortedKeys(requested) {
		p := products[k.productID]
		if avail := available(p, k.variationID); avail < requested[k] {
			return nil, &InsufficientStockError{
				ProductID: k.productID,
				Name:      p.Name,
				Available: avail,
				Requested: requested[k],
			}
		}
	}
	return requested, nil
}

func available(p *product.Product, variationID string) int {
	if variationID == "" {
		return p.StockQuantity
	}
	v, _ := p.Variation(variationID)
	return v.StockQuantity
}

func sortedKeys(m map[stockKey]int) []stockKey {
	keys := make([]stockKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b stockKey) int {
		if c := cmp.Compare(a.productID, b.productID); c != 0 {
			return c
		}
		return cmp.Compare(a.variationID, b.variationID)
	})
	return keys
}

// priceLines builds order items and pricing lines. The client price is the
// snapshot when trusted and present; otherwise the catalog price is used.
func (s *Service) priceLines(orderID string, products map[string]*product.Product, lines []LineRequest) ([]Item, []pricing.Line, error) {
	items := make([]Item, len(lines))
	priced := make([]pricing.Line, len(lines))
	for i, l := range lines {
		p := products[l.ProductID]
		server := p.EffectivePrice()
		if l.VariationID != "" {
			v, _ := p.Variation(l.VariationID)
			server = v.EffectivePrice()
		}

		price := server
		if l.Price.Valid {
			switch {
			case s.cfg.TrustClientPrice:
				price = l.Price.Decimal
			case !l.Price.Decimal.Equal(server):
				return nil, nil, &PriceMismatchError{ProductID: l.ProductID, Expected: server, Got: l.Price.Decimal}
			}
		}

		items[i] = Item{
			ID:          uuid.NewString(),
			OrderID:     orderID,
			ProductID:   l.ProductID,
			VariationID: l.VariationID,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			Price:       price,
			Total:       price.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2),
		}
		priced[i] = pricing.Line{Price: price, Quantity: l.Quantity}
	}
	return items, priced, nil
}

// ConfirmPayment marks an order paid and sends the customer the order
// confirmation. Confirming an already paid order is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string) (*Order, error) {
	var (
		o       *Order
		changed bool
	)
	err := s.deps.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = tx.Orders().GetForUpdate(ctx, orderID)
		switch {
		case errors.Is(err, ErrNotFound):
			return &OrderNotFoundError{OrderID: orderID}
		case err != nil:
			return errors.Wrap(err, "get order")
		}
		if o.Status == StatusCancelled {
			return ErrOrderCancelled
		}
		if o.PaymentStatus == PaymentPaid {
			return nil
		}
		now := s.now().UTC()
		if err := tx.Orders().UpdatePaymentStatus(ctx, o.ID, PaymentPaid, now); err != nil {
			return errors.Wrap(err, "update payment status")
		}
		o.PaymentStatus = PaymentPaid
		o.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "confirm payment")
	}

	if changed {
		s.deps.Notifier.Send(ctx, notify.Message{
			Event: notify.EventOrderConfirmation,
			To:    o.CustomerEmail,
			Data:  customerData(o),
		})
	}
	return o, nil
}

// Get returns an order visible to viewer.
func (s *Service) Get(ctx context.Context, id string, viewer Viewer) (*Order, error) {
	o, err := s.deps.Orders.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, &OrderNotFoundError{OrderID: id}
	case err != nil:
		return nil, errors.Wrap(err, "get order")
	}
	if !viewer.canSee(o) {
		return nil, &OrderNotFoundError{OrderID: id}
	}
	return o, nil
}

// List returns a page of orders. Viewers without All only see their own.
func (s *Service) List(ctx context.Context, f Filter, viewer Viewer) ([]Order, paging.Meta, error) {
	if !viewer.All {
		if viewer.UserID == "" {
			return nil, paging.NewMeta(f.Page, 0), nil
		}
		f.UserID = viewer.UserID
	}
	orders, total, err := s.deps.Orders.List(ctx, f)
	if err != nil {
		return nil, paging.Meta{}, errors.Wrap(err, "list orders")
	}
	return orders, paging.NewMeta(f.Page, total), nil
}

// CancelByCustomer lets the owner cancel a pending order.
func (s *Service) CancelByCustomer(ctx context.Context, id string, viewer Viewer, reason string) (*Order, error) {
	if _, err := s.Get(ctx, id, viewer); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "Cancelled by customer"
	}
	o, err := s.machine.Transition(ctx, TransitionRequest{
		OrderID:      id,
		Status:       StatusCancelled,
		Notes:        reason,
		Actor:        viewer.UserID,
		ExpectedFrom: StatusPending,
	})
	var invalid *InvalidTransitionError
	if errors.As(err, &invalid) {
		return nil, ErrNotCancellable
	}
	return o, err
}

func customerData(o *Order) map[string]any {
	return map[string]any{
		"order_id":        o.ID,
		"customer_name":   o.CustomerName,
		"status":          string(o.Status),
		"payment_status":  string(o.PaymentStatus),
		"total_amount":    o.TotalAmount.StringFixed(2),
		"tracking_number": o.TrackingNumber,
	}
}

func adminData(o *Order, title string) map[string]any {
	data := customerData(o)
	data["title"] = title
	data["message"] = "Order " + o.ID + " from " + o.CustomerEmail
	data["customer_email"] = o.CustomerEmail
	return data
}
