package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/coupon"
	"github.com/xenking/oolio-shop/internal/domain/notify"
	"github.com/xenking/oolio-shop/internal/domain/pricing"
	"github.com/xenking/oolio-shop/internal/domain/product"
)

// --- Collaborator fakes ---

type staticSettings struct {
	s   pricing.Settings
	err error
}

func (f staticSettings) Pricing(context.Context) (pricing.Settings, error) {
	return f.s, f.err
}

type captureSender struct {
	msgs []notify.Message
}

func (c *captureSender) Send(_ context.Context, msg notify.Message) {
	c.msgs = append(c.msgs, msg)
}

func (c *captureSender) events(to string) []notify.Event {
	var out []notify.Event
	for _, m := range c.msgs {
		if m.To == to {
			out = append(out, m.Event)
		}
	}
	return out
}

type capturePublisher struct {
	events []Event
	err    error

	// ctxErrs holds ctx.Err() as seen by each Publish call.
	ctxErrs []error
}

func (c *capturePublisher) Publish(ctx context.Context, e Event) error {
	c.events = append(c.events, e)
	c.ctxErrs = append(c.ctxErrs, ctx.Err())
	return c.err
}

// --- Helpers ---

const (
	adminEmail    = "admin@shop.test"
	customerEmail = "ann@example.com"
)

type fixture struct {
	store     *memStore
	sender    *captureSender
	publisher *capturePublisher
	svc       *Service
	machine   *StatusMachine
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := newMemStore()
	sender := &captureSender{}
	publisher := &capturePublisher{}
	if cfg.AdminEmail == "" {
		cfg.AdminEmail = adminEmail
	}
	deps := Deps{
		Store:     store,
		Orders:    memOrders{store},
		Settings:  staticSettings{s: pricing.DefaultSettings()},
		Coupons:   coupon.NewRepoValidator(memCoupons{store}),
		Notifier:  sender,
		Publisher: publisher,
	}
	machine := NewStatusMachine(deps, cfg)
	return &fixture{
		store:     store,
		sender:    sender,
		publisher: publisher,
		svc:       NewService(deps, cfg, machine),
		machine:   machine,
	}
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func price(v string) decimal.NullDecimal { return decimal.NewNullDecimal(d(v)) }

func address() Address {
	return Address{
		FullName:     "Ann Example",
		Phone:        "+2348000000000",
		AddressLine1: "1 Market Street",
		City:         "Lagos",
		Country:      "NG",
	}
}

func customer(userID string) Customer {
	return Customer{UserID: userID, Email: customerEmail, Name: "Ann"}
}

func request(userID string, lines ...LineRequest) PlaceOrderRequest {
	return PlaceOrderRequest{
		Customer:        customer(userID),
		Items:           lines,
		ShippingAddress: address(),
		PaymentMethod:   "card",
	}
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "%s: expected %s, got %s", field, want, got)
}

// --- PlaceOrder ---

func TestPlaceOrder_EndToEnd(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{ID: "p1", Name: "Kettle", Price: d("1000"), StockQuantity: 10})

	o, err := f.svc.PlaceOrder(context.Background(), request("u1",
		LineRequest{ProductID: "p1", Quantity: 2, Price: price("1000")},
	))
	require.NoError(t, err)

	assertDec(t, "2000.00", o.Subtotal, "subtotal")
	assertDec(t, "150.00", o.TaxAmount, "tax")
	assertDec(t, "7.5", o.TaxRate, "tax rate")
	assertDec(t, "1500.00", o.ShippingCost, "shipping")
	assertDec(t, "0", o.DiscountAmount, "discount")
	assertDec(t, "3650.00", o.TotalAmount, "total")
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)

	assert.Equal(t, 8, f.store.products["p1"].StockQuantity)

	stored, ok := f.store.orders[o.ID]
	require.True(t, ok)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Kettle", stored.Items[0].ProductName)
	assertDec(t, "2000", stored.Items[0].Total, "line total")

	history := f.store.historyFor(o.ID)
	require.Len(t, history, 1)
	assert.Equal(t, StatusPending, history[0].Status)
	assert.Equal(t, "Order created", history[0].Notes)

	// Customer confirmation waits for payment; only the admin hears about it.
	assert.Equal(t, []notify.Event{notify.EventAdminAlert}, f.sender.events(adminEmail))
	assert.Empty(t, f.sender.events(customerEmail))

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventOrderCreated, f.publisher.events[0].Type)
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   PlaceOrderRequest
		check func(t *testing.T, err error)
	}{
		{
			name: "empty items",
			req:  request("u1"),
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrEmptyItems)
			},
		},
		{
			name: "zero quantity",
			req:  request("u1", LineRequest{ProductID: "p1", Quantity: 0}),
			check: func(t *testing.T, err error) {
				var iqErr *InvalidQuantityError
				require.ErrorAs(t, err, &iqErr)
				assert.Equal(t, "p1", iqErr.ProductID)
			},
		},
		{
			name: "negative quantity",
			req:  request("u1", LineRequest{ProductID: "p1", Quantity: -3}),
			check: func(t *testing.T, err error) {
				var iqErr *InvalidQuantityError
				require.ErrorAs(t, err, &iqErr)
			},
		},
		{
			name: "missing address fields",
			req: func() PlaceOrderRequest {
				r := request("u1", LineRequest{ProductID: "p1", Quantity: 1})
				r.ShippingAddress = Address{FullName: "Ann"}
				return r
			}(),
			check: func(t *testing.T, err error) {
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
				assert.Len(t, apperr.FieldsOf(err), 4)
			},
		},
		{
			name: "bad email",
			req: func() PlaceOrderRequest {
				r := request("", LineRequest{ProductID: "p1", Quantity: 1})
				r.Customer.Email = "not-an-email"
				return r
			}(),
			check: func(t *testing.T, err error) {
				require.Len(t, apperr.FieldsOf(err), 1)
				assert.Equal(t, "customer_email", apperr.FieldsOf(err)[0].Field)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{TrustClientPrice: true})
			f.store.addProduct(product.Product{ID: "p1", Name: "Kettle", Price: d("10"), StockQuantity: 10})

			_, err := f.svc.PlaceOrder(context.Background(), tt.req)
			require.Error(t, err)
			tt.check(t, err)
			assert.Zero(t, f.store.commits, "validation happens before the transaction")
		})
	}
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{ID: "draft", Name: "Draft", Price: d("1"), StockQuantity: 1, Status: product.StatusDraft})

	for _, id := range []string{"missing", "draft"} {
		_, err := f.svc.PlaceOrder(context.Background(), request("u1", LineRequest{ProductID: id, Quantity: 1}))

		var pnfErr *ProductNotFoundError
		require.ErrorAs(t, err, &pnfErr)
		assert.Equal(t, id, pnfErr.ProductID)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	}
	assert.Empty(t, f.store.orders)
}

func TestPlaceOrder_VariationNotFound(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{ID: "p1", Name: "Shirt", Price: d("10"), StockQuantity: 5})

	_, err := f.svc.PlaceOrder(context.Background(), request("u1",
		LineRequest{ProductID: "p1", VariationID: "other", Quantity: 1},
	))
	var vErr *VariationNotFoundError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "other", vErr.VariationID)
}

func TestPlaceOrder_InsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{ID: "a", Name: "Item A", Price: d("100"), StockQuantity: 10})
	f.store.addProduct(product.Product{ID: "b", Name: "Item B", Price: d("100"), StockQuantity: 1})

	_, err := f.svc.PlaceOrder(context.Background(), request("u1",
		LineRequest{ProductID: "a", Quantity: 2},
		LineRequest{ProductID: "b", Quantity: 2},
	))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "b", stockErr.ProductID)
	assert.Equal(t, "Item B", stockErr.Name)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, apperr.KindBusinessRule, apperr.KindOf(err))

	assert.Empty(t, f.store.orders)
	assert.Empty(t, f.store.history)
	assert.Equal(t, 10, f.store.products["a"].StockQuantity)
	assert.Equal(t, 1, f.store.products["b"].StockQuantity)
	assert.Empty(t, f.sender.msgs)
	assert.Empty(t, f.publisher.events)
}

func TestPlaceOrder_SameProductOnTwoLinesCountsTogether(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{ID: "a", Name: "Item A", Price: d("100"), StockQuantity: 3})

	_, err := f.svc.PlaceOrder(context.Background(), request("u1",
		LineRequest{ProductID: "a", Quantity: 2},
		LineRequest{ProductID: "a", Quantity: 2},
	))
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 4, stockErr.Requested)
	assert.Equal(t, 3, f.store.products["a"].StockQuantity)
}

func TestPlaceOrder_LostDecrementRaceRollsBack(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{ID: "a", Name: "Item A", Price: d("100"), StockQuantity: 1})
	f.store.raceLoss = true

	_, err := f.svc.PlaceOrder(context.Background(), request("u1", LineRequest{ProductID: "a", Quantity: 1}))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Empty(t, f.store.orders)
}

func TestPlaceOrder_FailureAtAnyStepRollsBack(t *testing.T) {
	for _, step := range []string{"lock", "insert", "usage", "history"} {
		t.Run(step, func(t *testing.T) {
			f := newFixture(t, Config{TrustClientPrice: true})
			f.store.addProduct(product.Product{ID: "a", Name: "Item A", Price: d("100"), StockQuantity: 5})
			f.store.coupons["TEN"] = &coupon.Coupon{
				ID: "c1", Code: "TEN", Type: coupon.TypePercentage, DiscountValue: d("10"), IsActive: true,
			}
			f.store.failAt = step

			req := request("u1", LineRequest{ProductID: "a", Quantity: 2})
			req.CouponCode = "TEN"
			_, err := f.svc.PlaceOrder(context.Background(), req)
			require.ErrorIs(t, err, errInjected)

			assert.Empty(t, f.store.orders)
			assert.Empty(t, f.store.history)
			assert.Empty(t, f.store.usages)
			assert.Equal(t, 0, f.store.coupons["TEN"].UsedCount)
			assert.Equal(t, 5, f.store.products["a"].StockQuantity)
			assert.Empty(t, f.sender.msgs)
		})
	}
}

func TestPlaceOrder_PriceSnapshot(t *testing.T) {
	tests := []struct {
		name        string
		trust       bool
		clientPrice decimal.NullDecimal
		wantPrice   string
		wantErr     bool
	}{
		{name: "trusted client price is kept", trust: true, clientPrice: price("900"), wantPrice: "900"},
		{name: "omitted price uses sale price", trust: true, wantPrice: "800"},
		{name: "untrusted matching price", trust: false, clientPrice: price("800.00"), wantPrice: "800"},
		{name: "untrusted omitted price", trust: false, wantPrice: "800"},
		{name: "untrusted mismatch rejected", trust: false, clientPrice: price("900"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{TrustClientPrice: tt.trust})
			f.store.addProduct(product.Product{
				ID: "p1", Name: "Lamp", Price: d("1000"), SalePrice: price("800"), StockQuantity: 5,
			})

			o, err := f.svc.PlaceOrder(context.Background(), request("u1",
				LineRequest{ProductID: "p1", Quantity: 1, Price: tt.clientPrice},
			))
			if tt.wantErr {
				var pmErr *PriceMismatchError
				require.ErrorAs(t, err, &pmErr)
				assertDec(t, "800", pmErr.Expected, "expected")
				assert.Equal(t, 5, f.store.products["p1"].StockQuantity)
				return
			}
			require.NoError(t, err)
			assertDec(t, tt.wantPrice, o.Items[0].Price, "price")
			assertDec(t, tt.wantPrice, o.Subtotal, "subtotal")
		})
	}
}

func TestPlaceOrder_VariationStock(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{
		ID: "p1", Name: "Shirt", Price: d("100"), StockQuantity: 0,
		Variations: []product.Variation{{ID: "v1", ProductID: "p1", Price: d("120"), StockQuantity: 3}},
	})

	o, err := f.svc.PlaceOrder(context.Background(), request("u1",
		LineRequest{ProductID: "p1", VariationID: "v1", Quantity: 2},
	))
	require.NoError(t, err)
	assertDec(t, "240", o.Subtotal, "subtotal")
	assert.Equal(t, 1, f.store.products["p1"].Variations[0].StockQuantity)
	assert.Equal(t, 0, f.store.products["p1"].StockQuantity)
}

func TestPlaceOrder_ShippingOverrideAndFreeShipping(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{ID: "p1", Name: "Sofa", Price: d("25000"), StockQuantity: 5})

	o, err := f.svc.PlaceOrder(context.Background(), request("u1", LineRequest{ProductID: "p1", Quantity: 2}))
	require.NoError(t, err)
	assertDec(t, "0", o.ShippingCost, "free shipping at threshold")

	override := d("2500")
	req := request("u1", LineRequest{ProductID: "p1", Quantity: 2})
	req.ShippingOverride = &override
	o, err = f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assertDec(t, "2500", o.ShippingCost, "override")
	assertDec(t, "56250", o.TotalAmount, "total")
}

func TestPlaceOrder_CouponApplied(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{ID: "p1", Name: "Desk", Price: d("1000"), StockQuantity: 5})
	f.store.coupons["HALF"] = &coupon.Coupon{
		ID: "c1", Code: "HALF", Type: coupon.TypePercentage, DiscountValue: d("50"),
		MaximumDiscountAmount: decimal.NewNullDecimal(d("300")), IsActive: true,
	}

	req := request("u1", LineRequest{ProductID: "p1", Quantity: 1})
	req.CouponCode = " half "
	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assertDec(t, "300", o.DiscountAmount, "discount capped")
	// 1000 + 75 + 1500 - 300
	assertDec(t, "2275", o.TotalAmount, "total")
	assert.Equal(t, "HALF", o.CouponCode)
	assert.Equal(t, "c1", o.CouponID)

	require.Len(t, f.store.usages, 1)
	assert.Equal(t, o.ID, f.store.usages[0].OrderID)
	assert.Equal(t, "u1", f.store.usages[0].UserID)
	assertDec(t, "300", f.store.usages[0].DiscountAmount, "usage discount")
	assert.Equal(t, 1, f.store.coupons["HALF"].UsedCount)
}

func TestPlaceOrder_CouponRuleFailureRollsBack(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{ID: "p1", Name: "Desk", Price: d("1000"), StockQuantity: 5})
	f.store.coupons["BIG"] = &coupon.Coupon{
		ID: "c1", Code: "BIG", Type: coupon.TypeFixedAmount, DiscountValue: d("100"),
		MinimumOrderAmount: d("5000"), IsActive: true,
	}

	req := request("u1", LineRequest{ProductID: "p1", Quantity: 1})
	req.CouponCode = "BIG"
	_, err := f.svc.PlaceOrder(context.Background(), req)

	var ruleErr *coupon.RuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, coupon.ReasonMinimumNotMet, ruleErr.Reason)
	assert.Equal(t, "Minimum order amount of 5000.00 required", apperr.MessageOf(err))
	assert.Empty(t, f.store.orders)
	assert.Equal(t, 5, f.store.products["p1"].StockQuantity)
}

func TestPlaceOrder_PerCustomerCouponCap(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{ID: "p1", Name: "Desk", Price: d("100"), StockQuantity: 50})
	one := 1
	f.store.coupons["ONCE"] = &coupon.Coupon{
		ID: "c1", Code: "ONCE", Type: coupon.TypeFixedAmount, DiscountValue: d("10"),
		UsageLimitPerCustomer: &one, IsActive: true,
	}
	place := func(userID string) error {
		req := request(userID, LineRequest{ProductID: "p1", Quantity: 1})
		req.CouponCode = "ONCE"
		_, err := f.svc.PlaceOrder(context.Background(), req)
		return err
	}

	require.NoError(t, place("u1"))

	err := place("u1")
	var ruleErr *coupon.RuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, coupon.ReasonCustomerLimitReached, ruleErr.Reason)

	require.NoError(t, place("u2"))
	assert.Len(t, f.store.usages, 2)
	assert.Equal(t, 2, f.store.coupons["ONCE"].UsedCount)
}

func TestPlaceOrder_CouponLimitSpentConcurrentlyRollsBack(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{ID: "p1", Name: "Desk", Price: d("100"), StockQuantity: 5})
	two := 2
	f.store.coupons["DUO"] = &coupon.Coupon{
		ID: "c1", Code: "DUO", Type: coupon.TypeFixedAmount, DiscountValue: d("10"),
		UsageLimit: &two, UsedCount: 1, IsActive: true,
	}
	f.store.couponRace = true

	req := request("u1", LineRequest{ProductID: "p1", Quantity: 1})
	req.CouponCode = "DUO"
	_, err := f.svc.PlaceOrder(context.Background(), req)

	var ruleErr *coupon.RuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, coupon.ReasonUsageLimitReached, ruleErr.Reason)
	assert.Empty(t, f.store.orders)
	assert.Empty(t, f.store.usages)
	assert.Equal(t, 1, f.store.coupons["DUO"].UsedCount)
	assert.Equal(t, 5, f.store.products["p1"].StockQuantity)
}

func TestPlaceOrder_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	f.store.addProduct(product.Product{ID: "p1", Name: "Desk", Price: d("100"), StockQuantity: 5})
	f.publisher.err = errors.New("broker down")

	o, err := f.svc.PlaceOrder(context.Background(), request("u1", LineRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.Contains(t, f.store.orders, o.ID)
}

func TestPublish_OutlivesCallerCancellation(t *testing.T) {
	p := &capturePublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	publish(ctx, p, Event{Type: EventOrderCreated, Order: &Order{ID: "o1"}})

	require.Len(t, p.ctxErrs, 1)
	assert.NoError(t, p.ctxErrs[0])
}

func TestPlaceOrder_SettingsError(t *testing.T) {
	f := newFixture(t, Config{})
	f.svc.deps.Settings = staticSettings{err: errors.New("db down")}

	_, err := f.svc.PlaceOrder(context.Background(), request("u1", LineRequest{ProductID: "p1", Quantity: 1}))
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

// --- Reads, payment and customer cancellation ---

func placeOne(t *testing.T, f *fixture, userID string, qty int) *Order {
	t.Helper()
	if _, ok := f.store.products["p1"]; !ok {
		f.store.addProduct(product.Product{ID: "p1", Name: "Kettle", Price: d("1000"), StockQuantity: 10})
	}
	o, err := f.svc.PlaceOrder(context.Background(), request(userID, LineRequest{ProductID: "p1", Quantity: qty}))
	require.NoError(t, err)
	return o
}

func TestService_GetAndList(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	ctx := context.Background()
	mine := placeOne(t, f, "u1", 1)
	placeOne(t, f, "u2", 1)

	got, err := f.svc.Get(ctx, mine.ID, Viewer{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, got.History, 1)

	_, err = f.svc.Get(ctx, mine.ID, Viewer{UserID: "u2"})
	var nfErr *OrderNotFoundError
	require.ErrorAs(t, err, &nfErr)

	_, err = f.svc.Get(ctx, mine.ID, Viewer{All: true})
	require.NoError(t, err)

	orders, meta, err := f.svc.List(ctx, Filter{}, Viewer{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, mine.ID, orders[0].ID)
	assert.Equal(t, 1, meta.TotalItems)

	orders, meta, err = f.svc.List(ctx, Filter{}, Viewer{All: true})
	require.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.Equal(t, 2, meta.TotalItems)

	orders, _, err = f.svc.List(ctx, Filter{}, Viewer{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestService_ConfirmPayment(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	ctx := context.Background()
	o := placeOne(t, f, "u1", 1)
	f.sender.msgs = nil

	got, err := f.svc.ConfirmPayment(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.Equal(t, PaymentPaid, f.store.orders[o.ID].PaymentStatus)
	assert.Equal(t, []notify.Event{notify.EventOrderConfirmation}, f.sender.events(customerEmail))

	_, err = f.svc.ConfirmPayment(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, f.sender.msgs, 1, "confirming twice sends one email")

	_, err = f.svc.ConfirmPayment(ctx, "missing")
	var nfErr *OrderNotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestService_ConfirmPaymentCancelled(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	ctx := context.Background()
	o := placeOne(t, f, "u1", 1)
	_, err := f.machine.Transition(ctx, TransitionRequest{OrderID: o.ID, Status: StatusCancelled})
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, o.ID)
	require.ErrorIs(t, err, ErrOrderCancelled)
}

func TestService_CancelByCustomer(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	ctx := context.Background()
	o := placeOne(t, f, "u1", 3)
	assert.Equal(t, 7, f.store.products["p1"].StockQuantity)

	_, err := f.svc.CancelByCustomer(ctx, o.ID, Viewer{UserID: "u2"}, "")
	var nfErr *OrderNotFoundError
	require.ErrorAs(t, err, &nfErr)

	got, err := f.svc.CancelByCustomer(ctx, o.ID, Viewer{UserID: "u1"}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 10, f.store.products["p1"].StockQuantity)

	history := f.store.historyFor(o.ID)
	require.Len(t, history, 2)
	assert.Equal(t, "Cancelled by customer", history[1].Notes)
	assert.Equal(t, "u1", history[1].ChangedBy)

	confirmed := placeOne(t, f, "u1", 1)
	_, err = f.machine.Transition(ctx, TransitionRequest{OrderID: confirmed.ID, Status: StatusConfirmed})
	require.NoError(t, err)
	_, err = f.svc.CancelByCustomer(ctx, confirmed.ID, Viewer{UserID: "u1"}, "changed my mind")
	require.ErrorIs(t, err, ErrNotCancellable)
}

func TestService_NowIsUsedForTimestamps(t *testing.T) {
	f := newFixture(t, Config{TrustClientPrice: true})
	fixed := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	o := placeOne(t, f, "u1", 1)
	assert.Equal(t, fixed, o.CreatedAt)
	assert.Equal(t, fixed, f.store.historyFor(o.ID)[0].CreatedAt)
}
