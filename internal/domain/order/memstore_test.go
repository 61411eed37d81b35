package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/oolio-shop/internal/domain/coupon"
	"github.com/xenking/oolio-shop/internal/domain/product"
)

// memState is the data a transaction can roll back.
type memState struct {
	products map[string]*product.Product
	coupons  map[string]*coupon.Coupon
	usages   []coupon.Usage
	orders   map[string]*Order
	history  []HistoryEntry
}

func (s memState) clone() memState {
	out := memState{
		products: make(map[string]*product.Product, len(s.products)),
		coupons:  make(map[string]*coupon.Coupon, len(s.coupons)),
		usages:   slices.Clone(s.usages),
		orders:   make(map[string]*Order, len(s.orders)),
		history:  slices.Clone(s.history),
	}
	for k, p := range s.products {
		cp := *p
		cp.Variations = slices.Clone(p.Variations)
		out.products[k] = &cp
	}
	for k, c := range s.coupons {
		cp := *c
		out.coupons[k] = &cp
	}
	for k, o := range s.orders {
		cp := *o
		cp.Items = slices.Clone(o.Items)
		out.orders[k] = &cp
	}
	return out
}

// memStore is an in-memory Store. A failed transaction restores the snapshot
// taken when it began.
type memStore struct {
	memState
	// failAt makes the named step return an error inside the transaction.
	failAt string
	// raceLoss makes DecrementStock report zero affected rows.
	raceLoss bool
	// couponRace spends the remaining coupon redemptions just before
	// RecordUsage claims one.
	couponRace bool
	commits    int
}

func newMemStore() *memStore {
	return &memStore{memState: memState{
		products: map[string]*product.Product{},
		coupons:  map[string]*coupon.Coupon{},
		orders:   map[string]*Order{},
	}}
}

var errInjected = errors.New("injected failure")

func (s *memStore) fail(step string) error {
	if s.failAt == step {
		return errInjected
	}
	return nil
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	snapshot := s.memState.clone()
	if err := fn(ctx, memTx{s}); err != nil {
		s.memState = snapshot
		return err
	}
	s.commits++
	return nil
}

func (s *memStore) addProduct(p product.Product) {
	if p.Status == "" {
		p.Status = product.StatusActive
	}
	s.products[p.ID] = &p
}

func (s *memStore) historyFor(orderID string) []HistoryEntry {
	var out []HistoryEntry
	for _, h := range s.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out
}

type memTx struct{ s *memStore }

func (t memTx) Orders() Repository              { return memOrders{t.s} }
func (t memTx) Stock() product.StockRepository { return memStock{t.s} }
func (t memTx) Coupons() coupon.Repository     { return memCoupons{t.s} }

type memStock struct{ s *memStore }

func (m memStock) LockForUpdate(_ context.Context, id string) (*product.Product, error) {
	if err := m.s.fail("lock"); err != nil {
		return nil, err
	}
	p, ok := m.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	cp.Variations = slices.Clone(p.Variations)
	return &cp, nil
}

func (m memStock) DecrementStock(_ context.Context, productID, variationID string, qty int) (bool, error) {
	if m.s.raceLoss {
		return false, nil
	}
	p := m.s.products[productID]
	if variationID == "" {
		if p.StockQuantity < qty {
			return false, nil
		}
		p.StockQuantity -= qty
		return true, nil
	}
	for i := range p.Variations {
		if p.Variations[i].ID == variationID {
			if p.Variations[i].StockQuantity < qty {
				return false, nil
			}
			p.Variations[i].StockQuantity -= qty
			return true, nil
		}
	}
	return false, nil
}

func (m memStock) RestoreStock(_ context.Context, productID, variationID string, qty int) error {
	if err := m.s.fail("restore"); err != nil {
		return err
	}
	p := m.s.products[productID]
	if variationID == "" {
		p.StockQuantity += qty
		return nil
	}
	for i := range p.Variations {
		if p.Variations[i].ID == variationID {
			p.Variations[i].StockQuantity += qty
		}
	}
	return nil
}

type memCoupons struct{ s *memStore }

func (m memCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.s.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m memCoupons) CountCustomerUsage(_ context.Context, couponID, userID string) (int, error) {
	n := 0
	for _, u := range m.s.usages {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m memCoupons) RecordUsage(_ context.Context, u *coupon.Usage) error {
	if err := m.s.fail("usage"); err != nil {
		return err
	}
	for _, c := range m.s.coupons {
		if c.ID != u.CouponID {
			continue
		}
		if m.s.couponRace && c.UsageLimit != nil {
			c.UsedCount = *c.UsageLimit
		}
		if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
			return coupon.ErrUsageLimitReached
		}
		c.UsedCount++
	}
	m.s.usages = append(m.s.usages, *u)
	return nil
}

type memOrders struct{ s *memStore }

func (m memOrders) Insert(_ context.Context, o *Order) error {
	if err := m.s.fail("insert"); err != nil {
		return err
	}
	cp := *o
	cp.Items = slices.Clone(o.Items)
	cp.History = nil
	m.s.orders[o.ID] = &cp
	return nil
}

func (m memOrders) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = slices.Clone(o.Items)
	cp.History = m.s.historyFor(id)
	return &cp, nil
}

func (m memOrders) GetForUpdate(ctx context.Context, id string) (*Order, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	o.History = nil
	return o, nil
}

func (m memOrders) List(_ context.Context, f Filter) ([]Order, int, error) {
	var out []Order
	for _, o := range m.s.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *o)
	}
	total := len(out)
	start := min(f.Page.Offset(), total)
	end := min(start+f.Page.Limit(), total)
	return out[start:end], total, nil
}

func (m memOrders) UpdateStatus(_ context.Context, id string, status Status, tracking string, at time.Time) error {
	o := m.s.orders[id]
	o.Status = status
	o.TrackingNumber = tracking
	o.UpdatedAt = at
	return nil
}

func (m memOrders) UpdatePaymentStatus(_ context.Context, id string, status PaymentStatus, at time.Time) error {
	o := m.s.orders[id]
	o.PaymentStatus = status
	o.UpdatedAt = at
	return nil
}

func (m memOrders) AppendHistory(_ context.Context, h *HistoryEntry) error {
	if err := m.s.fail("history"); err != nil {
		return err
	}
	m.s.history = append(m.s.history, *h)
	return nil
}
