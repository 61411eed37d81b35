package sqlstore

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/xenking/oolio-shop/internal/domain/coupon"
	"github.com/xenking/oolio-shop/internal/domain/order"
	"github.com/xenking/oolio-shop/internal/domain/product"
)

var (
	_ order.Store   = OrderStore{}
	_ product.Store = (*DB)(nil)
)

// Products returns the catalog repository on the pool.
func (d *DB) Products() *ProductRepo { return NewProductRepo(d.db) }

// Orders returns the order repository on the pool.
func (d *DB) Orders() *OrderRepo { return NewOrderRepo(d.db) }

// Coupons returns the coupon repository on the pool.
func (d *DB) Coupons() *CouponRepo { return NewCouponRepo(d.db) }

// Carts returns the cart repository on the pool.
func (d *DB) Carts() *CartRepo { return NewCartRepo(d.db) }

// Users returns the user repository on the pool.
func (d *DB) Users() *UserRepo { return NewUserRepo(d.db) }

// Settings returns the settings repository on the pool.
func (d *DB) Settings() *SettingsRepo { return NewSettingsRepo(d.db) }

// Templates returns the email template repository on the pool.
func (d *DB) Templates() *TemplateRepo { return NewTemplateRepo(d.db) }

// Dashboard returns the aggregate repository on the pool.
func (d *DB) Dashboard() *DashboardRepo { return NewDashboardRepo(d.db) }

// orderTx exposes the repositories an order transaction touches.
type orderTx struct {
	tx *sqlx.Tx
}

func (t orderTx) Orders() order.Repository       { return NewOrderRepo(t.tx) }
func (t orderTx) Stock() product.StockRepository { return NewProductRepo(t.tx) }
func (t orderTx) Coupons() coupon.Repository     { return NewCouponRepo(t.tx) }

// OrderStore implements order.Store on the pool.
type OrderStore struct {
	db *DB
}

// OrderStore returns the transactional store for order operations.
func (d *DB) OrderStore() OrderStore { return OrderStore{db: d} }

// InTx runs fn with order, stock and coupon repositories bound to one transaction.
func (s OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return s.db.InTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, orderTx{tx: tx})
	})
}

// InCatalogTx implements product.Store.
func (d *DB) InCatalogTx(ctx context.Context, fn func(ctx context.Context, repo product.Repository) error) error {
	return d.InTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, NewProductRepo(tx))
	})
}
