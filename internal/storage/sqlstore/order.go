package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/domain/order"
)

const orderColumns = `id, user_id, customer_email, customer_name, status, payment_status, payment_method,
	subtotal, tax_amount, tax_rate, shipping_cost, discount_amount, total_amount, shipping_address,
	coupon_id, coupon_code, tracking_number, notes, created_at, updated_at`

var _ order.Repository = (*OrderRepo)(nil)

type orderRow struct {
	ID              string                  `db:"id"`
	UserID          sql.NullString          `db:"user_id"`
	CustomerEmail   string                  `db:"customer_email"`
	CustomerName    string                  `db:"customer_name"`
	Status          string                  `db:"status"`
	PaymentStatus   string                  `db:"payment_status"`
	PaymentMethod   string                  `db:"payment_method"`
	Subtotal        decimal.Decimal         `db:"subtotal"`
	TaxAmount       decimal.Decimal         `db:"tax_amount"`
	TaxRate         decimal.Decimal         `db:"tax_rate"`
	ShippingCost    decimal.Decimal         `db:"shipping_cost"`
	DiscountAmount  decimal.Decimal         `db:"discount_amount"`
	TotalAmount     decimal.Decimal         `db:"total_amount"`
	ShippingAddress jsonText[order.Address] `db:"shipping_address"`
	CouponID        sql.NullString          `db:"coupon_id"`
	CouponCode      sql.NullString          `db:"coupon_code"`
	TrackingNumber  sql.NullString          `db:"tracking_number"`
	Notes           string                  `db:"notes"`
	CreatedAt       time.Time               `db:"created_at"`
	UpdatedAt       time.Time               `db:"updated_at"`
}

func (r orderRow) toDomain() order.Order {
	return order.Order{
		ID:              r.ID,
		UserID:          r.UserID.String,
		CustomerEmail:   r.CustomerEmail,
		CustomerName:    r.CustomerName,
		Status:          order.Status(r.Status),
		PaymentStatus:   order.PaymentStatus(r.PaymentStatus),
		PaymentMethod:   r.PaymentMethod,
		Subtotal:        r.Subtotal,
		TaxAmount:       r.TaxAmount,
		TaxRate:         r.TaxRate,
		ShippingCost:    r.ShippingCost,
		DiscountAmount:  r.DiscountAmount,
		TotalAmount:     r.TotalAmount,
		ShippingAddress: r.ShippingAddress.V,
		CouponID:        r.CouponID.String,
		CouponCode:      r.CouponCode.String,
		TrackingNumber:  r.TrackingNumber.String,
		Notes:           r.Notes,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type orderItemRow struct {
	ID          string          `db:"id"`
	OrderID     string          `db:"order_id"`
	ProductID   string          `db:"product_id"`
	VariationID sql.NullString  `db:"variation_id"`
	ProductName string          `db:"product_name"`
	Quantity    int             `db:"quantity"`
	Price       decimal.Decimal `db:"price"`
	Total       decimal.Decimal `db:"total"`
}

type historyRow struct {
	ID        string    `db:"id"`
	OrderID   string    `db:"order_id"`
	Status    string    `db:"status"`
	Notes     string    `db:"notes"`
	ChangedBy string    `db:"changed_by"`
	CreatedAt time.Time `db:"created_at"`
}

// OrderRepo implements order.Repository.
type OrderRepo struct {
	q sqlx.ExtContext
}

// NewOrderRepo binds the repository to a pool or transaction.
func NewOrderRepo(q sqlx.ExtContext) *OrderRepo {
	return &OrderRepo{q: q}
}

// Insert stores the order row and its items.
func (r *OrderRepo) Insert(ctx context.Context, o *order.Order) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		o.ID, nullString(o.UserID), o.CustomerEmail, o.CustomerName, string(o.Status), string(o.PaymentStatus),
		o.PaymentMethod, o.Subtotal, o.TaxAmount, o.TaxRate, o.ShippingCost, o.DiscountAmount, o.TotalAmount,
		jsonText[order.Address]{V: o.ShippingAddress}, nullString(o.CouponID), nullString(o.CouponCode),
		nullString(o.TrackingNumber), o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	for _, it := range o.Items {
		_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO order_items
			(id, order_id, product_id, variation_id, product_name, quantity, price, total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			it.ID, o.ID, it.ProductID, nullString(it.VariationID), it.ProductName, it.Quantity, it.Price, it.Total,
		)
		if err != nil {
			return errors.Wrapf(err, "insert order item %s", it.ProductID)
		}
	}
	return nil
}

// Get returns the order with items and history.
func (r *OrderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := r.get(ctx, id, false)
	if err != nil {
		return nil, err
	}
	var rows []historyRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(
		"SELECT id, order_id, status, notes, changed_by, created_at FROM order_status_history WHERE order_id = ? ORDER BY created_at, id"),
		id,
	); err != nil {
		return nil, errors.Wrap(err, "list order history")
	}
	o.History = make([]order.HistoryEntry, len(rows))
	for i, h := range rows {
		o.History[i] = order.HistoryEntry{
			ID:        h.ID,
			OrderID:   h.OrderID,
			Status:    order.Status(h.Status),
			Notes:     h.Notes,
			ChangedBy: h.ChangedBy,
			CreatedAt: h.CreatedAt,
		}
	}
	return o, nil
}

// GetForUpdate locks the order row and returns it with items.
func (r *OrderRepo) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, id, true)
}

func (r *OrderRepo) get(ctx context.Context, id string, lock bool) (*order.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE id = ?"
	if lock {
		query += " FOR UPDATE"
	}
	var row orderRow
	err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, order.ErrNotFound
	case err != nil:
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	o := row.toDomain()
	items, err := r.items(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	return &o, nil
}

func (r *OrderRepo) items(ctx context.Context, orderIDs []string) (map[string][]order.Item, error) {
	out := make(map[string][]order.Item, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT id, order_id, product_id, variation_id, product_name, quantity, price, total
		FROM order_items WHERE order_id IN (?) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, "expand item query")
	}
	var rows []orderItemRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list order items")
	}
	for _, it := range rows {
		out[it.OrderID] = append(out[it.OrderID], order.Item{
			ID:          it.ID,
			OrderID:     it.OrderID,
			ProductID:   it.ProductID,
			VariationID: it.VariationID.String,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Total:       it.Total,
		})
	}
	return out, nil
}

// List returns a page of orders, newest first, with their items.
func (r *OrderRepo) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, r.q.Rebind("SELECT COUNT(*) FROM orders"+clause), args...); err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	query, args := limitOffset("SELECT "+orderColumns+" FROM orders"+clause+" ORDER BY created_at DESC, id",
		args, f.Page.Limit(), f.Page.Offset())
	var rows []orderRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}

	orders := make([]order.Order, len(rows))
	ids := make([]string, len(rows))
	for i, row := range rows {
		orders[i] = row.toDomain()
		ids[i] = row.ID
	}
	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, total, nil
}

// UpdateStatus sets the status and tracking number.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id string, status order.Status, trackingNumber string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(
		"UPDATE orders SET status = ?, tracking_number = ?, updated_at = ? WHERE id = ?"),
		string(status), nullString(trackingNumber), at, id)
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	return requireRow(res, order.ErrNotFound)
}

// UpdatePaymentStatus sets the payment status.
func (r *OrderRepo) UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus, at time.Time) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(
		"UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ?"), string(status), at, id)
	if err != nil {
		return errors.Wrap(err, "update payment status")
	}
	return requireRow(res, order.ErrNotFound)
}

// AppendHistory inserts a status history row.
func (r *OrderRepo) AppendHistory(ctx context.Context, h *order.HistoryEntry) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO order_status_history
		(id, order_id, status, notes, changed_by, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		h.ID, h.OrderID, string(h.Status), h.Notes, h.ChangedBy, h.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "append order history")
	}
	return nil
}
