package sqlstore

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/domain/dashboard"
	"github.com/xenking/oolio-shop/internal/domain/order"
	"github.com/xenking/oolio-shop/internal/domain/product"
)

var _ dashboard.Repository = (*DashboardRepo)(nil)

// DashboardRepo implements dashboard.Repository.
type DashboardRepo struct {
	q sqlx.ExtContext
}

// NewDashboardRepo binds the repository to a pool or transaction.
func NewDashboardRepo(q sqlx.ExtContext) *DashboardRepo {
	return &DashboardRepo{q: q}
}

func (r *DashboardRepo) CountOrdersByStatus(ctx context.Context) (map[order.Status]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows, "SELECT status, COUNT(*) AS n FROM orders GROUP BY status"); err != nil {
		return nil, errors.Wrap(err, "count orders by status")
	}
	out := make(map[order.Status]int, len(rows))
	for _, row := range rows {
		out[order.Status(row.Status)] = row.N
	}
	return out, nil
}

func (r *DashboardRepo) PaidRevenue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	if err := sqlx.GetContext(ctx, r.q, &total, r.q.Rebind(
		"SELECT SUM(total_amount) FROM orders WHERE payment_status = ?"), string(order.PaymentPaid),
	); err != nil {
		return decimal.Zero, errors.Wrap(err, "sum revenue")
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *DashboardRepo) CountLowStock(ctx context.Context, threshold int) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, r.q.Rebind(
		"SELECT COUNT(*) FROM products WHERE status = ? AND stock_quantity <= ?"), string(product.StatusActive), threshold)
	if err != nil {
		return 0, errors.Wrap(err, "count low stock")
	}
	return n, nil
}
