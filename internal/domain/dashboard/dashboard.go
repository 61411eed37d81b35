// Package dashboard aggregates store-wide figures for the admin overview.
package dashboard

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-shop/internal/domain/order"
)

// Summary is the admin overview.
type Summary struct {
	OrdersByStatus   map[order.Status]int
	TotalOrders      int
	Revenue          decimal.Decimal
	LowStockProducts int
}

// Repository computes the raw aggregates.
type Repository interface {
	CountOrdersByStatus(ctx context.Context) (map[order.Status]int, error)
	// PaidRevenue sums total_amount of paid orders.
	PaidRevenue(ctx context.Context) (decimal.Decimal, error)
	// CountLowStock counts active products whose stock is at or below threshold.
	CountLowStock(ctx context.Context, threshold int) (int, error)
}

// Service builds the summary.
type Service struct {
	repo      Repository
	threshold int
}

// NewService returns a dashboard service using threshold for low stock.
func NewService(repo Repository, threshold int) *Service {
	return &Service{repo: repo, threshold: threshold}
}

// Summary returns the current overview. Every known status is present in
// OrdersByStatus, zero when no order has it.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	counts, err := s.repo.CountOrdersByStatus(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count orders")
	}
	revenue, err := s.repo.PaidRevenue(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "paid revenue")
	}
	low, err := s.repo.CountLowStock(ctx, s.threshold)
	if err != nil {
		return nil, errors.Wrap(err, "count low stock")
	}

	out := &Summary{
		OrdersByStatus:   make(map[order.Status]int, len(order.Statuses)),
		Revenue:          revenue,
		LowStockProducts: low,
	}
	for _, st := range order.Statuses {
		out.OrdersByStatus[st] = 0
	}
	for st, n := range counts {
		out.OrdersByStatus[st] = n
		out.TotalOrders += n
	}
	return out, nil
}
