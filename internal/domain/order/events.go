package order

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Event types published after commit.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// Event describes a committed order change.
type Event struct {
	Type           string
	Order          *Order
	PreviousStatus Status
	Actor          string
	OccurredAt     time.Time
}

// Publisher forwards order events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// publishTimeout bounds a post-commit publish.
const publishTimeout = 10 * time.Second

// publish runs after the transaction committed, so it must not be cut short
// by the caller going away.
func publish(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, e); err != nil {
		zctx.From(ctx).Error("Publish order event",
			zap.String("type", e.Type),
			zap.String("order_id", e.Order.ID),
			zap.Error(err),
		)
	}
}

// Metrics records order counters. A nil *Metrics records nothing.
type Metrics struct {
	placed      metric.Int64Counter
	revenue     metric.Float64Counter
	transitions metric.Int64Counter
}

// NewMetrics registers the order instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	placed, err := meter.Int64Counter("shop.orders.placed",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		return nil, err
	}
	revenue, err := meter.Float64Counter("shop.orders.amount",
		metric.WithDescription("Total amount of placed orders"),
	)
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("shop.orders.transitions",
		metric.WithDescription("Order status transitions"),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{placed: placed, revenue: revenue, transitions: transitions}, nil
}

func (m *Metrics) orderPlaced(ctx context.Context, o *Order) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("payment_method", o.PaymentMethod),
		attribute.Bool("coupon", o.CouponCode != ""),
	)
	m.placed.Add(ctx, 1, attrs)
	m.revenue.Add(ctx, o.TotalAmount.InexactFloat64(), attrs)
}

func (m *Metrics) transitioned(ctx context.Context, from, to Status) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}
