package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/notify"
)

// allowedTransitions is enforced only with Config.StrictTransitions.
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusDelivered},
}

// CanTransition reports whether the strict table allows from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// customerNotified lists statuses that email the customer. Shipped is left
// out on purpose.
var customerNotified = map[Status]bool{
	StatusConfirmed: true,
	StatusDelivered: true,
	StatusCancelled: true,
}

// TransitionRequest asks to move an order to Status.
type TransitionRequest struct {
	OrderID        string
	Status         Status
	Notes          string
	TrackingNumber string
	Actor          string
	// ExpectedFrom, when set, rejects the change unless the order is
	// currently in that status.
	ExpectedFrom Status
}

// BulkFailure is a per-order failure of a bulk transition.
type BulkFailure struct {
	OrderID string
	Error   string
}

// BulkResult summarizes a bulk transition.
type BulkResult struct {
	Updated  int
	Total    int
	Failures []BulkFailure
}

// StatusMachine applies status changes with their side effects.
type StatusMachine struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

// NewStatusMachine creates a StatusMachine.
func NewStatusMachine(deps Deps, cfg Config) *StatusMachine {
	return &StatusMachine{deps: deps.withDefaults(), cfg: cfg, now: time.Now}
}

// Transition persists the new status and a history row in one transaction.
// Cancelling restores stock for every item unless the order was already
// cancelled; delivering marks a pending payment as paid. Notifications and
// the status event are sent after commit.
func (m *StatusMachine) Transition(ctx context.Context, req TransitionRequest) (*Order, error) {
	if !req.Status.Valid() {
		return nil, apperr.Validation("Invalid order status",
			apperr.FieldError{Field: "status", Message: "must be one of pending, confirmed, processing, shipped, delivered, cancelled"})
	}

	var (
		o    *Order
		from Status
	)
	now := m.now().UTC()
	err := m.deps.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = tx.Orders().GetForUpdate(ctx, req.OrderID)
		switch {
		case errors.Is(err, ErrNotFound):
			return &OrderNotFoundError{OrderID: req.OrderID}
		case err != nil:
			return errors.Wrap(err, "get order")
		}
		from = o.Status

		if req.ExpectedFrom != "" && from != req.ExpectedFrom {
			return &InvalidTransitionError{From: from, To: req.Status}
		}
		if m.cfg.StrictTransitions && !CanTransition(from, req.Status) {
			return &InvalidTransitionError{From: from, To: req.Status}
		}

		tracking := o.TrackingNumber
		if req.TrackingNumber != "" {
			tracking = req.TrackingNumber
		}
		if err := tx.Orders().UpdateStatus(ctx, o.ID, req.Status, tracking, now); err != nil {
			return errors.Wrap(err, "update status")
		}
		if err := tx.Orders().AppendHistory(ctx, &HistoryEntry{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			Status:    req.Status,
			Notes:     req.Notes,
			ChangedBy: req.Actor,
			CreatedAt: now,
		}); err != nil {
			return errors.Wrap(err, "append history")
		}

		if req.Status == StatusCancelled && from != StatusCancelled {
			for _, it := range o.Items {
				if err := tx.Stock().RestoreStock(ctx, it.ProductID, it.VariationID, it.Quantity); err != nil {
					return errors.Wrapf(err, "restore stock %s", it.ProductID)
				}
			}
		}
		if req.Status == StatusDelivered && o.PaymentStatus == PaymentPending {
			if err := tx.Orders().UpdatePaymentStatus(ctx, o.ID, PaymentPaid, now); err != nil {
				return errors.Wrap(err, "update payment status")
			}
			o.PaymentStatus = PaymentPaid
		}

		o.Status = req.Status
		o.TrackingNumber = tracking
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "transition order")
	}

	m.afterCommit(ctx, o, from, req, now)
	return o, nil
}

func (m *StatusMachine) afterCommit(ctx context.Context, o *Order, from Status, req TransitionRequest, at time.Time) {
	m.deps.Metrics.transitioned(ctx, from, o.Status)

	if customerNotified[o.Status] {
		data := customerData(o)
		data["notes"] = req.Notes
		m.deps.Notifier.Send(ctx, notify.Message{
			Event: notify.EventOrderStatusUpdate,
			To:    o.CustomerEmail,
			Data:  data,
		})
	}

	if m.cfg.AdminEmail != "" {
		var title string
		switch {
		case o.Status == StatusCancelled:
			title = "Order cancelled"
		case o.Status == StatusDelivered:
			title = "Order delivered"
		case from == StatusPending && o.Status == StatusConfirmed:
			title = "New order confirmed"
		}
		if title != "" {
			m.deps.Notifier.Send(ctx, notify.Message{
				Event: notify.EventAdminAlert,
				To:    m.cfg.AdminEmail,
				Data:  adminData(o, title),
			})
		}
	}

	publish(ctx, m.deps.Publisher, Event{
		Type:           EventOrderStatusChanged,
		Order:          o,
		PreviousStatus: from,
		Actor:          req.Actor,
		OccurredAt:     at,
	})
}

// BulkTransition applies the same change to each order independently. One
// order failing does not stop the others.
func (m *StatusMachine) BulkTransition(ctx context.Context, ids []string, status Status, notes, actor string) (*BulkResult, error) {
	if !status.Valid() {
		return nil, apperr.Validation("Invalid order status",
			apperr.FieldError{Field: "status", Message: "must be one of pending, confirmed, processing, shipped, delivered, cancelled"})
	}
	res := &BulkResult{Total: len(ids)}
	for _, id := range ids {
		_, err := m.Transition(ctx, TransitionRequest{
			OrderID: id,
			Status:  status,
			Notes:   notes,
			Actor:   actor,
		})
		if err != nil {
			res.Failures = append(res.Failures, BulkFailure{OrderID: id, Error: apperr.MessageOf(err)})
			continue
		}
		res.Updated++
	}
	return res, nil
}
