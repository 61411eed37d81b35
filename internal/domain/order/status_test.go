package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/notify"
	"github.com/xenking/oolio-shop/internal/domain/product"
)

func TestTransition_UnknownOrder(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.machine.Transition(context.Background(), TransitionRequest{OrderID: "missing", Status: StatusConfirmed})
	var nfErr *OrderNotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "missing", nfErr.OrderID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestTransition_UnknownStatus(t *testing.T) {
	f := newFixture(t, Config{})
	o := placeOne(t, f, "u1", 1)

	_, err := f.machine.Transition(context.Background(), TransitionRequest{OrderID: o.ID, Status: "lost"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Len(t, f.store.historyFor(o.ID), 1)
}

func TestTransition_HistoryIsAppendOnly(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	o := placeOne(t, f, "u1", 1)

	steps := []Status{StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered}
	for i, st := range steps {
		before := f.store.historyFor(o.ID)
		_, err := f.machine.Transition(ctx, TransitionRequest{OrderID: o.ID, Status: st, Actor: "staff-1"})
		require.NoError(t, err)

		after := f.store.historyFor(o.ID)
		require.Len(t, after, i+2)
		assert.Equal(t, before, after[:len(before)], "earlier rows never change")
		assert.Equal(t, st, after[len(after)-1].Status)
	}
}

func TestTransition_CancelRestoresStockOnce(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.store.addProduct(product.Product{ID: "p1", Name: "Kettle", Price: d("1000"), StockQuantity: 10})
	f.store.addProduct(product.Product{
		ID: "p2", Name: "Shirt", Price: d("50"), StockQuantity: 0,
		Variations: []product.Variation{{ID: "v1", ProductID: "p2", Price: d("50"), StockQuantity: 4}},
	})

	o, err := f.svc.PlaceOrder(ctx, request("u1",
		LineRequest{ProductID: "p1", Quantity: 3},
		LineRequest{ProductID: "p2", VariationID: "v1", Quantity: 2},
	))
	require.NoError(t, err)
	assert.Equal(t, 7, f.store.products["p1"].StockQuantity)
	assert.Equal(t, 2, f.store.products["p2"].Variations[0].StockQuantity)

	// Unrelated stock change between order and cancellation.
	f.store.products["p1"].StockQuantity += 5

	_, err = f.machine.Transition(ctx, TransitionRequest{OrderID: o.ID, Status: StatusCancelled, Notes: "fraud"})
	require.NoError(t, err)
	assert.Equal(t, 15, f.store.products["p1"].StockQuantity)
	assert.Equal(t, 4, f.store.products["p2"].Variations[0].StockQuantity)

	_, err = f.machine.Transition(ctx, TransitionRequest{OrderID: o.ID, Status: StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, 15, f.store.products["p1"].StockQuantity, "second cancel does not restore again")
	assert.Len(t, f.store.historyFor(o.ID), 3)
}

func TestTransition_RestoreFailureRollsBack(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	o := placeOne(t, f, "u1", 2)
	f.store.failAt = "restore"

	_, err := f.machine.Transition(ctx, TransitionRequest{OrderID: o.ID, Status: StatusCancelled})
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, StatusPending, f.store.orders[o.ID].Status)
	assert.Len(t, f.store.historyFor(o.ID), 1)
	assert.Equal(t, 8, f.store.products["p1"].StockQuantity)
}

func TestTransition_DeliveredMarksPaid(t *testing.T) {
	f := newFixture(t, Config{})
	o := placeOne(t, f, "u1", 1)

	got, err := f.machine.Transition(context.Background(), TransitionRequest{
		OrderID: o.ID, Status: StatusDelivered, TrackingNumber: "TRK-1",
	})
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.Equal(t, PaymentPaid, f.store.orders[o.ID].PaymentStatus)
	assert.Equal(t, "TRK-1", f.store.orders[o.ID].TrackingNumber)
}

func TestTransition_TrackingNumberKeptWhenOmitted(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	o := placeOne(t, f, "u1", 1)

	_, err := f.machine.Transition(ctx, TransitionRequest{OrderID: o.ID, Status: StatusShipped, TrackingNumber: "TRK-9"})
	require.NoError(t, err)
	_, err = f.machine.Transition(ctx, TransitionRequest{OrderID: o.ID, Status: StatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, "TRK-9", f.store.orders[o.ID].TrackingNumber)
}

func TestTransition_Notifications(t *testing.T) {
	tests := []struct {
		name         string
		path         []Status
		wantCustomer []notify.Event
		wantAdmin    []notify.Event
	}{
		{
			name:         "pending to confirmed alerts both",
			path:         []Status{StatusConfirmed},
			wantCustomer: []notify.Event{notify.EventOrderStatusUpdate},
			wantAdmin:    []notify.Event{notify.EventAdminAlert},
		},
		{
			name: "processing is silent",
			path: []Status{StatusProcessing},
		},
		{
			name: "shipped is suppressed",
			path: []Status{StatusShipped},
		},
		{
			name:         "delivered alerts both",
			path:         []Status{StatusDelivered},
			wantCustomer: []notify.Event{notify.EventOrderStatusUpdate},
			wantAdmin:    []notify.Event{notify.EventAdminAlert},
		},
		{
			name:         "cancelled alerts both",
			path:         []Status{StatusCancelled},
			wantCustomer: []notify.Event{notify.EventOrderStatusUpdate},
			wantAdmin:    []notify.Event{notify.EventAdminAlert},
		},
		{
			name:         "processing to confirmed is not a new order",
			path:         []Status{StatusProcessing, StatusConfirmed},
			wantCustomer: []notify.Event{notify.EventOrderStatusUpdate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			o := placeOne(t, f, "u1", 1)
			f.sender.msgs = nil
			f.publisher.events = nil

			for _, st := range tt.path {
				_, err := f.machine.Transition(context.Background(), TransitionRequest{OrderID: o.ID, Status: st})
				require.NoError(t, err)
			}

			assert.Equal(t, tt.wantCustomer, f.sender.events(customerEmail))
			assert.Equal(t, tt.wantAdmin, f.sender.events(adminEmail))
			require.Len(t, f.publisher.events, len(tt.path))
			last := f.publisher.events[len(f.publisher.events)-1]
			assert.Equal(t, EventOrderStatusChanged, last.Type)
			assert.Equal(t, tt.path[len(tt.path)-1], last.Order.Status)
		})
	}
}

func TestTransition_Policy(t *testing.T) {
	tests := []struct {
		name    string
		strict  bool
		path    []Status
		wantErr bool
	}{
		{name: "permissive allows delivered to pending", path: []Status{StatusDelivered, StatusPending}},
		{name: "strict allows happy path", strict: true, path: []Status{StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered}},
		{name: "strict allows cancel from confirmed", strict: true, path: []Status{StatusConfirmed, StatusCancelled}},
		{name: "strict rejects skipping", strict: true, path: []Status{StatusShipped}, wantErr: true},
		{name: "strict rejects cancel after processing", strict: true, path: []Status{StatusConfirmed, StatusProcessing, StatusCancelled}, wantErr: true},
		{name: "strict rejects leaving cancelled", strict: true, path: []Status{StatusCancelled, StatusPending}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{StrictTransitions: tt.strict})
			o := placeOne(t, f, "u1", 1)

			var err error
			for _, st := range tt.path {
				_, err = f.machine.Transition(context.Background(), TransitionRequest{OrderID: o.ID, Status: st})
				if err != nil {
					break
				}
			}
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.path[len(tt.path)-1], f.store.orders[o.ID].Status)
				return
			}
			var trErr *InvalidTransitionError
			require.ErrorAs(t, err, &trErr)
			assert.Equal(t, apperr.KindBusinessRule, apperr.KindOf(err))
		})
	}
}

func TestBulkTransition(t *testing.T) {
	f := newFixture(t, Config{StrictTransitions: true})
	ctx := context.Background()
	a := placeOne(t, f, "u1", 1)
	b := placeOne(t, f, "u2", 1)
	shipped := placeOne(t, f, "u3", 1)
	for _, st := range []Status{StatusConfirmed, StatusProcessing, StatusShipped} {
		_, err := f.machine.Transition(ctx, TransitionRequest{OrderID: shipped.ID, Status: st})
		require.NoError(t, err)
	}

	res, err := f.machine.BulkTransition(ctx, []string{a.ID, "missing", b.ID, shipped.ID}, StatusConfirmed, "batch", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Updated)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "missing", res.Failures[0].OrderID)
	assert.Equal(t, shipped.ID, res.Failures[1].OrderID)

	assert.Equal(t, StatusConfirmed, f.store.orders[a.ID].Status)
	assert.Equal(t, StatusConfirmed, f.store.orders[b.ID].Status)
	assert.Equal(t, StatusShipped, f.store.orders[shipped.ID].Status)

	_, err = f.machine.BulkTransition(ctx, []string{a.ID}, "nope", "", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusConfirmed))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.False(t, CanTransition(StatusShipped, StatusCancelled))
	assert.False(t, CanTransition(StatusDelivered, StatusPending))
	assert.False(t, CanTransition(StatusCancelled, StatusPending))
}
