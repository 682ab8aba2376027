package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/enum"
)

// mockStatusStore implements StatusStore with configurable behavior.
type mockStatusStore struct {
	getOrderFn                func(ctx context.Context, id uuid.UUID) (database.Order, error)
	updateOrderStatusFn       func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	setOrderPaymentVerifiedFn func(ctx context.Context, id uuid.UUID, at pgtype.Timestamptz) error
	releaseTableFn            func(ctx context.Context, id uuid.UUID) error
	cancelActivePaymentsFn    func(ctx context.Context, orderID uuid.UUID) error
	updateOrderItemStatusFn   func(ctx context.Context, arg database.UpdateOrderItemStatusParams) (database.OrderItem, error)
	listOrderItemsByOrderFn   func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

func (m *mockStatusStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.getOrderFn(ctx, id)
}
func (m *mockStatusStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	return m.updateOrderStatusFn(ctx, arg)
}
func (m *mockStatusStore) SetOrderPaymentVerified(ctx context.Context, id uuid.UUID, at pgtype.Timestamptz) error {
	return m.setOrderPaymentVerifiedFn(ctx, id, at)
}
func (m *mockStatusStore) ReleaseTable(ctx context.Context, id uuid.UUID) error {
	return m.releaseTableFn(ctx, id)
}
func (m *mockStatusStore) CancelActivePayments(ctx context.Context, orderID uuid.UUID) error {
	return m.cancelActivePaymentsFn(ctx, orderID)
}
func (m *mockStatusStore) UpdateOrderItemStatus(ctx context.Context, arg database.UpdateOrderItemStatusParams) (database.OrderItem, error) {
	return m.updateOrderItemStatusFn(ctx, arg)
}
func (m *mockStatusStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	return m.listOrderItemsByOrderFn(ctx, orderID)
}

// mockNotifier records broadcasts.
type mockNotifier struct {
	events []string
}

func (m *mockNotifier) Broadcast(event string, payload any) {
	m.events = append(m.events, event)
}

func statusStoreFor(orderID uuid.UUID, current string) *mockStatusStore {
	return &mockStatusStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return database.Order{ID: orderID, Status: current}, nil
		},
		updateOrderStatusFn: func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
			return database.Order{ID: arg.ID, Status: arg.Status}, nil
		},
		setOrderPaymentVerifiedFn: func(ctx context.Context, id uuid.UUID, at pgtype.Timestamptz) error {
			return nil
		},
		releaseTableFn:         func(ctx context.Context, id uuid.UUID) error { return nil },
		cancelActivePaymentsFn: func(ctx context.Context, orderID uuid.UUID) error { return nil },
		updateOrderItemStatusFn: func(ctx context.Context, arg database.UpdateOrderItemStatusParams) (database.OrderItem, error) {
			return database.OrderItem{ID: arg.ID, Status: arg.Status}, nil
		},
		listOrderItemsByOrderFn: func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
			return nil, nil
		},
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		current string
		next    string
		wantErr bool
	}{
		{enum.OrderStatusPendingPayment, enum.OrderStatusPaymentVerification, false},
		{enum.OrderStatusPendingPayment, enum.OrderStatusConfirmed, false},
		{enum.OrderStatusPaymentVerification, enum.OrderStatusConfirmed, false},
		{enum.OrderStatusPaymentVerification, enum.OrderStatusPendingPayment, false},
		{enum.OrderStatusConfirmed, enum.OrderStatusPreparing, false},
		{enum.OrderStatusPreparing, enum.OrderStatusReady, false},
		{enum.OrderStatusReady, enum.OrderStatusDelivered, false},
		{enum.OrderStatusDelivered, enum.OrderStatusCompleted, false},
		// CANCELLED reachable from any non-terminal state.
		{enum.OrderStatusPendingPayment, enum.OrderStatusCancelled, false},
		{enum.OrderStatusPreparing, enum.OrderStatusCancelled, false},
		{enum.OrderStatusDelivered, enum.OrderStatusCancelled, false},
		// No skipping ahead or going back.
		{enum.OrderStatusPendingPayment, enum.OrderStatusPreparing, true},
		{enum.OrderStatusConfirmed, enum.OrderStatusReady, true},
		{enum.OrderStatusReady, enum.OrderStatusPreparing, true},
		{enum.OrderStatusPreparing, enum.OrderStatusConfirmed, true},
		// Terminal states admit nothing.
		{enum.OrderStatusCompleted, enum.OrderStatusCancelled, true},
		{enum.OrderStatusCancelled, enum.OrderStatusPendingPayment, true},
		{enum.OrderStatusCompleted, enum.OrderStatusCompleted, true},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.current, tt.next)
		if tt.wantErr && !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("%s -> %s: err = %v, want ErrIllegalTransition", tt.current, tt.next, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("%s -> %s: unexpected err %v", tt.current, tt.next, err)
		}
	}
}

func TestTransitionSuccess(t *testing.T) {
	orderID := uuid.New()
	store := statusStoreFor(orderID, enum.OrderStatusConfirmed)

	var casParams database.UpdateOrderStatusParams
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		casParams = arg
		return database.Order{ID: arg.ID, Status: arg.Status}, nil
	}

	notify := &mockNotifier{}
	svc := NewStatusService(store, notify)

	order, err := svc.Transition(context.Background(), orderID, enum.OrderStatusPreparing)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if order.Status != enum.OrderStatusPreparing {
		t.Errorf("status = %s, want PREPARING", order.Status)
	}
	// The write must be guarded by the status we read.
	if casParams.FromStatus != enum.OrderStatusConfirmed {
		t.Errorf("FromStatus = %s, want CONFIRMED", casParams.FromStatus)
	}
	if len(notify.events) != 1 || notify.events[0] != "order.status_changed" {
		t.Errorf("events = %v", notify.events)
	}
}

func TestTransitionRejectsInvalidStatus(t *testing.T) {
	svc := NewStatusService(statusStoreFor(uuid.New(), enum.OrderStatusConfirmed), nil)

	if _, err := svc.Transition(context.Background(), uuid.New(), "SHIPPED"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestTransitionIllegal(t *testing.T) {
	orderID := uuid.New()
	svc := NewStatusService(statusStoreFor(orderID, enum.OrderStatusPendingPayment), nil)

	if _, err := svc.Transition(context.Background(), orderID, enum.OrderStatusReady); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestTransitionConcurrentConflict(t *testing.T) {
	// Another writer changed the status between our read and the CAS write:
	// the conditional update matches no row.
	orderID := uuid.New()
	store := statusStoreFor(orderID, enum.OrderStatusConfirmed)
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		return database.Order{}, pgx.ErrNoRows
	}
	svc := NewStatusService(store, nil)

	if _, err := svc.Transition(context.Background(), orderID, enum.OrderStatusPreparing); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("err = %v, want ErrStatusConflict", err)
	}
}

func TestTransitionToTerminalReleasesTable(t *testing.T) {
	orderID := uuid.New()
	tableID := uuid.New()

	store := statusStoreFor(orderID, enum.OrderStatusDelivered)
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		return database.Order{
			ID:      arg.ID,
			Status:  arg.Status,
			TableID: pgtype.UUID{Bytes: tableID, Valid: true},
		}, nil
	}
	released := false
	store.releaseTableFn = func(ctx context.Context, id uuid.UUID) error {
		released = true
		if id != tableID {
			t.Errorf("released table %s, want %s", id, tableID)
		}
		return nil
	}
	cancelled := false
	store.cancelActivePaymentsFn = func(ctx context.Context, id uuid.UUID) error {
		cancelled = true
		return nil
	}
	svc := NewStatusService(store, nil)

	if _, err := svc.Transition(context.Background(), orderID, enum.OrderStatusCompleted); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !released {
		t.Error("table was not released on completion")
	}
	if cancelled {
		t.Error("payments voided on completion; that is a cancellation-only effect")
	}
}

func TestCancellationVoidsPendingPayments(t *testing.T) {
	orderID := uuid.New()

	store := statusStoreFor(orderID, enum.OrderStatusPendingPayment)
	cancelled := false
	store.cancelActivePaymentsFn = func(ctx context.Context, id uuid.UUID) error {
		cancelled = true
		return nil
	}
	svc := NewStatusService(store, nil)

	if _, err := svc.Transition(context.Background(), orderID, enum.OrderStatusCancelled); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !cancelled {
		t.Error("pending payments were not voided on cancellation")
	}
}

func TestTerminalSideEffectFailureIsNonFatal(t *testing.T) {
	// The status write committed; a failed table release only logs.
	orderID := uuid.New()
	store := statusStoreFor(orderID, enum.OrderStatusDelivered)
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		return database.Order{
			ID:      arg.ID,
			Status:  arg.Status,
			TableID: pgtype.UUID{Bytes: uuid.New(), Valid: true},
		}, nil
	}
	store.releaseTableFn = func(ctx context.Context, id uuid.UUID) error {
		return errors.New("connection reset")
	}
	svc := NewStatusService(store, nil)

	order, err := svc.Transition(context.Background(), orderID, enum.OrderStatusCompleted)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if order.Status != enum.OrderStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", order.Status)
	}
}

func TestMarkPaymentVerified(t *testing.T) {
	orderID := uuid.New()
	store := statusStoreFor(orderID, enum.OrderStatusPaymentVerification)

	var stamped pgtype.Timestamptz
	store.setOrderPaymentVerifiedFn = func(ctx context.Context, id uuid.UUID, at pgtype.Timestamptz) error {
		stamped = at
		return nil
	}
	notify := &mockNotifier{}
	svc := NewStatusService(store, notify)

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	order, err := svc.MarkPaymentVerified(context.Background(), orderID, at)
	if err != nil {
		t.Fatalf("MarkPaymentVerified: %v", err)
	}
	if order.Status != enum.OrderStatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", order.Status)
	}
	if !stamped.Valid || !stamped.Time.Equal(at) {
		t.Errorf("payment_verified_at = %v, want %v", stamped.Time, at)
	}
	if len(notify.events) != 1 || notify.events[0] != "order.confirmed" {
		t.Errorf("events = %v", notify.events)
	}
}

func TestMarkPaymentVerifiedFromPendingPayment(t *testing.T) {
	// CASH/CARD orders have no proof step: verification confirms them
	// straight from PENDING_PAYMENT.
	orderID := uuid.New()
	svc := NewStatusService(statusStoreFor(orderID, enum.OrderStatusPendingPayment), nil)

	order, err := svc.MarkPaymentVerified(context.Background(), orderID, time.Now().UTC())
	if err != nil {
		t.Fatalf("MarkPaymentVerified: %v", err)
	}
	if order.Status != enum.OrderStatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", order.Status)
	}
}

func TestMarkPaymentVerifiedRejectsTerminal(t *testing.T) {
	orderID := uuid.New()
	svc := NewStatusService(statusStoreFor(orderID, enum.OrderStatusCancelled), nil)

	if _, err := svc.MarkPaymentVerified(context.Background(), orderID, time.Now().UTC()); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestUpdateItemStatus(t *testing.T) {
	itemID := uuid.New()
	store := statusStoreFor(uuid.New(), enum.OrderStatusPreparing)
	notify := &mockNotifier{}
	svc := NewStatusService(store, notify)

	item, err := svc.UpdateItemStatus(context.Background(), itemID, enum.OrderItemStatusReady)
	if err != nil {
		t.Fatalf("UpdateItemStatus: %v", err)
	}
	if item.Status != enum.OrderItemStatusReady {
		t.Errorf("status = %s, want READY", item.Status)
	}
	if len(notify.events) != 1 || notify.events[0] != "order.item_status_changed" {
		t.Errorf("events = %v", notify.events)
	}
}

func TestUpdateItemStatusRejectsOrderStatus(t *testing.T) {
	svc := NewStatusService(statusStoreFor(uuid.New(), enum.OrderStatusPreparing), nil)

	// Order-level statuses are not valid item statuses.
	if _, err := svc.UpdateItemStatus(context.Background(), uuid.New(), enum.OrderStatusCompleted); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}
