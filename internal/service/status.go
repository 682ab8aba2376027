package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/enum"
)

var (
	ErrInvalidStatus     = errors.New("status tidak valid")
	ErrIllegalTransition = errors.New("perubahan status tidak diizinkan")
	ErrStatusConflict    = errors.New("status pesanan berubah, silakan coba lagi")
)

// allowedTransitions is the order lifecycle. CANCELLED is reachable from any
// non-terminal state; COMPLETED and CANCELLED are terminal.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPendingPayment:      {enum.OrderStatusPaymentVerification, enum.OrderStatusConfirmed, enum.OrderStatusCancelled},
	enum.OrderStatusPaymentVerification: {enum.OrderStatusConfirmed, enum.OrderStatusPendingPayment, enum.OrderStatusCancelled},
	enum.OrderStatusConfirmed:           {enum.OrderStatusPreparing, enum.OrderStatusCancelled},
	enum.OrderStatusPreparing:           {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:               {enum.OrderStatusDelivered, enum.OrderStatusCancelled},
	enum.OrderStatusDelivered:           {enum.OrderStatusCompleted, enum.OrderStatusCancelled},
}

// ValidateTransition checks whether current -> next is a legal lifecycle move.
func ValidateTransition(current, next string) error {
	allowed, ok := allowedTransitions[current]
	if !ok {
		return fmt.Errorf("%w: %s sudah final", ErrIllegalTransition, current)
	}
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, next)
}

// IsTerminalStatus reports whether a status ends the order lifecycle.
func IsTerminalStatus(status string) bool {
	return status == enum.OrderStatusCompleted || status == enum.OrderStatusCancelled
}

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusPendingPayment, enum.OrderStatusPaymentVerification,
		enum.OrderStatusConfirmed, enum.OrderStatusPreparing, enum.OrderStatusReady,
		enum.OrderStatusDelivered, enum.OrderStatusCompleted, enum.OrderStatusCancelled:
		return true
	}
	return false
}

func isValidItemStatus(s string) bool {
	switch s {
	case enum.OrderItemStatusPending, enum.OrderItemStatusPreparing, enum.OrderItemStatusReady:
		return true
	}
	return false
}

// StatusStore defines the DB methods the status machine needs.
type StatusStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	SetOrderPaymentVerified(ctx context.Context, id uuid.UUID, at pgtype.Timestamptz) error
	ReleaseTable(ctx context.Context, id uuid.UUID) error
	CancelActivePayments(ctx context.Context, orderID uuid.UUID) error
	UpdateOrderItemStatus(ctx context.Context, arg database.UpdateOrderItemStatusParams) (database.OrderItem, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// Notifier pushes order events to connected kitchen/cashier displays.
// Satisfied by the ws hub adapter; nil disables notifications.
type Notifier interface {
	Broadcast(event string, payload any)
}

// StatusService drives the order lifecycle. Every forward transition is a
// single staff-authorized write; nothing advances on a timer.
type StatusService struct {
	store  StatusStore
	notify Notifier
}

func NewStatusService(store StatusStore, notify Notifier) *StatusService {
	return &StatusService{store: store, notify: notify}
}

// Transition moves an order to the next status with a compare-and-swap
// write. Reaching a terminal state releases the order's table and, for
// cancellations, voids any still-pending payment.
func (s *StatusService) Transition(ctx context.Context, orderID uuid.UUID, next string) (database.Order, error) {
	if !isValidOrderStatus(next) {
		return database.Order{}, ErrInvalidStatus
	}

	current, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return database.Order{}, err
	}

	if err := ValidateTransition(current.Status, next); err != nil {
		return database.Order{}, err
	}

	updated, err := s.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:         orderID,
		Status:     next,
		FromStatus: current.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The status changed between our read and write.
			return database.Order{}, ErrStatusConflict
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}

	if IsTerminalStatus(next) {
		s.finishOrder(ctx, updated)
	}

	s.broadcast("order.status_changed", updated)
	return updated, nil
}

// finishOrder runs the required terminal-state side effects. Both are
// best-effort: the status write already committed.
func (s *StatusService) finishOrder(ctx context.Context, order database.Order) {
	if order.TableID.Valid {
		if err := s.store.ReleaseTable(ctx, uuid.UUID(order.TableID.Bytes)); err != nil {
			log.Printf("ERROR: release table: order=%s table=%s: %v", order.ID, uuid.UUID(order.TableID.Bytes), err)
		}
	}
	if order.Status == enum.OrderStatusCancelled {
		if err := s.store.CancelActivePayments(ctx, order.ID); err != nil {
			log.Printf("ERROR: cancel active payments: order=%s: %v", order.ID, err)
		}
	}
}

// MarkPaymentVerified records verification and confirms the order. Called by
// the payment flow after staff approve a proof, or directly for CASH/CARD
// where no proof step exists and the order skips straight to CONFIRMED.
func (s *StatusService) MarkPaymentVerified(ctx context.Context, orderID uuid.UUID, at time.Time) (database.Order, error) {
	current, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return database.Order{}, err
	}

	if err := ValidateTransition(current.Status, enum.OrderStatusConfirmed); err != nil {
		return database.Order{}, err
	}

	updated, err := s.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:         orderID,
		Status:     enum.OrderStatusConfirmed,
		FromStatus: current.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrStatusConflict
		}
		return database.Order{}, fmt.Errorf("confirm order: %w", err)
	}

	if err := s.store.SetOrderPaymentVerified(ctx, orderID, pgtype.Timestamptz{Time: at, Valid: true}); err != nil {
		log.Printf("ERROR: stamp payment_verified_at: order=%s: %v", orderID, err)
	}

	s.broadcast("order.confirmed", updated)
	return updated, nil
}

// UpdateItemStatus moves a single line item through the kitchen projection.
func (s *StatusService) UpdateItemStatus(ctx context.Context, itemID uuid.UUID, next string) (database.OrderItem, error) {
	if !isValidItemStatus(next) {
		return database.OrderItem{}, ErrInvalidStatus
	}

	item, err := s.store.UpdateOrderItemStatus(ctx, database.UpdateOrderItemStatusParams{
		ID:     itemID,
		Status: next,
	})
	if err != nil {
		return database.OrderItem{}, err
	}

	s.broadcast("order.item_status_changed", item)
	return item, nil
}

func (s *StatusService) broadcast(event string, payload any) {
	if s.notify != nil {
		s.notify.Broadcast(event, payload)
	}
}
