package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/enum"
	"github.com/kopikita/api/internal/pricing"
	"github.com/kopikita/api/internal/promo"
	"github.com/shopspring/decimal"
)

// preparationWindow is the fixed kitchen prep estimate returned to the
// customer on order creation.
const preparationWindow = 20 * time.Minute

// Errors returned by the order service. Customer-facing text is Indonesian.
var (
	ErrEmptyItems        = errors.New("daftar pesanan tidak boleh kosong")
	ErrMissingCustomer   = errors.New("nama dan nomor telepon pelanggan wajib diisi")
	ErrTableNotFound     = errors.New("meja tidak ditemukan")
	ErrInvalidQuantity   = errors.New("jumlah item harus lebih dari 0")
	ErrInvalidMenuItemID = errors.New("menu_item_id tidak valid")
	ErrInvalidMenuItem   = errors.New("menu tidak ditemukan atau sedang tidak tersedia")
	ErrInvalidUnitPrice  = errors.New("unit_price tidak valid")
)

// TxBeginner starts a new database transaction. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods the order flow needs.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetTable(ctx context.Context, id uuid.UUID) (database.Table, error)
	GetTableByNumber(ctx context.Context, tableNumber string) (database.Table, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	UpdateOrderSession(ctx context.Context, id uuid.UUID, sessionID string) error
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)
	IncrementPromoUsage(ctx context.Context, id uuid.UUID) (int64, error)
	OccupyTable(ctx context.Context, arg database.OccupyTableParams) (database.Table, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// PromoValidator checks promo eligibility against an order subtotal.
// Satisfied by *promo.Validator.
type PromoValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (*promo.DiscountResult, error)
}

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	TableRef      string // table id or printed table number; empty = takeaway
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	PromoCode     string
	Items         []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single cart line.
type CreateOrderItemRequest struct {
	MenuItemID         string
	Quantity           int32
	UnitPrice          string // optional client override of the menu price
	CustomizationPrice string // optional, priced add-ons for the line
	Customizations     map[string][]string
	Notes              string
}

// CreateOrderResult is what the creation endpoint returns to the customer.
type CreateOrderResult struct {
	Order               database.Order
	Items               []database.OrderItem
	TableNumber         string
	EstimatedCompletion time.Time
}

// OrderService builds and persists orders.
type OrderService struct {
	pool     TxBeginner
	store    OrderStore // pool-backed, for best-effort steps outside the tx
	newStore NewOrderStore
	promos   PromoValidator
	now      func() time.Time
}

func NewOrderService(pool TxBeginner, store OrderStore, newStore NewOrderStore, promos PromoValidator) *OrderService {
	return &OrderService{
		pool:     pool,
		store:    store,
		newStore: newStore,
		promos:   promos,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// orderDraft is the fully-resolved, priced order before any row exists.
type orderDraft struct {
	table  *database.Table
	items  []draftItem
	totals pricing.Totals
	promo  *promo.DiscountResult
}

type draftItem struct {
	menuItemID         uuid.UUID
	name               string
	unitPrice          decimal.Decimal
	customizationPrice decimal.Decimal
	quantity           int32
	customizations     []byte
	subtotal           decimal.Decimal
	notes              string
}

// CreateOrder validates the cart, prices it, and runs the persistence
// sequence. The must-succeed steps (header, session id, items, totals,
// promo usage) commit in one transaction: an item failure can never leave an
// orphan header, and a lost promo-usage race aborts the whole order with a
// conflict. Table occupancy is best-effort after commit.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	draft, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.persistDraft(ctx, req, draft)
	if err != nil {
		return nil, err
	}

	// Step: mark the table occupied with the new session. Best-effort: the
	// order already exists and matters more than occupancy bookkeeping, but
	// every failure is logged with enough context for reconciliation.
	if draft.table != nil {
		_, err := s.store.OccupyTable(ctx, database.OccupyTableParams{
			ID:        draft.table.ID,
			SessionID: result.Order.SessionID.String,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				log.Printf("ERROR: occupy table: order=%s table=%s: held by another session", result.Order.ID, draft.table.ID)
			} else {
				log.Printf("ERROR: occupy table: order=%s table=%s: %v", result.Order.ID, draft.table.ID, err)
			}
		}
		result.TableNumber = draft.table.TableNumber
	}

	return result, nil
}

// build resolves and validates the cart into a priced draft. Fail-fast: the
// first unresolvable line fails the whole build.
func (s *OrderService) build(ctx context.Context, req CreateOrderRequest) (*orderDraft, error) {
	if strings.TrimSpace(req.CustomerName) == "" || strings.TrimSpace(req.CustomerPhone) == "" {
		return nil, ErrMissingCustomer
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	table, err := s.resolveTable(ctx, req.TableRef)
	if err != nil {
		return nil, err
	}

	items := make([]draftItem, 0, len(req.Items))
	lines := make([]pricing.LineItem, 0, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}

		menuItemID, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidMenuItemID)
		}

		menuItem, err := s.store.GetMenuItem(ctx, menuItemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("items[%d] (%s): %w", i, item.MenuItemID, ErrInvalidMenuItem)
			}
			return nil, fmt.Errorf("items[%d]: get menu item: %w", i, err)
		}
		if !menuItem.IsAvailable {
			return nil, fmt.Errorf("items[%d] (%s): %w", i, item.MenuItemID, ErrInvalidMenuItem)
		}

		// Snapshot the price at order time. A client-sent unit_price
		// overrides the menu price; no server-side bound is applied.
		unitPrice := numericToDecimal(menuItem.BasePrice)
		if item.UnitPrice != "" {
			override, err := decimal.NewFromString(item.UnitPrice)
			if err != nil || override.IsNegative() {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidUnitPrice)
			}
			unitPrice = override
		}

		customizationPrice := decimal.Zero
		if item.CustomizationPrice != "" {
			cp, err := decimal.NewFromString(item.CustomizationPrice)
			if err != nil || cp.IsNegative() {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidUnitPrice)
			}
			customizationPrice = cp
		}

		var customizations []byte
		if len(item.Customizations) > 0 {
			customizations, err = json.Marshal(item.Customizations)
			if err != nil {
				return nil, fmt.Errorf("items[%d]: marshal customizations: %w", i, err)
			}
		}

		line := pricing.LineItem{
			UnitPrice:          unitPrice,
			CustomizationPrice: customizationPrice,
			Quantity:           item.Quantity,
		}
		lines = append(lines, line)
		items = append(items, draftItem{
			menuItemID:         menuItemID,
			name:               menuItem.Name,
			unitPrice:          unitPrice,
			customizationPrice: customizationPrice,
			quantity:           item.Quantity,
			customizations:     customizations,
			subtotal:           pricing.LineSubtotal(line),
			notes:              item.Notes,
		})
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.subtotal)
	}

	var discount *promo.DiscountResult
	var rule *pricing.PromoRule
	if req.PromoCode != "" {
		discount, err = s.promos.Validate(ctx, req.PromoCode, subtotal, s.now())
		if err != nil {
			return nil, err
		}
		rule = &discount.Rule
	}

	return &orderDraft{
		table:  table,
		items:  items,
		totals: pricing.ComputeTotals(lines, rule),
		promo:  discount,
	}, nil
}

// resolveTable tries the id lookup first and falls back to the printed table
// number, since client UIs sometimes send the display number instead of the
// internal id. Returns nil for takeaway (empty ref).
func (s *OrderService) resolveTable(ctx context.Context, ref string) (*database.Table, error) {
	if ref == "" {
		return nil, nil
	}

	if id, err := uuid.Parse(ref); err == nil {
		table, err := s.store.GetTable(ctx, id)
		if err == nil {
			return &table, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get table: %w", err)
		}
	}

	table, err := s.store.GetTableByNumber(ctx, ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table by number: %w", err)
	}
	return &table, nil
}

// persistDraft runs the transactional part of the creation sequence.
func (s *OrderService) persistDraft(ctx context.Context, req CreateOrderRequest, draft *orderDraft) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	now := s.now()

	// Step 1: insert the header with zero totals. The true totals depend on
	// lines that do not exist yet; they are re-applied in step 4.
	tableID := pgtype.UUID{}
	if draft.table != nil {
		tableID = pgtype.UUID{Bytes: draft.table.ID, Valid: true}
	}
	customerEmail := pgtype.Text{}
	if req.CustomerEmail != "" {
		customerEmail = pgtype.Text{String: req.CustomerEmail, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:    generateOrderNumber(now),
		TableID:        tableID,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
		CustomerEmail:  customerEmail,
		Status:         enum.OrderStatusPendingPayment,
		Subtotal:       decimalToNumeric(decimal.Zero),
		TaxAmount:      decimalToNumeric(decimal.Zero),
		ServiceFee:     decimalToNumeric(decimal.Zero),
		DiscountAmount: decimalToNumeric(decimal.Zero),
		TotalAmount:    decimalToNumeric(decimal.Zero),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// Step 2: session identifier, derived from the order id and creation
	// time. It cannot be chosen before the order id exists.
	sessionID := generateSessionID(order.ID, now)
	if err := store.UpdateOrderSession(ctx, order.ID, sessionID); err != nil {
		return nil, fmt.Errorf("set session id: %w", err)
	}

	// Step 3: insert all items. Any failure rolls the header back with it.
	items := make([]database.OrderItem, 0, len(draft.items))
	for _, di := range draft.items {
		notes := pgtype.Text{}
		if di.notes != "" {
			notes = pgtype.Text{String: di.notes, Valid: true}
		}
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:            order.ID,
			MenuItemID:         di.menuItemID,
			Name:               di.name,
			UnitPrice:          decimalToNumeric(di.unitPrice),
			CustomizationPrice: decimalToNumeric(di.customizationPrice),
			Quantity:           di.quantity,
			Customizations:     di.customizations,
			Subtotal:           decimalToNumeric(di.subtotal),
			Notes:              notes,
			Status:             enum.OrderItemStatusPending,
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	// Step 4: re-apply the precomputed totals and promo metadata onto the
	// header. The total comes from the draft, never re-derived from DB state.
	promoID := pgtype.UUID{}
	promoCode := pgtype.Text{}
	if draft.promo != nil {
		promoID = pgtype.UUID{Bytes: draft.promo.PromoID, Valid: true}
		promoCode = pgtype.Text{String: draft.promo.Code, Valid: true}
	}
	order, err = store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:             order.ID,
		Subtotal:       decimalToNumeric(draft.totals.Subtotal),
		TaxAmount:      decimalToNumeric(draft.totals.Tax),
		ServiceFee:     decimalToNumeric(draft.totals.ServiceFee),
		DiscountAmount: decimalToNumeric(draft.totals.Discount),
		TotalAmount:    decimalToNumeric(draft.totals.Total),
		PromoID:        promoID,
		PromoCode:      promoCode,
	})
	if err != nil {
		return nil, fmt.Errorf("apply order totals: %w", err)
	}

	// Step 5: burn one promo use. The conditional update is the durable
	// guard against concurrent redemptions: zero affected rows means another
	// order took the last use between validation and here.
	if draft.promo != nil && draft.totals.Discount.IsPositive() {
		affected, err := store.IncrementPromoUsage(ctx, draft.promo.PromoID)
		if err != nil {
			return nil, fmt.Errorf("increment promo usage: %w", err)
		}
		if affected == 0 {
			return nil, promo.ErrUsageLimitReached
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{
		Order:               order,
		Items:               items,
		EstimatedCompletion: now.Add(preparationWindow),
	}, nil
}

func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

// generateSessionID correlates a table's occupancy with the order that
// created it.
func generateSessionID(orderID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("SESS-%s-%d", strings.ToUpper(orderID.String()[:8]), now.Unix())
}
