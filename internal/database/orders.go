package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, table_id, customer_name, customer_phone, customer_email,
	status, subtotal, tax_amount, service_fee, discount_amount, total_amount,
	promo_id, promo_code, session_id, payment_verified_at, is_rated, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.TableID, &o.CustomerName, &o.CustomerPhone, &o.CustomerEmail,
		&o.Status, &o.Subtotal, &o.TaxAmount, &o.ServiceFee, &o.DiscountAmount, &o.TotalAmount,
		&o.PromoID, &o.PromoCode, &o.SessionID, &o.PaymentVerifiedAt, &o.IsRated, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

type CreateOrderParams struct {
	OrderNumber   string
	TableID       pgtype.UUID
	CustomerName  string
	CustomerPhone string
	CustomerEmail pgtype.Text
	Status        string
	Subtotal      pgtype.Numeric
	TaxAmount     pgtype.Numeric
	ServiceFee    pgtype.Numeric
	DiscountAmount pgtype.Numeric
	TotalAmount   pgtype.Numeric
}

// CreateOrder inserts the order header. Totals are whatever the caller passes;
// the creation flow inserts zeros first and re-applies real totals later.
func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (order_number, table_id, customer_name, customer_phone, customer_email,
			status, subtotal, tax_amount, service_fee, discount_amount, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+orderColumns,
		arg.OrderNumber, arg.TableID, arg.CustomerName, arg.CustomerPhone, arg.CustomerEmail,
		arg.Status, arg.Subtotal, arg.TaxAmount, arg.ServiceFee, arg.DiscountAmount, arg.TotalAmount,
	)
	return scanOrder(row)
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (q *Queries) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	return err
}

func (q *Queries) UpdateOrderSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	_, err := q.db.Exec(ctx, `UPDATE orders SET session_id = $2, updated_at = now() WHERE id = $1`, id, sessionID)
	return err
}

type UpdateOrderTotalsParams struct {
	ID             uuid.UUID
	Subtotal       pgtype.Numeric
	TaxAmount      pgtype.Numeric
	ServiceFee     pgtype.Numeric
	DiscountAmount pgtype.Numeric
	TotalAmount    pgtype.Numeric
	PromoID        pgtype.UUID
	PromoCode      pgtype.Text
}

// UpdateOrderTotals re-applies the computed totals onto the header after the
// items exist. The total is the caller's precomputed value, never re-derived
// from DB state.
func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET subtotal = $2, tax_amount = $3, service_fee = $4, discount_amount = $5,
			total_amount = $6, promo_id = $7, promo_code = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns,
		arg.ID, arg.Subtotal, arg.TaxAmount, arg.ServiceFee, arg.DiscountAmount,
		arg.TotalAmount, arg.PromoID, arg.PromoCode,
	)
	return scanOrder(row)
}

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	Status     string
	FromStatus string
}

// UpdateOrderStatus performs a compare-and-swap on status. Returns
// pgx.ErrNoRows when the order is missing or its status changed underneath.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+orderColumns,
		arg.ID, arg.Status, arg.FromStatus,
	)
	return scanOrder(row)
}

// SetOrderPaymentVerified stamps payment_verified_at on the header.
func (q *Queries) SetOrderPaymentVerified(ctx context.Context, id uuid.UUID, at pgtype.Timestamptz) error {
	_, err := q.db.Exec(ctx, `UPDATE orders SET payment_verified_at = $2, updated_at = now() WHERE id = $1`, id, at)
	return err
}

func (q *Queries) MarkOrderRated(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE orders SET is_rated = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}

type ListOrdersParams struct {
	Status pgtype.Text
	Limit  int32
	Offset int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		arg.Status, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListOrdersByStatuses feeds the kitchen display projection.
func (q *Queries) ListOrdersByStatuses(ctx context.Context, statuses []string) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = ANY($1)
		ORDER BY created_at ASC`,
		statuses,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
