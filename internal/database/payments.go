package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, order_id, method, amount, status, reference_code,
	proof_image_url, verified_by, verified_at, created_at, updated_at`

func scanPayment(row interface{ Scan(dest ...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Method, &p.Amount, &p.Status, &p.ReferenceCode,
		&p.ProofImageURL, &p.VerifiedBy, &p.VerifiedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

type CreatePaymentParams struct {
	OrderID       uuid.UUID
	Method        string
	Amount        pgtype.Numeric
	Status        string
	ReferenceCode pgtype.Text
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO payments (order_id, method, amount, status, reference_code)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+paymentColumns,
		arg.OrderID, arg.Method, arg.Amount, arg.Status, arg.ReferenceCode,
	)
	return scanPayment(row)
}

func (q *Queries) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	row := q.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

// GetActivePaymentByOrder returns the one non-terminal payment for an order,
// or pgx.ErrNoRows when none is active.
func (q *Queries) GetActivePaymentByOrder(ctx context.Context, orderID uuid.UUID) (Payment, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id = $1 AND status = 'PENDING'
		ORDER BY created_at DESC
		LIMIT 1`,
		orderID,
	)
	return scanPayment(row)
}

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type AttachPaymentProofParams struct {
	ID            uuid.UUID
	ProofImageURL string
}

func (q *Queries) AttachPaymentProof(ctx context.Context, arg AttachPaymentProofParams) (Payment, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE payments SET proof_image_url = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+paymentColumns,
		arg.ID, arg.ProofImageURL,
	)
	return scanPayment(row)
}

type UpdatePaymentStatusParams struct {
	ID         uuid.UUID
	Status     string
	VerifiedBy pgtype.UUID
	VerifiedAt pgtype.Timestamptz
}

func (q *Queries) UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) (Payment, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE payments
		SET status = $2, verified_by = $3, verified_at = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+paymentColumns,
		arg.ID, arg.Status, arg.VerifiedBy, arg.VerifiedAt,
	)
	return scanPayment(row)
}

// CancelActivePayments marks any still-pending payments for an order as
// cancelled, used when the order itself is cancelled.
func (q *Queries) CancelActivePayments(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE payments SET status = 'CANCELLED', updated_at = now()
		WHERE order_id = $1 AND status = 'PENDING'`,
		orderID,
	)
	return err
}
