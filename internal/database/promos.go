package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const promoColumns = `id, code, discount_type, discount_value, min_purchase_amount,
	max_discount_amount, max_uses_total, current_uses, is_active, valid_from, valid_until, created_at`

func scanPromo(row interface{ Scan(dest ...any) error }) (Promo, error) {
	var p Promo
	err := row.Scan(
		&p.ID, &p.Code, &p.DiscountType, &p.DiscountValue, &p.MinPurchaseAmount,
		&p.MaxDiscountAmount, &p.MaxUsesTotal, &p.CurrentUses, &p.IsActive,
		&p.ValidFrom, &p.ValidUntil, &p.CreatedAt,
	)
	return p, err
}

// GetPromoByCode matches case-insensitively; codes are stored uppercase but
// clients type whatever they like.
func (q *Queries) GetPromoByCode(ctx context.Context, code string) (Promo, error) {
	row := q.db.QueryRow(ctx, `SELECT `+promoColumns+` FROM promos WHERE upper(code) = upper($1)`, code)
	return scanPromo(row)
}

// IncrementPromoUsage bumps current_uses atomically, guarded by the usage cap.
// Returns the number of affected rows; zero means a concurrent redemption
// took the last remaining use.
func (q *Queries) IncrementPromoUsage(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE promos SET current_uses = current_uses + 1
		WHERE id = $1 AND (max_uses_total IS NULL OR current_uses < max_uses_total)`,
		id,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type CreatePromoParams struct {
	Code              string
	DiscountType      string
	DiscountValue     pgtype.Numeric
	MinPurchaseAmount pgtype.Numeric
	MaxDiscountAmount pgtype.Numeric
	MaxUsesTotal      pgtype.Int4
	IsActive          bool
	ValidFrom         pgtype.Timestamptz
	ValidUntil        pgtype.Timestamptz
}

func (q *Queries) CreatePromo(ctx context.Context, arg CreatePromoParams) (Promo, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO promos (code, discount_type, discount_value, min_purchase_amount,
			max_discount_amount, max_uses_total, is_active, valid_from, valid_until)
		VALUES (upper($1), $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+promoColumns,
		arg.Code, arg.DiscountType, arg.DiscountValue, arg.MinPurchaseAmount,
		arg.MaxDiscountAmount, arg.MaxUsesTotal, arg.IsActive, arg.ValidFrom, arg.ValidUntil,
	)
	return scanPromo(row)
}

func (q *Queries) ListPromos(ctx context.Context) ([]Promo, error) {
	rows, err := q.db.Query(ctx, `SELECT `+promoColumns+` FROM promos ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promos []Promo
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

type SetPromoActiveParams struct {
	ID       uuid.UUID
	IsActive bool
}

func (q *Queries) SetPromoActive(ctx context.Context, arg SetPromoActiveParams) (Promo, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE promos SET is_active = $2 WHERE id = $1
		RETURNING `+promoColumns,
		arg.ID, arg.IsActive,
	)
	return scanPromo(row)
}
