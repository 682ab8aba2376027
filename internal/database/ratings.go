package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const ratingColumns = `id, order_id, score, comment, created_at`

func scanRating(row interface{ Scan(dest ...any) error }) (Rating, error) {
	var r Rating
	err := row.Scan(&r.ID, &r.OrderID, &r.Score, &r.Comment, &r.CreatedAt)
	return r, err
}

type CreateRatingParams struct {
	OrderID uuid.UUID
	Score   int32
	Comment pgtype.Text
}

// CreateRating inserts the one allowed rating per order. A second submission
// hits the unique constraint on order_id (pgconn code 23505).
func (q *Queries) CreateRating(ctx context.Context, arg CreateRatingParams) (Rating, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO ratings (order_id, score, comment)
		VALUES ($1, $2, $3)
		RETURNING `+ratingColumns,
		arg.OrderID, arg.Score, arg.Comment,
	)
	return scanRating(row)
}

func (q *Queries) GetRatingByOrder(ctx context.Context, orderID uuid.UUID) (Rating, error) {
	row := q.db.QueryRow(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE order_id = $1`, orderID)
	return scanRating(row)
}
