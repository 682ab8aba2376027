package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderItemColumns = `id, order_id, menu_item_id, name, unit_price, customization_price,
	quantity, customizations, subtotal, notes, status`

func scanOrderItem(row interface{ Scan(dest ...any) error }) (OrderItem, error) {
	var it OrderItem
	err := row.Scan(
		&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.UnitPrice, &it.CustomizationPrice,
		&it.Quantity, &it.Customizations, &it.Subtotal, &it.Notes, &it.Status,
	)
	return it, err
}

type CreateOrderItemParams struct {
	OrderID            uuid.UUID
	MenuItemID         uuid.UUID
	Name               string
	UnitPrice          pgtype.Numeric
	CustomizationPrice pgtype.Numeric
	Quantity           int32
	Customizations     []byte
	Subtotal           pgtype.Numeric
	Notes              pgtype.Text
	Status             string
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, menu_item_id, name, unit_price, customization_price,
			quantity, customizations, subtotal, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+orderItemColumns,
		arg.OrderID, arg.MenuItemID, arg.Name, arg.UnitPrice, arg.CustomizationPrice,
		arg.Quantity, arg.Customizations, arg.Subtotal, arg.Notes, arg.Status,
	)
	return scanOrderItem(row)
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderItemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type UpdateOrderItemStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpdateOrderItemStatus(ctx context.Context, arg UpdateOrderItemStatusParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE order_items SET status = $2 WHERE id = $1
		RETURNING `+orderItemColumns,
		arg.ID, arg.Status,
	)
	return scanOrderItem(row)
}
