package database

import (
	"context"

	"github.com/google/uuid"
)

const tableColumns = `id, table_number, status, current_session_id, occupied_since`

func scanTable(row interface{ Scan(dest ...any) error }) (Table, error) {
	var t Table
	err := row.Scan(&t.ID, &t.TableNumber, &t.Status, &t.CurrentSessionID, &t.OccupiedSince)
	return t, err
}

func (q *Queries) GetTable(ctx context.Context, id uuid.UUID) (Table, error) {
	row := q.db.QueryRow(ctx, `SELECT `+tableColumns+` FROM tables WHERE id = $1`, id)
	return scanTable(row)
}

// GetTableByNumber is the fallback lookup for clients that send the printed
// table number instead of the internal id.
func (q *Queries) GetTableByNumber(ctx context.Context, tableNumber string) (Table, error) {
	row := q.db.QueryRow(ctx, `SELECT `+tableColumns+` FROM tables WHERE table_number = $1`, tableNumber)
	return scanTable(row)
}

func (q *Queries) ListTables(ctx context.Context) ([]Table, error) {
	rows, err := q.db.Query(ctx, `SELECT `+tableColumns+` FROM tables ORDER BY table_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (q *Queries) CreateTable(ctx context.Context, tableNumber, status string) (Table, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO tables (table_number, status) VALUES ($1, $2)
		RETURNING `+tableColumns,
		tableNumber, status,
	)
	return scanTable(row)
}

type OccupyTableParams struct {
	ID        uuid.UUID
	SessionID string
}

// OccupyTable assigns a session conditionally: only when the table is free or
// already holds the same session. A different active session returns
// pgx.ErrNoRows so the caller can surface a conflict instead of silently
// overwriting.
func (q *Queries) OccupyTable(ctx context.Context, arg OccupyTableParams) (Table, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE tables
		SET status = 'OCCUPIED', current_session_id = $2, occupied_since = now()
		WHERE id = $1 AND (current_session_id IS NULL OR current_session_id = $2)
		RETURNING `+tableColumns,
		arg.ID, arg.SessionID,
	)
	return scanTable(row)
}

// ReleaseTable clears the session when its order reaches a terminal state.
func (q *Queries) ReleaseTable(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE tables
		SET status = 'AVAILABLE', current_session_id = NULL, occupied_since = NULL
		WHERE id = $1`,
		id,
	)
	return err
}

type UpdateTableStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpdateTableStatus(ctx context.Context, arg UpdateTableStatusParams) (Table, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE tables SET status = $2 WHERE id = $1
		RETURNING `+tableColumns,
		arg.ID, arg.Status,
	)
	return scanTable(row)
}
