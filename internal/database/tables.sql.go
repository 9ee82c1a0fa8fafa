package database

import "context"

const tableColumns = `id, name, capacity, status, is_active, updated_at`

func scanTable(row interface{ Scan(...interface{}) error }) (CafeTable, error) {
	var i CafeTable
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Capacity,
		&i.Status,
		&i.IsActive,
		&i.UpdatedAt,
	)
	return i, err
}

const getTable = `-- name: GetTable :one
SELECT ` + tableColumns + `
FROM cafe_tables
WHERE id = $1
`

func (q *Queries) GetTable(ctx context.Context, id int64) (CafeTable, error) {
	return scanTable(q.db.QueryRow(ctx, getTable, id))
}

const getTableForUpdate = `-- name: GetTableForUpdate :one
SELECT ` + tableColumns + `
FROM cafe_tables
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetTableForUpdate(ctx context.Context, id int64) (CafeTable, error) {
	return scanTable(q.db.QueryRow(ctx, getTableForUpdate, id))
}

const listTables = `-- name: ListTables :many
SELECT ` + tableColumns + `
FROM cafe_tables
WHERE is_active = true
ORDER BY name
`

func (q *Queries) ListTables(ctx context.Context) ([]CafeTable, error) {
	rows, err := q.db.Query(ctx, listTables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []CafeTable{}
	for rows.Next() {
		i, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateTableStatus = `-- name: UpdateTableStatus :one
UPDATE cafe_tables
SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + tableColumns

type UpdateTableStatusParams struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	FromStatus string `json:"from_status"`
}

func (q *Queries) UpdateTableStatus(ctx context.Context, arg UpdateTableStatusParams) (CafeTable, error) {
	return scanTable(q.db.QueryRow(ctx, updateTableStatus, arg.ID, arg.Status, arg.FromStatus))
}
