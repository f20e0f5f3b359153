// Package repository implements SQLite persistence for invoices, pending
// records, dimension tables, the batch queue and stored email accounts.
package repository

import (
	"context"
	"database/sql"
)

// Querier abstracts *sql.DB and *sql.Tx so repository methods can run
// either standalone or inside a caller-owned transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
