// Package sql provides a reference replicated store for database/sql.
package sql

import (
	"context"
	"database/sql"
)

// DB is the connection the store needs from the primary and each replica.
//
// *sql.DB satisfies it. Writes run in a transaction so the commit sequence
// row and the statement land together.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
}

// Compile-time assertion that *sql.DB implements DB.
var _ DB = (*sql.DB)(nil)

// WrapDB returns db as a DB.
//
// Example:
//
//	primary, _ := sql.Open("sqlite3", "file:primary.db")
//	store, _ := sqlstore.New(ctx, sqlstore.WrapDB(primary), replicas)
func WrapDB(db *sql.DB) DB {
	return db
}
