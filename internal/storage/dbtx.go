// Package storage defines the shared database-transaction interface every
// pkg/*.Store type is built against, following the teacher's hand-rolled
// raw-SQL Store pattern (pkg/incident/store.go) without the sqlc-generated
// internal/db package the teacher layers underneath it — that generated
// code is excluded from the retrieval pack, so every store here talks
// directly to pgx.
package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting every Store
// run either against the pool directly or inside a caller-managed
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
