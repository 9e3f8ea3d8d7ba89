package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// Advisory lock classes. Mutations touching the same role or user are
// serialized; disjoint keys proceed independently.
const (
	LockClassRole int32 = 1
	LockClassUser int32 = 2
)

// AcquireKeyLock takes a transaction-scoped advisory lock for the given
// class and key. The lock is released automatically at commit or rollback.
func AcquireKeyLock(ctx context.Context, tx pgx.Tx, class int32, key int64) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, class, int32(key)); err != nil {
		return fmt.Errorf("platform/db: advisory lock (%d,%d): %w", class, key, err)
	}
	return nil
}
