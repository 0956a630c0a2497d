package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTxKey is the context key under which an open transaction travels.
// Repositories prefer a transaction from context over the shared pool so a
// service can run a multi-write cascade as one atomic unit.
const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves the current transaction, or nil when the caller is
// not inside one.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the clinic-scoped connection (or the pool
// from context when no connection was acquired) and returns a derived context
// carrying it. The caller owns Commit/Rollback.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	if tx := TxFromContext(ctx); tx != nil {
		// Nested cascades share the outer transaction.
		return ctx, tx, nil
	}

	var tx pgx.Tx
	var err error
	if conn := ConnFromContext(ctx); conn != nil {
		tx, err = conn.Begin(ctx)
	} else if pool := PoolFromContext(ctx); pool != nil {
		tx, err = pool.Begin(ctx)
	} else {
		return ctx, nil, fmt.Errorf("no database connection in context")
	}
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}

	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// PoolKey carries the shared pool for callers outside the request path
// (CLI commands, background reconciliation).
const PoolKey contextKey = "db_pool"

// WithPool attaches the shared pool to ctx so WithTx can begin transactions
// outside an HTTP request.
func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, PoolKey, pool)
}

// PoolFromContext retrieves the shared pool, or nil.
func PoolFromContext(ctx context.Context) *pgxpool.Pool {
	pool, _ := ctx.Value(PoolKey).(*pgxpool.Pool)
	return pool
}

// InTx runs fn inside a transaction, committing on success and rolling back
// on error or panic. It is the standard wrapper for the cascade operations
// (budget approval, deletion, payment receipt).
func InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, tx, err := WithTx(ctx)
	if err != nil {
		return err
	}
	if tx == TxFromContext(ctx) {
		// Joined an outer transaction; the owner commits.
		return fn(txCtx)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
