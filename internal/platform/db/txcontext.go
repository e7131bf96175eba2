package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// DBTxKey is the context key under which an in-flight transaction is
// stored by WithTx.
const DBTxKey contextKey = "db_tx"

// Querier is satisfied by a pool, a single connection, and a transaction,
// letting repository code issue SQL without knowing which of the three it
// is actually talking to.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxFromContext retrieves the transaction stored by WithTx, or nil if the
// context carries none.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on pool and returns a derived context
// carrying it, along with commit and rollback functions. Callers must call
// either; calling rollback after a successful commit is a no-op error that
// should be ignored (pgx returns pgx.ErrTxClosed).
//
// Nested calls reuse the transaction already in ctx rather than opening a
// second one, so repository code can compose freely without knowing
// whether it is the outermost caller.
func WithTx(ctx context.Context, pool *pgxpool.Pool) (context.Context, func(context.Context) error, func(context.Context) error, error) {
	if existing := TxFromContext(ctx); existing != nil {
		noop := func(context.Context) error { return nil }
		return ctx, noop, noop, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return ctx, nil, nil, err
	}

	next := context.WithValue(ctx, DBTxKey, tx)
	commit := func(c context.Context) error { return tx.Commit(c) }
	rollback := func(c context.Context) error { return tx.Rollback(c) }
	return next, commit, rollback, nil
}

// Conn returns the Querier that ctx's operation should use: the
// transaction carried by ctx if WithTx has put one there, otherwise pool
// itself.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}
