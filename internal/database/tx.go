package database

import (
	"context"
	"database/sql"
)

// DBTX is the subset of *sql.DB and *sql.Tx used by repositories, so the
// same query code runs inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxRunner executes functions inside database transactions.
type TxRunner struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewTxRunner returns a runner using REPEATABLE READ, the InnoDB default.
// Writers still lock the rows they depend on with SELECT ... FOR UPDATE.
func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db, opts: &sql.TxOptions{Isolation: sql.LevelRepeatableRead}}
}

// WithinTx begins a transaction, runs fn and commits when fn returns nil.
// Any error from fn, or a panic, rolls the transaction back.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(tx DBTX) error) (err error) {
	tx, err := r.db.BeginTx(ctx, r.opts)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
