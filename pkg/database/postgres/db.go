package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyInTx           = errors.New("already executing in existing db tx")
	ErrInsufficientIsolation = errors.New("existing db tx doesn't meet isolation level requirements")
)

type txContextKey struct{}

type scopedTx struct {
	tx        *sqlx.Tx
	isolation sql.IsolationLevel
}

// ExecuteTxWithinCtx runs fn in a new transaction that is carried by the
// context passed to fn. Stores that use ExecuteInTx with that context join the
// transaction. It is committed if fn succeeds and rolled back otherwise.
func ExecuteTxWithinCtx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(context.Context) error) error {
	isolation = withDefaultIsolation(isolation)

	if _, ok := txFromCtx(ctx); ok {
		return ErrAlreadyInTx
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, txContextKey{}, &scopedTx{
		tx:        tx,
		isolation: isolation,
	})
	return finishTx(tx, fn(ctx))
}

// ExecuteInTx runs fn within the transaction carried by ctx when one exists,
// leaving commit and rollback to its owner. Otherwise fn runs in a new
// transaction that is finished before returning.
func ExecuteInTx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	isolation = withDefaultIsolation(isolation)

	if existing, ok := txFromCtx(ctx); ok {
		if existing.isolation < isolation {
			return ErrInsufficientIsolation
		}
		return fn(existing.tx)
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}
	return finishTx(tx, fn(tx))
}

func txFromCtx(ctx context.Context) (*scopedTx, bool) {
	scoped, ok := ctx.Value(txContextKey{}).(*scopedTx)
	return scoped, ok
}

func finishTx(tx *sqlx.Tx, err error) error {
	if err == nil {
		return tx.Commit()
	}

	// Rollback is required to release the connection back to the pool
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return fmt.Errorf("%w (rollback failed: %v)", err, rollbackErr)
	}
	return err
}

func withDefaultIsolation(isolation sql.IsolationLevel) sql.IsolationLevel {
	if isolation == sql.LevelDefault {
		return sql.LevelReadCommitted
	}
	return isolation
}
