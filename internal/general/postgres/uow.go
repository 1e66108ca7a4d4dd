package postgres

import (
	"context"
	"errors"

	"ride-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ctxKey is an unexported key type for storing the active transaction in context.
type ctxKey struct{}

var txKey = ctxKey{}

// txState is what WithinTx stores in the context: the pgx transaction plus hooks to run after commit.
type txState struct {
	tx    pgx.Tx
	hooks []func(ctx context.Context)
}

// unitOfWork coordinates transactional execution against a pgx pool.
type unitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork constructs a unitOfWork that is bound to the given pool.
func NewUnitOfWork(pool *pgxpool.Pool) ports.UnitOfWork {
	return &unitOfWork{pool: pool}
}

// WithinTx executes fn within a database transaction.
//   - If a transaction already exists in ctx, fn joins it and hooks are attached to the outer unit.
//   - If fn returns an error or panics, the transaction is rolled back and hooks are dropped.
//   - On commit, after-commit hooks run in registration order with the tx-free ctx.
func (uow *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := stateFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := uow.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}

	// ensure rollback on panic, then rethrow panic
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	state := &txState{tx: tx}
	if err := fn(context.WithValue(ctx, txKey, state)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for _, hook := range state.hooks {
		hook(ctx)
	}
	return nil
}

// AfterCommit registers fn on the active transaction, or runs it now when there is none.
func (uow *unitOfWork) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if state, ok := stateFromContext(ctx); ok {
		state.hooks = append(state.hooks, fn)
		return
	}
	fn(ctx)
}

func stateFromContext(ctx context.Context) (*txState, bool) {
	state, ok := ctx.Value(txKey).(*txState)
	return state, ok
}

// TxFromContext extracts the current pgx.Tx from ctx if present.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	if state, ok := stateFromContext(ctx); ok {
		return state.tx, true
	}
	return nil, false
}

// MustTxFromContext returns the active pgx.Tx or an error if none is found.
func MustTxFromContext(ctx context.Context) (pgx.Tx, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx, nil
	}
	return nil, errors.New("no transaction in context: call this repository within UnitOfWork.WithinTx")
}
