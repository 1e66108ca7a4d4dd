package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// SagaRepo stores saga instances in the same database as the ride projection,
// so the engine's writes commit or roll back with the projection.
type SagaRepo struct{}

// NewSagaRepo constructs a new SagaRepo.
func NewSagaRepo() ports.SagaInstanceRepository {
	return &SagaRepo{}
}

const sagaColumns = `id, process_id, correlation_key, state, params, expires_at, created_at, updated_at`

// Insert creates the instance row; a taken correlation key maps to saga.ErrDuplicateInstance.
func (repo *SagaRepo) Insert(ctx context.Context, instance *saga.Instance) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	params, err := instance.ParamsJSON()
	if err != nil {
		return fmt.Errorf("encode saga params: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO saga_instances (process_id, correlation_key, state, params, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`,
		instance.ProcessID,
		instance.Key.String(),
		string(instance.State),
		params,
		instance.ExpiresAt,
	).Scan(&instance.ID, &instance.CreatedAt, &instance.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return saga.ErrDuplicateInstance
	}
	if err != nil {
		return fmt.Errorf("insert saga instance %s: %w", instance.Key, err)
	}
	return nil
}

// FindByKey loads the instance for key, optionally taking a row lock.
func (repo *SagaRepo) FindByKey(ctx context.Context, key saga.CorrelationKey, forUpdate bool) (*saga.Instance, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + sagaColumns + ` FROM saga_instances WHERE correlation_key = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	instance, err := scanInstance(tx.QueryRow(ctx, query, key.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, saga.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get saga instance %s: %w", key, err)
	}
	return instance, nil
}

// Update persists state, params and the timer deadline.
func (repo *SagaRepo) Update(ctx context.Context, instance *saga.Instance) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	params, err := instance.ParamsJSON()
	if err != nil {
		return fmt.Errorf("encode saga params: %w", err)
	}

	err = tx.QueryRow(ctx, `
		UPDATE saga_instances
		SET state = $2, params = $3, expires_at = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, instance.ID, string(instance.State), params, instance.ExpiresAt).Scan(&instance.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return saga.ErrInstanceNotFound
	}
	if err != nil {
		return fmt.Errorf("update saga instance %s: %w", instance.Key, err)
	}
	return nil
}

// ClaimExpired locks due instances with SKIP LOCKED so concurrent sweepers never fire the same timer.
func (repo *SagaRepo) ClaimExpired(ctx context.Context, now time.Time, limit int) ([]*saga.Instance, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+sagaColumns+`
		FROM saga_instances
		WHERE expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim expired saga instances: %w", err)
	}
	defer rows.Close()

	var out []*saga.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan saga instance: %w", err)
		}
		out = append(out, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func scanInstance(row pgx.Row) (*saga.Instance, error) {
	var (
		out    saga.Instance
		key    string
		state  string
		params []byte
	)
	if err := row.Scan(&out.ID, &out.ProcessID, &key, &state, &params, &out.ExpiresAt, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}

	out.Key = saga.CorrelationKeyFromString(key)
	out.State = saga.State(state)
	out.Params = map[string]any{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &out.Params); err != nil {
			return nil, fmt.Errorf("decode saga params: %w", err)
		}
	}
	return &out, nil
}
