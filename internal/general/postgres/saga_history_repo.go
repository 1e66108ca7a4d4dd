package postgres

import (
	"context"
	"fmt"

	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/ports"
)

// SagaHistoryRepo appends instance transitions using pgx and plain SQL.
type SagaHistoryRepo struct{}

// NewSagaHistoryRepo constructs a new SagaHistoryRepo.
func NewSagaHistoryRepo() ports.SagaHistoryRepository {
	return &SagaHistoryRepo{}
}

// Append inserts a saga_transitions row.
func (repo *SagaHistoryRepo) Append(ctx context.Context, t *saga.Transition) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO saga_transitions (instance_id, from_state, to_state, trigger, name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`,
		t.InstanceID,
		string(t.From),
		string(t.To),
		string(t.Trigger),
		t.Name,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("append saga transition: %w", err)
	}
	return nil
}

// ListByInstance returns the transitions of one instance in order.
func (repo *SagaHistoryRepo) ListByInstance(ctx context.Context, instanceID int64) ([]saga.Transition, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, instance_id, from_state, to_state, trigger, name, created_at
		FROM saga_transitions
		WHERE instance_id = $1
		ORDER BY id
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query saga transitions: %w", err)
	}
	defer rows.Close()

	var out []saga.Transition
	for rows.Next() {
		var (
			t              saga.Transition
			from, to, trig string
		)
		if err := rows.Scan(&t.ID, &t.InstanceID, &from, &to, &trig, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan saga transition: %w", err)
		}
		t.From, t.To, t.Trigger = saga.State(from), saga.State(to), saga.Trigger(trig)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
