package postgres

import (
	"context"
	"fmt"

	"ride-dispatch/internal/domain/ride"
)

// CountByStatus returns the number of rides per status. Statuses with no rides are absent.
func (repo *RideRepo) CountByStatus(ctx context.Context) (map[ride.Status]int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT status, COUNT(*) FROM rides GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count rides by status: %w", err)
	}
	defer rows.Close()

	out := make(map[ride.Status]int)
	for rows.Next() {
		var (
			code int16
			n    int
		)
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("scan ride count: %w", err)
		}
		status, err := ride.StatusFromCode(int(code))
		if err != nil {
			return nil, err
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
