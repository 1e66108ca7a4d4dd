package postgres

import (
	"context"
	"errors"
	"fmt"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// RideRepo persists the ride projection using pgx and plain SQL.
type RideRepo struct{}

// NewRideRepo constructs a new RideRepo.
func NewRideRepo() ports.RideRepository {
	return &RideRepo{}
}

// price is written as text and cast so NUMERIC keeps every digit.
const rideColumns = `id, ride_id, created_at, updated_at, pickup, destination, price::text, passenger_id, driver_id, status`

// Create inserts a ride row and fills in the store-assigned id and timestamps.
func (repo *RideRepo) Create(ctx context.Context, r *ride.Ride) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO rides (ride_id, pickup, destination, price, passenger_id, driver_id, status)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`,
		r.RideID,
		r.Pickup,
		r.Destination,
		r.Price.String(),
		r.PassengerID,
		r.DriverID,
		r.Status.Code(),
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ride.ErrDuplicateRide
	}
	if err != nil {
		return fmt.Errorf("insert ride %s: %w", r.RideID, err)
	}
	return nil
}

// FindByID fetches a ride by primary key.
func (repo *RideRepo) FindByID(ctx context.Context, id int64) (*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	out, err := scanRide(tx.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ride.ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ride %d: %w", id, err)
	}
	return out, nil
}

// FindByRideID fetches a ride by correlation id; (nil, nil) when absent.
func (repo *RideRepo) FindByRideID(ctx context.Context, rideID string) (*ride.Ride, error) {
	return repo.findByRideID(ctx, rideID, "")
}

// FindByRideIDForUpdate locks the row so guard checks and the following update see the same status.
func (repo *RideRepo) FindByRideIDForUpdate(ctx context.Context, rideID string) (*ride.Ride, error) {
	return repo.findByRideID(ctx, rideID, " FOR UPDATE")
}

func (repo *RideRepo) findByRideID(ctx context.Context, rideID, lock string) (*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	out, err := scanRide(tx.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE ride_id = $1`+lock, rideID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ride %s: %w", rideID, err)
	}
	return out, nil
}

// Update writes the mutable columns back.
func (repo *RideRepo) Update(ctx context.Context, r *ride.Ride) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET pickup = $2, destination = $3, price = $4::numeric, passenger_id = $5,
		    driver_id = $6, status = $7, updated_at = now()
		WHERE id = $1
	`,
		r.ID,
		r.Pickup,
		r.Destination,
		r.Price.String(),
		r.PassengerID,
		r.DriverID,
		r.Status.Code(),
	)
	if err != nil {
		return fmt.Errorf("update ride %s: %w", r.RideID, err)
	}
	if tag.RowsAffected() == 0 {
		return ride.ErrRideNotFound
	}
	return nil
}

// Delete removes the row; the dispatch flow itself never deletes rides.
func (repo *RideRepo) Delete(ctx context.Context, r *ride.Ride) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM rides WHERE id = $1`, r.ID)
	if err != nil {
		return fmt.Errorf("delete ride %s: %w", r.RideID, err)
	}
	if tag.RowsAffected() == 0 {
		return ride.ErrRideNotFound
	}
	return nil
}

// FindAll pages through rides, newest first.
func (repo *RideRepo) FindAll(ctx context.Context, limit, offset int) ([]*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT `+rideColumns+` FROM rides ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query rides: %w", err)
	}
	defer rows.Close()

	var rides []*ride.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		rides = append(rides, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return rides, nil
}

func scanRide(row pgx.Row) (*ride.Ride, error) {
	var (
		out   ride.Ride
		price string
		code  int16
	)
	if err := row.Scan(
		&out.ID, &out.RideID, &out.CreatedAt, &out.UpdatedAt, &out.Pickup, &out.Destination,
		&price, &out.PassengerID, &out.DriverID, &code,
	); err != nil {
		return nil, err
	}

	var err error
	if out.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("price %q: %w", price, err)
	}
	if out.Status, err = ride.StatusFromCode(int(code)); err != nil {
		return nil, err
	}
	return &out, nil
}
