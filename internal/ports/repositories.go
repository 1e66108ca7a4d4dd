package ports

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	// WithinTx runs fn atomically; nested calls join the outer unit.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	// AfterCommit defers fn until the enclosing unit commits. Dropped on rollback.
	// Outside a unit of work fn runs immediately.
	AfterCommit(ctx context.Context, fn func(ctx context.Context))
}

// RideRepository is the ride projection store. Every method runs inside the caller's unit of work.
type RideRepository interface {
	Create(ctx context.Context, r *ride.Ride) error
	// FindByID returns ride.ErrRideNotFound when absent.
	FindByID(ctx context.Context, id int64) (*ride.Ride, error)
	// FindByRideID returns (nil, nil) when absent.
	FindByRideID(ctx context.Context, rideID string) (*ride.Ride, error)
	// FindByRideIDForUpdate is FindByRideID holding the row lock until the unit of work ends.
	FindByRideIDForUpdate(ctx context.Context, rideID string) (*ride.Ride, error)
	Update(ctx context.Context, r *ride.Ride) error
	Delete(ctx context.Context, r *ride.Ride) error
	FindAll(ctx context.Context, limit, offset int) ([]*ride.Ride, error)
	CountByStatus(ctx context.Context) (map[ride.Status]int, error)
}

// SagaInstanceRepository persists process instances for the engine.
type SagaInstanceRepository interface {
	// Insert returns saga.ErrDuplicateInstance when the key is taken.
	Insert(ctx context.Context, instance *saga.Instance) error
	// FindByKey returns saga.ErrInstanceNotFound when absent. forUpdate locks the row until the unit ends.
	FindByKey(ctx context.Context, key saga.CorrelationKey, forUpdate bool) (*saga.Instance, error)
	Update(ctx context.Context, instance *saga.Instance) error
	// ClaimExpired locks up to limit instances whose timer is due, skipping rows locked elsewhere.
	ClaimExpired(ctx context.Context, now time.Time, limit int) ([]*saga.Instance, error)
}

// SagaHistoryRepository is the append-only log of instance transitions.
type SagaHistoryRepository interface {
	Append(ctx context.Context, t *saga.Transition) error
	ListByInstance(ctx context.Context, instanceID int64) ([]saga.Transition, error)
}
