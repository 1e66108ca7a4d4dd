package postgres

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/general/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real database; set DISPATCH_TEST_DB_DSN to enable.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DISPATCH_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("DISPATCH_TEST_DB_DSN not set")
	}
	ctx := context.Background()
	pool, err := OpenDSN(ctx, dsn, logger.New("test").WithOutput(io.Discard))
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(ctx, pool))
	t.Cleanup(pool.Close)
	return pool
}

func TestRepositoriesRequireTx(t *testing.T) {
	_, err := NewRideRepo().FindByRideID(context.Background(), "x")
	assert.Error(t, err)
	_, err = NewSagaRepo().FindByKey(context.Background(), saga.CorrelationKeyFromString("x"), false)
	assert.Error(t, err)
}

func TestRideRepoRoundTrip(t *testing.T) {
	pool := newTestPool(t)
	uow := NewUnitOfWork(pool)
	rides := NewRideRepo()
	ctx := context.Background()
	rideID := "ride-" + uuid.NewString()

	err := uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := ride.NewRide(rideID, "A", "B", decimal.RequireFromString("1234567.8901"), "p1")
		require.NoError(t, err)
		require.NoError(t, rides.Create(ctx, r))
		assert.NotZero(t, r.ID)

		assert.ErrorIs(t, rides.Create(ctx, r.Clone()), ride.ErrDuplicateRide)
		return errors.New("duplicate aborts the tx")
	})
	require.Error(t, err)

	err = uow.WithinTx(ctx, func(ctx context.Context) error {
		missing, err := rides.FindByRideID(ctx, rideID)
		require.NoError(t, err)
		assert.Nil(t, missing, "rolled back")

		r, err := ride.NewRide(rideID, "A", "B", decimal.RequireFromString("1234567.8901"), "p1")
		require.NoError(t, err)
		require.NoError(t, rides.Create(ctx, r))
		require.NoError(t, r.AssignDriver("d1"))
		return rides.Update(ctx, r)
	})
	require.NoError(t, err)

	err = uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := rides.FindByRideID(ctx, rideID)
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, "1234567.8901", r.Price.String())
		assert.Equal(t, "d1", r.Driver())
		assert.Equal(t, ride.StatusDriverAssigned, r.Status)

		locked, err := rides.FindByRideIDForUpdate(ctx, rideID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, locked.ID)

		byID, err := rides.FindByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.RideID, byID.RideID)

		counts, err := rides.CountByStatus(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, counts[ride.StatusDriverAssigned], 1)

		require.NoError(t, rides.Delete(ctx, r))
		_, err = rides.FindByID(ctx, r.ID)
		assert.ErrorIs(t, err, ride.ErrRideNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestSagaRepoAndHistory(t *testing.T) {
	pool := newTestPool(t)
	uow := NewUnitOfWork(pool)
	instances := NewSagaRepo()
	history := NewSagaHistoryRepo()
	ctx := context.Background()
	key := saga.CorrelationKeyFromString("ride-" + uuid.NewString())
	past := time.Now().Add(-time.Minute).UTC()

	var hooked bool
	err := uow.WithinTx(ctx, func(ctx context.Context) error {
		in := &saga.Instance{
			ProcessID: "test:ride-dispatch",
			Key:       key,
			State:     saga.StateRequested,
			Params:    map[string]any{saga.ParamRideID: key.String(), saga.ParamExpiryDuration: "5m"},
			ExpiresAt: &past,
		}
		require.NoError(t, instances.Insert(ctx, in))
		require.NoError(t, history.Append(ctx, &saga.Transition{InstanceID: in.ID, To: in.State, Trigger: saga.TriggerStart}))
		uow.AfterCommit(ctx, func(context.Context) { hooked = true })
		assert.False(t, hooked)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, hooked)

	err = uow.WithinTx(ctx, func(ctx context.Context) error {
		dup := &saga.Instance{ProcessID: "test:ride-dispatch", Key: key, State: saga.StateRequested}
		return instances.Insert(ctx, dup)
	})
	assert.ErrorIs(t, err, saga.ErrDuplicateInstance)

	err = uow.WithinTx(ctx, func(ctx context.Context) error {
		due, err := instances.ClaimExpired(ctx, time.Now().UTC(), 100)
		require.NoError(t, err)
		var claimed *saga.Instance
		for _, in := range due {
			if in.Key == key {
				claimed = in
			}
		}
		require.NotNil(t, claimed)
		assert.Equal(t, "5m", claimed.StringParam(saga.ParamExpiryDuration))

		claimed.State = saga.StateExpired
		claimed.ExpiresAt = nil
		require.NoError(t, instances.Update(ctx, claimed))
		require.NoError(t, history.Append(ctx, &saga.Transition{
			InstanceID: claimed.ID, From: saga.StateRequested, To: saga.StateExpired, Trigger: saga.TriggerTimer, Name: "expiry",
		}))
		return nil
	})
	require.NoError(t, err)

	err = uow.WithinTx(ctx, func(ctx context.Context) error {
		in, err := instances.FindByKey(ctx, key, true)
		require.NoError(t, err)
		assert.Equal(t, saga.StateExpired, in.State)
		assert.Nil(t, in.ExpiresAt)

		transitions, err := history.ListByInstance(ctx, in.ID)
		require.NoError(t, err)
		require.Len(t, transitions, 2)
		assert.Equal(t, saga.TriggerTimer, transitions[1].Trigger)
		return nil
	})
	require.NoError(t, err)
}
