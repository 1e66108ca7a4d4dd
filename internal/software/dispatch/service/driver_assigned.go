package service

import (
	"context"
	"errors"
	"fmt"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

// DriverAssignedRouter records the driver and signals the saga, but only while the ride is REQUESTED.
// The ride row stays locked from the guard check to commit, and a saga that no longer accepts the
// signal rolls the assignment back.
type DriverAssignedRouter struct {
	router
}

var _ ports.EventRouter = (*DriverAssignedRouter)(nil)

func (r *DriverAssignedRouter) Kind() contracts.Kind { return contracts.KindDriverAssigned }

func (r *DriverAssignedRouter) Handle(ctx context.Context, msg contracts.Message) error {
	if !r.accepts(ctx, r.Kind(), msg) {
		return nil
	}
	ev, ok := msg.Payload.(*contracts.DriverAssignedEvent)
	if !ok || ev == nil {
		return r.fail(ctx, msg, "", fmt.Errorf("%w: %T", ErrUnexpectedPayload, msg.Payload))
	}
	key, err := correlationKey(ev.RideID)
	if err != nil {
		return r.fail(ctx, msg, ev.RideID, err)
	}

	var stale *ride.Status
	err = r.uow.WithinTx(ctx, func(ctx context.Context) error {
		current, err := r.rides.FindByRideIDForUpdate(ctx, ev.RideID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: %s", ride.ErrRideNotFound, ev.RideID)
		}
		if current.Status != ride.StatusRequested {
			status := current.Status
			stale = &status
			return nil
		}

		if err := current.AssignDriver(ev.DriverID); err != nil {
			return err
		}
		if err := r.rides.Update(ctx, current); err != nil {
			return err
		}
		return r.engine.Signal(ctx, key, saga.SignalDriverAssigned, map[string]any{"driverId": current.Driver()})
	})
	if errors.Is(err, saga.ErrNoTransition) {
		r.logger.Warn(ctx, "driver_assigned_ignored", "Saga no longer waits for a driver; assignment rolled back", map[string]any{
			"driver_id":  ev.DriverID,
			"message_id": msg.ID,
			"error":      err.Error(),
		})
		return nil
	}
	if err != nil {
		return r.fail(ctx, msg, ev.RideID, err)
	}

	if stale != nil {
		r.logger.Warn(ctx, "driver_assigned_ignored", "Ride is not waiting for a driver; event dropped", map[string]any{
			"status":     stale.String(),
			"driver_id":  ev.DriverID,
			"message_id": msg.ID,
		})
		return nil
	}
	r.logger.Info(ctx, "driver_assigned", fmt.Sprintf("Driver %s assigned to ride %s", ev.DriverID, ev.RideID), nil)
	return nil
}
