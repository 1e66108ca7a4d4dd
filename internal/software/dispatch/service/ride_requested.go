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

// RideRequestedRouter creates the ride projection and starts its saga.
type RideRequestedRouter struct {
	router
}

var _ ports.EventRouter = (*RideRequestedRouter)(nil)

func (r *RideRequestedRouter) Kind() contracts.Kind { return contracts.KindRideRequested }

func (r *RideRequestedRouter) Handle(ctx context.Context, msg contracts.Message) error {
	if !r.accepts(ctx, r.Kind(), msg) {
		return nil
	}
	ev, ok := msg.Payload.(*contracts.RideRequestedEvent)
	if !ok || ev == nil {
		return r.fail(ctx, msg, "", fmt.Errorf("%w: %T", ErrUnexpectedPayload, msg.Payload))
	}

	newRide, err := ride.NewRide(ev.RideID, ev.Pickup, ev.Destination, ev.Price, ev.PassengerID)
	if err != nil {
		return r.fail(ctx, msg, ev.RideID, err)
	}
	key, err := correlationKey(newRide.RideID)
	if err != nil {
		return r.fail(ctx, msg, ev.RideID, err)
	}

	started := false
	err = r.uow.WithinTx(ctx, func(ctx context.Context) error {
		// a redelivered request finds its ride or saga and stops here
		existing, err := r.rides.FindByRideID(ctx, newRide.RideID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		_, err = r.engine.GetInstance(ctx, key)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, saga.ErrInstanceNotFound):
			return err
		}

		if err := r.rides.Create(ctx, newRide); err != nil {
			return err
		}
		_, err = r.engine.StartSaga(ctx, r.opts.ProcessID, key, map[string]any{
			saga.ParamRideID:         newRide.RideID,
			saga.ParamTraceID:        msg.TraceID,
			saga.ParamExpiryDuration: r.opts.Expiry.String(),
		})
		if err != nil {
			return err
		}
		started = true
		return nil
	})
	if err != nil {
		return r.fail(ctx, msg, newRide.RideID, err)
	}

	if !started {
		r.logger.Warn(ctx, "ride_request_duplicate", "Ride already exists; request ignored", map[string]any{
			"message_id": msg.ID,
		})
		return nil
	}
	r.logger.Info(ctx, "ride_requested", fmt.Sprintf("Ride %s requested", newRide.RideID), map[string]any{
		"passenger_id": newRide.PassengerID,
		"price":        newRide.Price.String(),
		"process_id":   r.opts.ProcessID,
	})
	return nil
}
