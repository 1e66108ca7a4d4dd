package service

import (
	"context"
	"errors"
	"fmt"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/general/contracts"
)

// signalRouter forwards a category straight to the saga as a signal.
// The status guard only applies with RouterOptions.SymmetricGuards.
type signalRouter struct {
	router
	kind    contracts.Kind
	signal  saga.Signal
	guard   func(ride.Status) bool
	payload func(contracts.Message) map[string]any
}

func (r *signalRouter) Kind() contracts.Kind { return r.kind }

func (r *signalRouter) Handle(ctx context.Context, msg contracts.Message) error {
	if !r.accepts(ctx, r.kind, msg) {
		return nil
	}
	rideID := msg.RideID()
	key, err := correlationKey(rideID)
	if err != nil {
		return r.fail(ctx, msg, rideID, err)
	}

	var payload map[string]any
	if r.payload != nil {
		payload = r.payload(msg)
	}

	var stale *ride.Status
	err = r.uow.WithinTx(ctx, func(ctx context.Context) error {
		if r.opts.SymmetricGuards {
			current, err := r.rides.FindByRideIDForUpdate(ctx, rideID)
			if err != nil {
				return err
			}
			if current == nil {
				return fmt.Errorf("%w: %s", ride.ErrRideNotFound, rideID)
			}
			if !r.guard(current.Status) {
				status := current.Status
				stale = &status
				return nil
			}
		}
		return r.engine.Signal(ctx, key, r.signal, payload)
	})
	if errors.Is(err, saga.ErrNoTransition) {
		r.logger.Info(ctx, "saga_signal_ignored", fmt.Sprintf("%s has no transition for ride %s", msg.MessageType, rideID), map[string]any{
			"message_id": msg.ID,
			"error":      err.Error(),
		})
		return nil
	}
	if err != nil {
		return r.fail(ctx, msg, rideID, err)
	}

	if stale != nil {
		r.logger.Warn(ctx, "signal_guard_rejected", fmt.Sprintf("%s dropped for ride in status %s", msg.MessageType, stale.String()), map[string]any{
			"message_id": msg.ID,
		})
		return nil
	}
	r.logger.Info(ctx, "saga_signaled", fmt.Sprintf("Signal %s sent for ride %s", r.signal, rideID), nil)
	return nil
}
