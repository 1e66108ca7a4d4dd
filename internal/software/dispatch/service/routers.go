package service

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

// RouterOptions carries the configuration the routers need.
type RouterOptions struct {
	// ProcessID is the deployment-qualified process the sagas run under.
	ProcessID string
	// Expiry is handed to every new saga as its driver-assignment timeout.
	Expiry time.Duration
	// SymmetricGuards makes RideStarted, RideEnded and PassengerCanceled check the ride status
	// the way DriverAssigned always does.
	SymmetricGuards bool
}

// router holds what every category router shares.
type router struct {
	logger *logger.Logger
	uow    ports.UnitOfWork
	rides  ports.RideRepository
	engine ports.ProcessEngine
	opts   RouterOptions
}

// NewRouters returns one router per inbound category.
func NewRouters(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	rides ports.RideRepository,
	engine ports.ProcessEngine,
	opts RouterOptions,
) []ports.EventRouter {
	base := router{logger: logger, uow: uow, rides: rides, engine: engine, opts: opts}
	return []ports.EventRouter{
		&RideRequestedRouter{router: base},
		&DriverAssignedRouter{router: base},
		&signalRouter{
			router: base,
			kind:   contracts.KindRideStarted,
			signal: saga.SignalRideStarted,
			guard:  func(s ride.Status) bool { return s == ride.StatusDriverAssigned },
		},
		&signalRouter{
			router: base,
			kind:   contracts.KindRideEnded,
			signal: saga.SignalRideEnded,
			guard:  func(s ride.Status) bool { return s == ride.StatusStarted },
		},
		&signalRouter{
			router: base,
			kind:   contracts.KindPassengerCanceled,
			signal: saga.SignalPassengerCanceled,
			guard:  func(s ride.Status) bool { return !s.Terminal() },
			payload: func(msg contracts.Message) map[string]any {
				if ev, ok := msg.Payload.(*contracts.PassengerCanceledEvent); ok && ev.Reason != "" {
					return map[string]any{"reason": ev.Reason}
				}
				return nil
			},
		},
	}
}

// accepts reports whether msg belongs to kind; other messages are dropped with a debug line.
func (r *router) accepts(ctx context.Context, kind contracts.Kind, msg contracts.Message) bool {
	if msg.Kind == kind {
		return true
	}
	r.logger.Debug(ctx, "router_kind_mismatch", "Message does not belong to this router", map[string]any{
		"router":       kind.String(),
		"message_type": msg.MessageType,
	})
	return false
}

// fail logs a processing failure and wraps it for the consumer.
func (r *router) fail(ctx context.Context, msg contracts.Message, rideID string, err error) error {
	r.logger.Error(ctx, "message_processing_failed", "Failed to process "+msg.MessageType, err, map[string]any{
		"message_id": msg.ID,
	})
	return &ProcessingError{MessageType: msg.MessageType, RideID: rideID, Err: err}
}

func correlationKey(rideID string) (saga.CorrelationKey, error) {
	return saga.NewCorrelationKey(rideID)
}
