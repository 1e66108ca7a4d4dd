package workitem

import (
	"context"
	"fmt"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

// UpdateRideHandler writes the status named by the step onto the ride projection.
type UpdateRideHandler struct {
	logger *logger.Logger
	rides  ports.RideRepository
}

func NewUpdateRideHandler(logger *logger.Logger, rides ports.RideRepository) *UpdateRideHandler {
	return &UpdateRideHandler{logger: logger, rides: rides}
}

func (handler *UpdateRideHandler) Execute(ctx context.Context, item saga.WorkItem) (map[string]any, error) {
	name := item.StringParam(saga.ParamStatus)
	if name == "" {
		return nil, fatal(item.Name, fmt.Errorf("%w: %s", ErrMissingParam, saga.ParamStatus))
	}
	status, err := ride.ParseStatus(name)
	if err != nil {
		return nil, fatal(item.Name, err)
	}

	rideID := rideIDOf(item)
	r, err := handler.rides.FindByRideID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("workitem: load ride %s: %w", rideID, err)
	}
	if r == nil {
		return nil, fmt.Errorf("workitem: %w: %s", ride.ErrRideNotFound, rideID)
	}

	previous := r.Status
	if err := r.SetStatus(status); err != nil {
		return nil, fmt.Errorf("workitem: set status %s: %w", status, err)
	}
	if err := handler.rides.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("workitem: update ride %s: %w", rideID, err)
	}

	handler.logger.Info(ctx, "ride_status_updated", fmt.Sprintf("Ride %s is now %s", rideID, status), map[string]any{
		"from": previous.String(),
		"to":   status.String(),
	})
	return map[string]any{}, nil
}
