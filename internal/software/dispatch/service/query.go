package service

import (
	"context"
	"fmt"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/ports"
)

type queryService struct {
	uow       ports.UnitOfWork
	rides     ports.RideRepository
	instances ports.SagaInstanceRepository
	history   ports.SagaHistoryRepository
}

// NewQueryService returns the read side behind the HTTP API.
func NewQueryService(
	uow ports.UnitOfWork,
	rides ports.RideRepository,
	instances ports.SagaInstanceRepository,
	history ports.SagaHistoryRepository,
) ports.QueryService {
	return &queryService{uow: uow, rides: rides, instances: instances, history: history}
}

func (service *queryService) GetRide(ctx context.Context, rideID string) (*ride.Ride, error) {
	var out *ride.Ride
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := service.rides.FindByRideID(ctx, rideID)
		if err != nil {
			return err
		}
		if r == nil {
			return ride.ErrRideNotFound
		}
		out = r
		return nil
	})
	return out, err
}

func (service *queryService) GetSaga(ctx context.Context, rideID string) (*ports.SagaView, error) {
	key, err := saga.NewCorrelationKey(rideID)
	if err != nil {
		return nil, err
	}

	var view *ports.SagaView
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		instance, err := service.instances.FindByKey(ctx, key, false)
		if err != nil {
			return err
		}
		transitions, err := service.history.ListByInstance(ctx, instance.ID)
		if err != nil {
			return fmt.Errorf("load saga history: %w", err)
		}

		view = &ports.SagaView{
			InstanceID:  instance.ID,
			ProcessID:   instance.ProcessID,
			RideID:      instance.Key.String(),
			State:       string(instance.State),
			Transitions: make([]ports.TransitionView, 0, len(transitions)),
		}
		for _, t := range transitions {
			view.Transitions = append(view.Transitions, ports.TransitionView{
				From:    string(t.From),
				To:      string(t.To),
				Trigger: string(t.Trigger),
				Name:    t.Name,
				At:      t.CreatedAt,
			})
		}
		return nil
	})
	return view, err
}

func (service *queryService) ListRides(ctx context.Context, limit, offset int) ([]*ride.Ride, error) {
	var out []*ride.Ride
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = service.rides.FindAll(ctx, limit, offset)
		return err
	})
	return out, err
}

func (service *queryService) Overview(ctx context.Context) (*ports.OverviewView, error) {
	var counts map[ride.Status]int
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		counts, err = service.rides.CountByStatus(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	view := &ports.OverviewView{
		Timestamp:     time.Now().UTC(),
		RidesByStatus: make(map[string]int, len(counts)),
	}
	for status, n := range counts {
		view.RidesByStatus[status.String()] = n
		view.TotalRides += n
		if !status.Terminal() {
			view.ActiveRides += n
		}
	}
	return view, nil
}
