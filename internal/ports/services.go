package ports

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/general/contracts"
)

// ----- Process engine -----

// ProcessEngine runs saga instances addressed by correlation key.
type ProcessEngine interface {
	StartSaga(ctx context.Context, processID string, key saga.CorrelationKey, params map[string]any) (saga.InstanceRef, error)
	// Signal advances the instance. A signal with no transition from the current state is a no-op.
	Signal(ctx context.Context, key saga.CorrelationKey, signal saga.Signal, payload map[string]any) error
	// GetInstance returns saga.ErrInstanceNotFound when no instance exists for key.
	GetInstance(ctx context.Context, key saga.CorrelationKey) (saga.InstanceRef, error)
}

// WorkItemHandler executes one named step for the engine and returns its result.
type WorkItemHandler interface {
	Execute(ctx context.Context, item saga.WorkItem) (map[string]any, error)
}

// ----- Messaging -----

// Publisher sends an encoded envelope to a destination.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// MessageDeduplicator remembers envelope ids that were already handled.
type MessageDeduplicator interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	Mark(ctx context.Context, messageID string) error
}

// EventRouter handles one inbound event category.
type EventRouter interface {
	Kind() contracts.Kind
	Handle(ctx context.Context, msg contracts.Message) error
}

// ----- Query side -----

// SagaView is the read model returned by the query API.
type SagaView struct {
	InstanceID  int64            `json:"instance_id"`
	ProcessID   string           `json:"process_id"`
	RideID      string           `json:"ride_id"`
	State       string           `json:"state"`
	Transitions []TransitionView `json:"transitions"`
}

// TransitionView is one entry of SagaView.Transitions.
type TransitionView struct {
	From    string    `json:"from,omitempty"`
	To      string    `json:"to"`
	Trigger string    `json:"trigger"`
	Name    string    `json:"name,omitempty"`
	At      time.Time `json:"at"`
}

// OverviewView summarizes rides per status.
type OverviewView struct {
	Timestamp     time.Time      `json:"timestamp"`
	RidesByStatus map[string]int `json:"rides_by_status"`
	ActiveRides   int            `json:"active_rides"`
	TotalRides    int            `json:"total_rides"`
}

// QueryService exposes read-only views of rides and their sagas.
type QueryService interface {
	GetRide(ctx context.Context, rideID string) (*ride.Ride, error)
	GetSaga(ctx context.Context, rideID string) (*SagaView, error)
	ListRides(ctx context.Context, limit, offset int) ([]*ride.Ride, error)
	Overview(ctx context.Context) (*OverviewView, error)
}
