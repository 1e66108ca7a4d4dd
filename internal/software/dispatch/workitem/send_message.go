package workitem

import (
	"context"
	"fmt"
	"maps"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

// SendMessageHandler is the outbound command dispatcher behind the SendMessage step.
// The publish is registered to run after the unit of work commits; the step itself
// completes without waiting for the broker.
type SendMessageHandler struct {
	logger       *logger.Logger
	uow          ports.UnitOfWork
	rides        ports.RideRepository
	publisher    ports.Publisher
	destinations map[string]string
	builders     PayloadBuilders
	sender       string
}

// NewSendMessageHandler wires the dispatcher. destinations maps alias -> exchange.
func NewSendMessageHandler(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	rides ports.RideRepository,
	publisher ports.Publisher,
	destinations map[string]string,
	builders PayloadBuilders,
	sender string,
) *SendMessageHandler {
	if sender == "" {
		sender = contracts.SenderDispatchService
	}
	return &SendMessageHandler{
		logger:       logger,
		uow:          uow,
		rides:        rides,
		publisher:    publisher,
		destinations: maps.Clone(destinations),
		builders:     builders,
		sender:       sender,
	}
}

func (handler *SendMessageHandler) Execute(ctx context.Context, item saga.WorkItem) (map[string]any, error) {
	messageType := item.StringParam(saga.ParamMessageType)
	if messageType == "" {
		return nil, fatal(item.Name, fmt.Errorf("%w: %s", ErrMissingParam, saga.ParamMessageType))
	}
	alias := item.StringParam(saga.ParamDestination)
	exchange := handler.destinations[alias]
	if exchange == "" {
		return nil, fatal(item.Name, fmt.Errorf("%w: %q", ErrUnknownDestination, alias))
	}
	build, ok := handler.builders.Lookup(messageType)
	if !ok {
		return nil, fatal(item.Name, fmt.Errorf("%w: %s", ErrNoPayloadBuilder, messageType))
	}

	rideID := rideIDOf(item)
	r, err := handler.rides.FindByRideID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("workitem: load ride %s: %w", rideID, err)
	}
	if r == nil {
		return nil, fmt.Errorf("workitem: %w: %s", ride.ErrRideNotFound, rideID)
	}

	// traceId stays empty when it is absent or not a string
	msg := contracts.NewMessage(messageType, handler.sender, item.StringParam(saga.ParamTraceID), build(r))
	body, err := contracts.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("workitem: encode %s: %w", messageType, err)
	}

	details := map[string]any{
		"message_type": messageType,
		"message_id":   msg.ID,
		"exchange":     exchange,
	}
	handler.uow.AfterCommit(ctx, func(ctx context.Context) {
		if err := handler.publisher.Publish(ctx, exchange, rideID, body); err != nil {
			handler.logger.Error(ctx, "command_publish_failed", "Failed to publish outbound command", err, details)
			return
		}
		handler.logger.Info(ctx, "command_published", fmt.Sprintf("%s published", messageType), details)
	})

	return map[string]any{}, nil
}

func rideIDOf(item saga.WorkItem) string {
	if id := item.StringParam(saga.ParamRideID); id != "" {
		return id
	}
	return item.Key.String()
}
