package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/rabbitmq"
	"ride-dispatch/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer decodes inbound envelopes and hands them to the router for their kind.
type Consumer struct {
	logger  *logger.Logger
	routers map[contracts.Kind]ports.EventRouter
	dedup   ports.MessageDeduplicator // nil disables duplicate filtering
}

// NewConsumer indexes routers by kind. dedup may be nil.
func NewConsumer(logger *logger.Logger, dedup ports.MessageDeduplicator, routers ...ports.EventRouter) *Consumer {
	byKind := make(map[contracts.Kind]ports.EventRouter, len(routers))
	for _, r := range routers {
		byKind[r.Kind()] = r
	}
	return &Consumer{logger: logger, routers: byKind, dedup: dedup}
}

// HandleMessage processes one raw envelope.
// Unknown message types are consumed with a debug line; a returned error means the bus should redeliver.
func (c *Consumer) HandleMessage(ctx context.Context, body []byte) error {
	msg, err := contracts.Decode(body)
	if err != nil {
		messageType, _ := contracts.Probe(body)
		c.logger.Error(ctx, "message_decode_failed", "Failed to decode envelope", err, map[string]any{
			"message_type": messageType,
		})
		return &ProcessingError{MessageType: messageType, Err: err}
	}
	if msg.Kind == contracts.KindUnknown {
		c.logger.Debug(ctx, "message_type_unrecognized", "Skipping message of unrecognized type", map[string]any{
			"message_type": msg.MessageType,
		})
		return nil
	}

	router, ok := c.routers[msg.Kind]
	if !ok {
		c.logger.Debug(ctx, "message_type_unrouted", "No router for message type", map[string]any{
			"message_type": msg.MessageType,
		})
		return nil
	}

	ctx = logger.WithRequestID(ctx, msg.ID)
	ctx = logger.WithTraceID(ctx, msg.TraceID)
	ctx = logger.WithRideID(ctx, msg.RideID())

	if c.dedup != nil {
		seen, err := c.dedup.Seen(ctx, msg.ID)
		if err != nil {
			// fall through: the routers tolerate redelivery
			c.logger.Warn(ctx, "dedup_lookup_failed", "Duplicate check failed: "+err.Error(), nil)
		} else if seen {
			c.logger.Info(ctx, "message_duplicate_skipped", "Message id already processed", map[string]any{
				"message_type": msg.MessageType,
			})
			return nil
		}
	}

	if err := router.Handle(ctx, msg); err != nil {
		return err
	}

	if c.dedup != nil {
		if err := c.dedup.Mark(ctx, msg.ID); err != nil {
			c.logger.Warn(ctx, "dedup_mark_failed", "Failed to remember processed message: "+err.Error(), nil)
		}
	}
	return nil
}

// HandleDelivery adapts HandleMessage to the RabbitMQ consumer loop.
func (c *Consumer) HandleDelivery(ctx context.Context, d amqp.Delivery) error {
	return c.HandleMessage(ctx, d.Body)
}

// Run attaches consumers_per_queue consumers to every configured listener queue
// and blocks until ctx ends and all of them stop.
func (c *Consumer) Run(ctx context.Context, client *rabbitmq.Client, cfg *config.Config) error {
	aliases := make([]string, 0, len(cfg.Listener.Destinations))
	for alias := range cfg.Listener.Destinations {
		if _, ok := contracts.ListenerKinds[alias]; ok {
			aliases = append(aliases, alias)
		}
	}
	if len(aliases) == 0 {
		return errors.New("dispatch: no listener destinations configured")
	}
	sort.Strings(aliases)

	var wg sync.WaitGroup
	for _, alias := range aliases {
		queue := cfg.Listener.Destinations[alias]
		for i := 0; i < cfg.RabbitMQ.ConsumersPerQueue; i++ {
			tag := fmt.Sprintf("%s-%s-%d", cfg.Service.Name, alias, i)
			wg.Add(1)
			go func() {
				defer wg.Done()
				client.ConsumeForever(ctx, queue, tag, cfg.RabbitMQ.Prefetch, c.HandleDelivery)
			}()
		}
		c.logger.Info(ctx, "consumer_started", "Consuming "+queue, map[string]any{
			"alias":     alias,
			"consumers": cfg.RabbitMQ.ConsumersPerQueue,
			"prefetch":  cfg.RabbitMQ.Prefetch,
		})
	}

	wg.Wait()
	return nil
}
