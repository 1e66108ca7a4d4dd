package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HandlerTimeout bounds a single delivery's handling.
const HandlerTimeout = 30 * time.Second

// Acknowledger is the subset of amqp.Delivery the settle policy needs.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Outcome is what happened to a delivery after handling.
type Outcome string

const (
	OutcomeAcked        Outcome = "acked"
	OutcomeRequeued     Outcome = "requeued"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// permanent is implemented by handler errors that a retry cannot fix.
type permanent interface {
	Permanent() bool
}

// IsPermanent reports whether err, or an error it wraps, is marked permanent.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}

// Settle applies the redelivery policy: ack on success, requeue a first failure,
// dead-letter a permanent failure or a failure of an already redelivered message.
func Settle(d Acknowledger, redelivered bool, handlerErr error) (Outcome, error) {
	switch {
	case handlerErr == nil:
		return OutcomeAcked, d.Ack(false)
	case !redelivered && !IsPermanent(handlerErr):
		return OutcomeRequeued, d.Nack(false, true)
	default:
		return OutcomeDeadLettered, d.Nack(false, false)
	}
}

// newConsumerChannel returns a fresh channel with prefetch (QoS) applied.
func (client *Client) newConsumerChannel(prefetch int) (*amqp.Channel, error) {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	// quick fail if no connection
	if conn == nil || conn.IsClosed() {
		return nil, errors.New("rabbitmq: connection is not ready")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	if prefetch < 0 {
		prefetch = 1
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("rabbitmq: set QoS (prefetch=%d): %w", prefetch, err)
		}
	}

	return ch, nil
}

// Consume reads queue with manual acks until ctx ends or the channel closes.
// Each delivery is settled by Settle according to the handler's result.
func (client *Client) Consume(
	ctx context.Context,
	queue string,
	consumerTag string,
	prefetch int,
	handler func(context.Context, amqp.Delivery) error,
) error {
	ch, err := client.newConsumerChannel(prefetch)
	if err != nil {
		return err
	}
	defer ch.Close()

	deliveries, err := ch.Consume(
		queue,
		consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal (ignored by RabbitMQ)
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume(%s): %w", queue, err)
	}

	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			if consumerTag != "" {
				_ = ch.Cancel(consumerTag, false)
			}
			return nil

		case cerr := <-chClosed:
			if cerr != nil {
				return fmt.Errorf("rabbitmq: channel closed while consuming %s: %w", queue, cerr)
			}
			return nil

		case d, ok := <-deliveries:
			if !ok {
				return nil
			}

			hCtx, cancel := context.WithTimeout(ctx, HandlerTimeout)
			herr := handler(hCtx, d)
			cancel()

			outcome, err := Settle(&d, d.Redelivered, herr)
			if err != nil {
				client.logger.Error(client.logCtx, "rabbitmq_settle_failed", "Failed to settle delivery", err,
					map[string]any{"queue": queue, "outcome": outcome})
				continue
			}
			if outcome == OutcomeDeadLettered {
				client.logger.Error(ctx, "message_dead_lettered", "Message failed; sent to dead-letter exchange", herr,
					map[string]any{"queue": queue, "message_id": d.MessageId, "redelivered": d.Redelivered, "permanent": IsPermanent(herr)})
			}
		}
	}
}

// ConsumeForever keeps a consumer attached across channel and connection failures.
func (client *Client) ConsumeForever(
	ctx context.Context,
	queue string,
	consumerTag string,
	prefetch int,
	handler func(context.Context, amqp.Delivery) error,
) {
	backoff := time.Second
	for {
		err := client.Consume(ctx, queue, consumerTag, prefetch, handler)
		if ctx.Err() != nil {
			return
		}
		wait := time.Second
		if err != nil {
			wait = backoff
			backoff = nextBackoff(backoff)
			client.logger.Error(client.logCtx, "rabbitmq_consume_failed", "Consumer stopped; retrying", err,
				map[string]any{"queue": queue, "consumer": consumerTag, "retry_in_ms": wait.Milliseconds()})
		} else {
			backoff = time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-client.closed:
			return
		case <-time.After(wait):
		}
	}
}
