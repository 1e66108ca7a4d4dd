package rabbitmq

import (
	"fmt"
	"sort"

	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueBinding is one inbound category queue bound to the events exchange.
type QueueBinding struct {
	Queue      string
	RoutingKey string
}

// Topology is the broker layout the dispatch service relies on.
type Topology struct {
	EventsExchange     string
	DeadLetterExchange string
	DeadLetterQueue    string
	Queues             []QueueBinding
	CommandExchanges   []string
}

// TopologyFromConfig derives the layout from the listener and sender destinations.
// Inbound queues are bound by message type; command exchanges are the sender destination values.
func TopologyFromConfig(cfg *config.Config) Topology {
	topo := Topology{
		EventsExchange:     cfg.RabbitMQ.EventsExchange,
		DeadLetterExchange: cfg.RabbitMQ.DeadLetter,
		DeadLetterQueue:    contracts.QueueDeadLetter,
	}

	for alias, queue := range cfg.Listener.Destinations {
		kind, ok := contracts.ListenerKinds[alias]
		if !ok {
			continue
		}
		topo.Queues = append(topo.Queues, QueueBinding{Queue: queue, RoutingKey: kind.String()})
	}
	sort.Slice(topo.Queues, func(i, j int) bool { return topo.Queues[i].Queue < topo.Queues[j].Queue })

	seen := map[string]bool{}
	for _, exchange := range cfg.Sender.Destinations {
		if exchange == "" || seen[exchange] {
			continue
		}
		seen[exchange] = true
		topo.CommandExchanges = append(topo.CommandExchanges, exchange)
	}
	sort.Strings(topo.CommandExchanges)

	return topo
}

func declareTopology(ch *amqp.Channel, topo Topology) error {
	// 1. Exchanges
	if err := ch.ExchangeDeclare(topo.EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", topo.EventsExchange, err)
	}
	if err := ch.ExchangeDeclare(topo.DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", topo.DeadLetterExchange, err)
	}
	for _, ex := range topo.CommandExchanges {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	// 2. Dead-letter queue
	if _, err := ch.QueueDeclare(topo.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", topo.DeadLetterQueue, err)
	}
	if err := ch.QueueBind(topo.DeadLetterQueue, "", topo.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", topo.DeadLetterQueue, topo.DeadLetterExchange, err)
	}

	// 3. Category queues; rejected deliveries go to the dead-letter exchange
	args := amqp.Table{"x-dead-letter-exchange": topo.DeadLetterExchange}
	for _, q := range topo.Queues {
		if _, err := ch.QueueDeclare(q.Queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Queue, err)
		}
		if err := ch.QueueBind(q.Queue, q.RoutingKey, topo.EventsExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", q.Queue, topo.EventsExchange, err)
		}
	}

	return nil
}
