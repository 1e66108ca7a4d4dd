package workitem

import (
	"maps"
	"sort"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
)

// PayloadBuilder turns the current ride into an outbound command payload.
type PayloadBuilder func(r *ride.Ride) any

// PayloadBuilders is a read-only messageType -> builder mapping fixed at construction.
type PayloadBuilders struct {
	builders map[string]PayloadBuilder
}

// NewPayloadBuilders copies entries; later changes to the argument are not observed.
func NewPayloadBuilders(entries map[string]PayloadBuilder) PayloadBuilders {
	return PayloadBuilders{builders: maps.Clone(entries)}
}

// DefaultPayloadBuilders registers the commands the dispatch process sends.
func DefaultPayloadBuilders() PayloadBuilders {
	return NewPayloadBuilders(map[string]PayloadBuilder{
		contracts.TypeAssignDriverCommand:  contracts.NewAssignDriverCommand,
		contracts.TypeHandlePaymentCommand: contracts.NewHandlePaymentCommand,
	})
}

// With returns a new mapping extended by messageType.
func (b PayloadBuilders) With(messageType string, builder PayloadBuilder) PayloadBuilders {
	next := maps.Clone(b.builders)
	if next == nil {
		next = map[string]PayloadBuilder{}
	}
	next[messageType] = builder
	return PayloadBuilders{builders: next}
}

func (b PayloadBuilders) Lookup(messageType string) (PayloadBuilder, bool) {
	builder, ok := b.builders[messageType]
	return builder, ok && builder != nil
}

// Types lists the registered message types in order.
func (b PayloadBuilders) Types() []string {
	out := make([]string, 0, len(b.builders))
	for t := range b.builders {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
