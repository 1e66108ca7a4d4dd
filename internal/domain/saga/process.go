package saga

import "maps"

// State is a node of the dispatch process graph.
type State string

const (
	StateRequested         State = "REQUESTED"
	StateDriverAssigned    State = "DRIVER_ASSIGNED"
	StateStarted           State = "STARTED"
	StateEnded             State = "ENDED"
	StateDriverCanceled    State = "DRIVER_CANCELED"
	StatePassengerCanceled State = "PASSENGER_CANCELED"
	StateExpired           State = "EXPIRED"
)

// Signal advances a saga instance.
type Signal string

const (
	SignalDriverAssigned    Signal = "DriverAssigned"
	SignalRideStarted       Signal = "RideStarted"
	SignalRideEnded         Signal = "RideEnded"
	SignalPassengerCanceled Signal = "PassengerCanceled"
	SignalDriverCanceled    Signal = "DriverCanceled"
)

// Work item names and the parameters they understand.
const (
	WorkItemSendMessage = "SendMessage"
	WorkItemUpdateRide  = "UpdateRide"

	ParamMessageType    = "MessageType"
	ParamDestination    = "Destination"
	ParamStatus         = "status"
	ParamRideID         = "rideId"
	ParamTraceID        = "traceId"
	ParamExpiryDuration = "expiryDuration"
)

// Destination aliases resolved against sender configuration.
const (
	DestinationAssignDriver  = "assign-driver-command"
	DestinationHandlePayment = "handle-payment-command"
)

// WorkItemSpec is a step declared on entry of a state.
type WorkItemSpec struct {
	Name   string
	Params map[string]any
}

// Definition is the dispatch process as code: signal transitions, timer transitions and entry steps.
type Definition struct {
	ID      string
	Initial State

	transitions map[State]map[Signal]State
	timers      map[State]State
	onEntry     map[State][]WorkItemSpec
}

// DispatchProcess builds the ride dispatch process registered under processID.
func DispatchProcess(processID string) Definition {
	cancellations := map[Signal]State{
		SignalDriverCanceled:    StateDriverCanceled,
		SignalPassengerCanceled: StatePassengerCanceled,
	}
	with := func(extra map[Signal]State) map[Signal]State {
		out := maps.Clone(cancellations)
		maps.Copy(out, extra)
		return out
	}

	return Definition{
		ID:      processID,
		Initial: StateRequested,
		transitions: map[State]map[Signal]State{
			StateRequested:      with(map[Signal]State{SignalDriverAssigned: StateDriverAssigned}),
			StateDriverAssigned: with(map[Signal]State{SignalRideStarted: StateStarted}),
			StateStarted:        with(map[Signal]State{SignalRideEnded: StateEnded}),
		},
		timers: map[State]State{
			StateRequested: StateExpired,
		},
		onEntry: map[State][]WorkItemSpec{
			StateDriverAssigned: {
				sendMessage("AssignDriverCommand", DestinationAssignDriver),
			},
			StateStarted: {updateRide("started")},
			StateEnded: {
				updateRide("ended"),
				sendMessage("HandlePaymentCommand", DestinationHandlePayment),
			},
			StateExpired:           {updateRide("expired")},
			StateDriverCanceled:    {updateRide("driver_canceled")},
			StatePassengerCanceled: {updateRide("passenger_canceled")},
		},
	}
}

// Next returns the state reached from `from` on sig, if any.
func (d Definition) Next(from State, sig Signal) (State, bool) {
	next, ok := d.transitions[from][sig]
	return next, ok
}

// TimerTarget returns the state entered when the expiry timer of `from` fires.
func (d Definition) TimerTarget(from State) (State, bool) {
	next, ok := d.timers[from]
	return next, ok
}

// HasTimer reports whether entering s arms the expiry timer.
func (d Definition) HasTimer(s State) bool {
	_, ok := d.timers[s]
	return ok
}

// OnEntry returns copies of the steps run when s is entered.
func (d Definition) OnEntry(s State) []WorkItemSpec {
	specs := d.onEntry[s]
	out := make([]WorkItemSpec, len(specs))
	for i, spec := range specs {
		out[i] = WorkItemSpec{Name: spec.Name, Params: maps.Clone(spec.Params)}
	}
	return out
}

// Terminal reports whether no signal or timer leaves s.
func (d Definition) Terminal(s State) bool {
	return len(d.transitions[s]) == 0 && !d.HasTimer(s)
}

func sendMessage(messageType, destination string) WorkItemSpec {
	return WorkItemSpec{
		Name: WorkItemSendMessage,
		Params: map[string]any{
			ParamMessageType: messageType,
			ParamDestination: destination,
		},
	}
}

func updateRide(status string) WorkItemSpec {
	return WorkItemSpec{
		Name:   WorkItemUpdateRide,
		Params: map[string]any{ParamStatus: status},
	}
}
