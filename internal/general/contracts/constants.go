package contracts

// Message types carried in the envelope's messageType field.
const (
	TypeRideRequestedEvent     = "RideRequestedEvent"
	TypeDriverAssignedEvent    = "DriverAssignedEvent"
	TypeRideStartedEvent       = "RideStartedEvent"
	TypeRideEndedEvent         = "RideEndedEvent"
	TypePassengerCanceledEvent = "PassengerCanceledEvent"
	TypeAssignDriverCommand    = "AssignDriverCommand"
	TypeHandlePaymentCommand   = "HandlePaymentCommand"
)

// SenderDispatchService is the sender identity stamped on outbound commands.
const SenderDispatchService = "DispatchService"

// Listener destination aliases (one queue per inbound category).
const (
	ListenRideRequested     = "ride-requested-event"
	ListenDriverAssigned    = "driver-assigned-event"
	ListenRideStarted       = "ride-started-event"
	ListenRideEnded         = "ride-ended-event"
	ListenPassengerCanceled = "passenger-canceled-event"
)

// Default exchanges and queues.
const (
	ExchangeRideEvents     = "ride_events"
	ExchangeDispatchDLX    = "dispatch_dlx"
	ExchangeDriverCommands = "driver_commands"
	ExchangePaymentCommand = "payment_commands"

	QueueRideRequested     = "dispatch.ride_requested"
	QueueDriverAssigned    = "dispatch.driver_assigned"
	QueueRideStarted       = "dispatch.ride_started"
	QueueRideEnded         = "dispatch.ride_ended"
	QueuePassengerCanceled = "dispatch.passenger_canceled"
	QueueDeadLetter        = "dispatch.dead_letter"
)

// ListenerKinds maps each listener destination alias to the kind consumed from it.
var ListenerKinds = map[string]Kind{
	ListenRideRequested:     KindRideRequested,
	ListenDriverAssigned:    KindDriverAssigned,
	ListenRideStarted:       KindRideStarted,
	ListenRideEnded:         KindRideEnded,
	ListenPassengerCanceled: KindPassengerCanceled,
}
