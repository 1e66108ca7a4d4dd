package contracts

import "github.com/shopspring/decimal"

func init() {
	// prices travel as JSON numbers, e.g. "price": 25.0
	decimal.MarshalJSONWithoutQuotes = true
}

// RideScoped is implemented by every payload that belongs to one ride.
type RideScoped interface {
	CorrelationID() string
}

// RideRequestedEvent is published by the ride service when a passenger requests a ride.
type RideRequestedEvent struct {
	RideID      string          `json:"rideId"`
	Pickup      string          `json:"pickup"`
	Destination string          `json:"destination"`
	Price       decimal.Decimal `json:"price"`
	PassengerID string          `json:"passengerId"`
}

// DriverAssignedEvent is published by the driver service once a driver accepts.
type DriverAssignedEvent struct {
	RideID   string `json:"rideId"`
	DriverID string `json:"driverId"`
}

// RideStartedEvent marks passenger pickup.
type RideStartedEvent struct {
	RideID    string `json:"rideId"`
	Timestamp Millis `json:"timestamp"`
}

// RideEndedEvent marks drop-off.
type RideEndedEvent struct {
	RideID    string `json:"rideId"`
	Timestamp Millis `json:"timestamp"`
}

// PassengerCanceledEvent is published when the passenger cancels.
type PassengerCanceledEvent struct {
	RideID string `json:"rideId"`
	Reason string `json:"reason,omitempty"`
}

func (e *RideRequestedEvent) CorrelationID() string     { return e.RideID }
func (e *DriverAssignedEvent) CorrelationID() string    { return e.RideID }
func (e *RideStartedEvent) CorrelationID() string       { return e.RideID }
func (e *RideEndedEvent) CorrelationID() string         { return e.RideID }
func (e *PassengerCanceledEvent) CorrelationID() string { return e.RideID }
