package contracts

import (
	"ride-dispatch/internal/domain/ride"

	"github.com/shopspring/decimal"
)

// AssignDriverCommand asks the driver service to find a driver for the ride.
type AssignDriverCommand struct {
	RideID      string          `json:"rideId"`
	Pickup      string          `json:"pickup"`
	Destination string          `json:"destination"`
	Price       decimal.Decimal `json:"price"`
	PassengerID string          `json:"passengerId"`
}

// HandlePaymentCommand asks the payment service to charge the passenger.
type HandlePaymentCommand struct {
	RideID      string          `json:"rideId"`
	PassengerID string          `json:"passengerId"`
	Price       decimal.Decimal `json:"price"`
}

// NewAssignDriverCommand captures the ride as it is at dispatch time.
func NewAssignDriverCommand(r *ride.Ride) any {
	return &AssignDriverCommand{
		RideID:      r.RideID,
		Pickup:      r.Pickup,
		Destination: r.Destination,
		Price:       r.Price,
		PassengerID: r.PassengerID,
	}
}

// NewHandlePaymentCommand captures the ride as it is at dispatch time.
func NewHandlePaymentCommand(r *ride.Ride) any {
	return &HandlePaymentCommand{
		RideID:      r.RideID,
		PassengerID: r.PassengerID,
		Price:       r.Price,
	}
}

func (c *AssignDriverCommand) CorrelationID() string  { return c.RideID }
func (c *HandlePaymentCommand) CorrelationID() string { return c.RideID }
