package ride

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Ride is the projection of a ride's business state, stored in the `rides` table.
type Ride struct {
	// Identity & audit
	ID        int64  // store-assigned
	RideID    string // correlation id assigned by the originating system
	CreatedAt time.Time
	UpdatedAt time.Time

	// Trip
	Pickup      string
	Destination string
	Price       decimal.Decimal

	// Actors
	PassengerID string
	DriverID    *string // nil until assignment

	Status Status
}

var (
	ErrRideIDRequired          = errors.New("ride id is required")
	ErrPassengerRequired       = errors.New("passenger id is required")
	ErrDriverRequired          = errors.New("driver id is required")
	ErrNegativePrice           = errors.New("price must not be negative")
	ErrInvalidStatusTransition = errors.New("invalid ride status transition")
	ErrRideNotFound            = errors.New("ride not found")
	ErrDuplicateRide           = errors.New("ride already exists for ride id")
)

// NewRide creates a ride in REQUESTED state. rideID is stored as given; it must match the correlation key.
func NewRide(rideID, pickup, destination string, price decimal.Decimal, passengerID string) (*Ride, error) {
	if strings.TrimSpace(rideID) == "" {
		return nil, ErrRideIDRequired
	}
	if passengerID = strings.TrimSpace(passengerID); passengerID == "" {
		return nil, ErrPassengerRequired
	}
	if price.IsNegative() {
		return nil, ErrNegativePrice
	}

	now := time.Now().UTC()
	return &Ride{
		RideID:      rideID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Pickup:      pickup,
		Destination: destination,
		Price:       price,
		PassengerID: passengerID,
		Status:      StatusRequested,
	}, nil
}

// AssignDriver sets the driver and moves REQUESTED -> DRIVER_ASSIGNED.
func (ride *Ride) AssignDriver(driverID string) error {
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return ErrDriverRequired
	}
	if ride.Status != StatusRequested {
		return ErrInvalidStatusTransition
	}

	ride.DriverID = &driverID
	ride.setStatus(StatusDriverAssigned)
	return nil
}

// SetStatus overwrites the status as instructed by a workflow step.
func (ride *Ride) SetStatus(status Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	ride.setStatus(status)
	return nil
}

// Driver returns the assigned driver id or "".
func (ride *Ride) Driver() string {
	if ride.DriverID == nil {
		return ""
	}
	return *ride.DriverID
}

// Clone returns a deep copy so callers can mutate without sharing DriverID.
func (ride *Ride) Clone() *Ride {
	out := *ride
	if ride.DriverID != nil {
		d := *ride.DriverID
		out.DriverID = &d
	}
	return &out
}

// ----- internal helpers -----

func (ride *Ride) setStatus(status Status) {
	ride.Status = status
	ride.touch()
}

func (ride *Ride) touch() {
	ride.UpdatedAt = time.Now().UTC()
}
