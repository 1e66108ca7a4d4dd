package ride

import (
	"errors"
	"strings"
)

// Status is a ride status. The numeric code is what the `rides.status` column stores.
type Status int

const (
	StatusRequested         Status = 1
	StatusDriverAssigned    Status = 2
	StatusDriverCanceled    Status = 3
	StatusPassengerCanceled Status = 4
	StatusStarted           Status = 5
	StatusEnded             Status = 6
	StatusExpired           Status = 7
)

var ErrInvalidStatus = errors.New("invalid ride status")

var statusNames = map[Status]string{
	StatusRequested:         "requested",
	StatusDriverAssigned:    "driver_assigned",
	StatusDriverCanceled:    "driver_canceled",
	StatusPassengerCanceled: "passenger_canceled",
	StatusStarted:           "started",
	StatusEnded:             "ended",
	StatusExpired:           "expired",
}

var statusByName = func() map[string]Status {
	m := make(map[string]Status, len(statusNames))
	for status, name := range statusNames {
		m[name] = status
	}
	return m
}()

// ParseStatus looks a status up by name, ignoring case and surrounding spaces.
func ParseStatus(name string) (Status, error) {
	if status, ok := statusByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return status, nil
	}
	return 0, ErrInvalidStatus
}

// StatusFromCode maps a persisted code back to a Status.
func StatusFromCode(code int) (Status, error) {
	status := Status(code)
	if !status.Valid() {
		return 0, ErrInvalidStatus
	}
	return status, nil
}

// Valid reports whether status is one of the allowed ride status constants.
func (status Status) Valid() bool {
	_, ok := statusNames[status]
	return ok
}

// Code returns the persisted numeric code.
func (status Status) Code() int {
	return int(status)
}

// Name returns the lower-case name used by workflow steps.
func (status Status) Name() string {
	return statusNames[status]
}

// String returns the upper-case name, e.g. DRIVER_ASSIGNED.
func (status Status) String() string {
	if name, ok := statusNames[status]; ok {
		return strings.ToUpper(name)
	}
	return "UNKNOWN"
}

// Terminal indicates if the status is a final state of the ride lifecycle.
func (status Status) Terminal() bool {
	switch status {
	case StatusEnded, StatusExpired, StatusDriverCanceled, StatusPassengerCanceled:
		return true
	default:
		return false
	}
}

// MarshalText lets statuses appear by name in JSON payloads and logs.
func (status Status) MarshalText() ([]byte, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return []byte(status.String()), nil
}
