package saga

import (
	"errors"
	"strings"
)

// CorrelationKey locates the saga instance that belongs to one ride.
// It is opaque to callers; only the engine and its store look inside.
type CorrelationKey struct {
	value string
}

var ErrEmptyCorrelation = errors.New("correlation id must not be empty")

// NewCorrelationKey derives the key for a ride correlation id.
// The id is kept byte for byte, so distinct rides never share a key. Blank ids are rejected.
func NewCorrelationKey(rideID string) (CorrelationKey, error) {
	if strings.TrimSpace(rideID) == "" {
		return CorrelationKey{}, ErrEmptyCorrelation
	}
	return CorrelationKey{value: rideID}, nil
}

// CorrelationKeyFromString rebuilds a key read back from storage.
func CorrelationKeyFromString(s string) CorrelationKey {
	return CorrelationKey{value: s}
}

// String returns the stored form of the key.
func (key CorrelationKey) String() string {
	return key.value
}

// IsZero reports whether the key was never initialized.
func (key CorrelationKey) IsZero() bool {
	return key.value == ""
}
