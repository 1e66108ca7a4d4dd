package ride

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRide(t *testing.T) {
	r, err := NewRide("ride123", "A", "B", decimal.NewFromFloat(25.0), "p1")
	require.NoError(t, err)
	assert.Equal(t, "ride123", r.RideID)
	assert.Equal(t, StatusRequested, r.Status)
	assert.Nil(t, r.DriverID)

	padded, err := NewRide(" ride123 ", "A", "B", decimal.Zero, "p1")
	require.NoError(t, err)
	assert.Equal(t, " ride123 ", padded.RideID)

	_, err = NewRide("", "A", "B", decimal.Zero, "p1")
	assert.ErrorIs(t, err, ErrRideIDRequired)
	_, err = NewRide(" \t", "A", "B", decimal.Zero, "p1")
	assert.ErrorIs(t, err, ErrRideIDRequired)
	_, err = NewRide("r", "A", "B", decimal.Zero, " ")
	assert.ErrorIs(t, err, ErrPassengerRequired)
	_, err = NewRide("r", "A", "B", decimal.NewFromInt(-1), "p1")
	assert.ErrorIs(t, err, ErrNegativePrice)
}

func TestAssignDriver(t *testing.T) {
	r, err := NewRide("ride123", "A", "B", decimal.Zero, "p1")
	require.NoError(t, err)

	assert.ErrorIs(t, r.AssignDriver(""), ErrDriverRequired)
	require.NoError(t, r.AssignDriver("d1"))
	assert.Equal(t, "d1", r.Driver())
	assert.Equal(t, StatusDriverAssigned, r.Status)

	assert.ErrorIs(t, r.AssignDriver("d2"), ErrInvalidStatusTransition)
	assert.Equal(t, "d1", r.Driver())

	c := r.Clone()
	*c.DriverID = "other"
	assert.Equal(t, "d1", r.Driver())
}

func TestStatus(t *testing.T) {
	s, err := ParseStatus(" Passenger_Canceled ")
	require.NoError(t, err)
	assert.Equal(t, StatusPassengerCanceled, s)
	assert.Equal(t, 4, s.Code())
	assert.Equal(t, "PASSENGER_CANCELED", s.String())
	assert.True(t, s.Terminal())

	_, err = ParseStatus("lost")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	s, err = StatusFromCode(5)
	require.NoError(t, err)
	assert.Equal(t, StatusStarted, s)
	assert.False(t, s.Terminal())
	_, err = StatusFromCode(9)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	text, err := StatusExpired.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "EXPIRED", string(text))
	_, err = Status(0).MarshalText()
	assert.Error(t, err)
}
