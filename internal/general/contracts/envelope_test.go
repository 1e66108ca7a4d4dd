package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"ride-dispatch/internal/domain/ride"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		wantType string
		wantKind Kind
	}{
		{"known", `{"messageType":"RideRequestedEvent","payload":{}}`, "RideRequestedEvent", KindRideRequested},
		{"case insensitive", `{"messageType":"driverassignedevent"}`, "driverassignedevent", KindDriverAssigned},
		{"foreign type", `{"messageType":"SurgePricingEvent"}`, "SurgePricingEvent", KindUnknown},
		{"absent", `{"payload":{"rideId":"r1"}}`, "", KindUnknown},
		{"not a string", `{"messageType":42}`, "", KindUnknown},
		{"malformed", `{"messageType":`, "", KindUnknown},
		{"empty", ``, "", KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotType, gotKind := Probe([]byte(tc.raw))
			assert.Equal(t, tc.wantType, gotType)
			assert.Equal(t, tc.wantKind, gotKind)
		})
	}
}

func TestDecodeUnknownIsNotAnError(t *testing.T) {
	msg, err := Decode([]byte(`{"messageType":"SomethingElse","payload":{"broken":`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, msg.Kind)
	assert.Nil(t, msg.Payload)
}

func TestDecodeRideRequested(t *testing.T) {
	raw := `{"messageType":"RideRequestedEvent","payload":{"rideId":"ride123","pickup":"A","destination":"B","price":25.0,"passengerId":"p1"}}`

	msg, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, KindRideRequested, msg.Kind)
	assert.NotEmpty(t, msg.ID, "missing id gets a generated one")
	assert.Equal(t, "ride123", msg.RideID())

	event, ok := msg.Payload.(*RideRequestedEvent)
	require.True(t, ok)
	assert.Equal(t, "A", event.Pickup)
	assert.Equal(t, "B", event.Destination)
	assert.Equal(t, "p1", event.PassengerID)
	assert.True(t, decimal.RequireFromString("25").Equal(event.Price))
}

func TestDecodeKeepsEnvelopeFields(t *testing.T) {
	raw := `{"messageType":"RideStartedEvent","id":"m-1","traceId":"t-1","sender":"RideService","timestamp":1700000000123,
		"payload":{"rideId":"r1","timestamp":"2024-01-02T03:04:05Z"}}`

	msg, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "m-1", msg.ID)
	assert.Equal(t, "t-1", msg.TraceID)
	assert.Equal(t, "RideService", msg.Sender)
	assert.Equal(t, int64(1700000000123), msg.Timestamp.UnixMilli())

	event := msg.Payload.(*RideStartedEvent)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), event.Timestamp.Time)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"messageType":"DriverAssignedEvent"}`))
	assert.ErrorIs(t, err, ErrMissingPayload)

	_, err = Decode([]byte(`{"messageType":"DriverAssignedEvent","payload":null}`))
	assert.ErrorIs(t, err, ErrMissingPayload)

	_, err = Decode([]byte(`{"messageType":"DriverAssignedEvent","payload":{"rideId":5}}`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = Decode([]byte(`{"messageType":"RideEndedEvent","timestamp":"yesterday","payload":{"rideId":"r1"}}`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestCommandRoundTripKeepsPrice(t *testing.T) {
	r, err := ride.NewRide("ride-7", "Pickup St", "Drop Ave", decimal.RequireFromString("1234567.8901"), "p-9")
	require.NoError(t, err)

	out := NewMessage(TypeAssignDriverCommand, SenderDispatchService, "trace-9", NewAssignDriverCommand(r))
	raw, err := Encode(out)
	require.NoError(t, err)

	in, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, out.ID, in.ID)
	assert.Equal(t, "trace-9", in.TraceID)
	assert.Equal(t, SenderDispatchService, in.Sender)
	assert.Equal(t, out.Timestamp.UnixMilli(), in.Timestamp.UnixMilli())

	cmd, ok := in.Payload.(*AssignDriverCommand)
	require.True(t, ok)
	assert.Equal(t, "ride-7", cmd.RideID)
	assert.Equal(t, "Pickup St", cmd.Pickup)
	assert.Equal(t, "Drop Ave", cmd.Destination)
	assert.Equal(t, "p-9", cmd.PassengerID)
	assert.Equal(t, "1234567.8901", cmd.Price.String())
}

func TestEncodeWritesPriceAsNumber(t *testing.T) {
	r, err := ride.NewRide("r1", "A", "B", decimal.RequireFromString("25.5"), "p1")
	require.NoError(t, err)

	raw, err := Encode(NewMessage(TypeHandlePaymentCommand, SenderDispatchService, "", NewHandlePaymentCommand(r)))
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	payload := generic["payload"].(map[string]any)
	assert.Equal(t, 25.5, payload["price"])
	assert.IsType(t, float64(0), generic["timestamp"])
}

func TestMillisNull(t *testing.T) {
	var m Millis
	require.NoError(t, json.Unmarshal([]byte(`null`), &m))
	assert.True(t, m.IsZero())

	raw, err := json.Marshal(Millis{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}
