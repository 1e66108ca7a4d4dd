package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of message variants this service understands.
type Kind int

const (
	KindUnknown Kind = iota
	KindRideRequested
	KindDriverAssigned
	KindRideStarted
	KindRideEnded
	KindPassengerCanceled
	KindAssignDriver
	KindHandlePayment
)

var kindTypes = map[Kind]string{
	KindRideRequested:     TypeRideRequestedEvent,
	KindDriverAssigned:    TypeDriverAssignedEvent,
	KindRideStarted:       TypeRideStartedEvent,
	KindRideEnded:         TypeRideEndedEvent,
	KindPassengerCanceled: TypePassengerCanceledEvent,
	KindAssignDriver:      TypeAssignDriverCommand,
	KindHandlePayment:     TypeHandlePaymentCommand,
}

// KindOf maps a messageType to its variant; matching ignores case.
func KindOf(messageType string) Kind {
	messageType = strings.TrimSpace(messageType)
	for kind, name := range kindTypes {
		if strings.EqualFold(name, messageType) {
			return kind
		}
	}
	return KindUnknown
}

// String returns the canonical messageType of the variant.
func (kind Kind) String() string {
	if name, ok := kindTypes[kind]; ok {
		return name
	}
	return "Unknown"
}

var (
	ErrMalformedEnvelope = errors.New("malformed message envelope")
	ErrMissingPayload    = errors.New("message payload is missing")
)

// Message is a decoded envelope.
// Payload holds a pointer to the typed payload for Kind, or nil for KindUnknown.
type Message struct {
	Kind        Kind
	MessageType string
	ID          string
	TraceID     string
	Sender      string
	Timestamp   time.Time
	Payload     any
}

// NewMessage builds an outbound message with a fresh id and the current time.
func NewMessage(messageType, sender, traceID string, payload any) Message {
	return Message{
		Kind:        KindOf(messageType),
		MessageType: messageType,
		ID:          uuid.NewString(),
		TraceID:     traceID,
		Sender:      sender,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
}

// RideID returns the ride correlation id carried by the payload, if any.
func (msg Message) RideID() string {
	if scoped, ok := msg.Payload.(RideScoped); ok {
		return scoped.CorrelationID()
	}
	return ""
}

// wireEnvelope is the JSON shape on the bus.
type wireEnvelope struct {
	MessageType string          `json:"messageType"`
	ID          string          `json:"id"`
	TraceID     string          `json:"traceId"`
	Sender      string          `json:"sender"`
	Timestamp   Millis          `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// Probe reads only messageType. Absent, non-string or malformed input yields ("", KindUnknown).
func Probe(raw []byte) (string, Kind) {
	var probe struct {
		MessageType *string `json:"messageType"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.MessageType == nil {
		return "", KindUnknown
	}
	return *probe.MessageType, KindOf(*probe.MessageType)
}

// Decode probes the type first and only parses the payload for known kinds.
// Unknown kinds are returned without error so callers can skip them.
func Decode(raw []byte) (Message, error) {
	messageType, kind := Probe(raw)
	if kind == KindUnknown {
		return Message{Kind: KindUnknown, MessageType: messageType}, nil
	}

	var wire wireEnvelope
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	payload, err := decodePayload(kind, wire.Payload)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		Kind:        kind,
		MessageType: wire.MessageType,
		ID:          wire.ID,
		TraceID:     wire.TraceID,
		Sender:      wire.Sender,
		Timestamp:   wire.Timestamp.Time,
		Payload:     payload,
	}
	if strings.TrimSpace(msg.ID) == "" {
		msg.ID = uuid.NewString()
	}
	return msg, nil
}

// Encode serializes msg into the envelope shape.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return json.Marshal(wireEnvelope{
		MessageType: msg.MessageType,
		ID:          msg.ID,
		TraceID:     msg.TraceID,
		Sender:      msg.Sender,
		Timestamp:   Millis{msg.Timestamp},
		Payload:     payload,
	})
}

func decodePayload(kind Kind, raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, ErrMissingPayload
	}

	var payload any
	switch kind {
	case KindRideRequested:
		payload = &RideRequestedEvent{}
	case KindDriverAssigned:
		payload = &DriverAssignedEvent{}
	case KindRideStarted:
		payload = &RideStartedEvent{}
	case KindRideEnded:
		payload = &RideEndedEvent{}
	case KindPassengerCanceled:
		payload = &PassengerCanceledEvent{}
	case KindAssignDriver:
		payload = &AssignDriverCommand{}
	case KindHandlePayment:
		payload = &HandlePaymentCommand{}
	default:
		return nil, fmt.Errorf("%w: no payload type for %s", ErrMalformedEnvelope, kind)
	}

	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEnvelope, kind, err)
	}
	return payload, nil
}

// Millis is an instant encoded as epoch milliseconds.
// Decoding also accepts RFC 3339 strings and null.
type Millis struct {
	time.Time
}

// MarshalJSON writes epoch millis, or null for the zero time.
func (m Millis) MarshalJSON() ([]byte, error) {
	if m.IsZero() {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, m.UnixMilli(), 10), nil
}

// UnmarshalJSON reads epoch millis, an RFC 3339 string or null.
func (m *Millis) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		m.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		m.Time = t.UTC()
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	m.Time = time.UnixMilli(ms).UTC()
	return nil
}
