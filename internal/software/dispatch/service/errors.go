package service

import (
	"errors"
	"fmt"
)

var ErrUnexpectedPayload = errors.New("unexpected payload for message type")

// ProcessingError is returned for any failure that should make the bus redeliver the message.
type ProcessingError struct {
	MessageType string
	RideID      string
	Err         error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("dispatch: processing %s for ride %q: %v", e.MessageType, e.RideID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// IsProcessingError reports whether err is, or wraps, a ProcessingError.
func IsProcessingError(err error) bool {
	var pe *ProcessingError
	return errors.As(err, &pe)
}
