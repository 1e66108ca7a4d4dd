package workitem

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownDestination = errors.New("destination alias is not configured")
	ErrNoPayloadBuilder   = errors.New("no payload builder registered for message type")
	ErrMissingParam       = errors.New("work item parameter is missing")
)

// FatalError marks a misconfigured step. Retrying it cannot succeed.
type FatalError struct {
	WorkItem string
	Err      error
}

func fatal(workItem string, err error) *FatalError {
	return &FatalError{WorkItem: workItem, Err: err}
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("workitem %s: fatal: %v", e.WorkItem, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Permanent tells the bus consumer to dead-letter the message without a retry.
func (e *FatalError) Permanent() bool { return true }

// IsFatal reports whether err is, or wraps, a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
