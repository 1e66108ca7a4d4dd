package saga

import (
	"encoding/json"
	"errors"
	"maps"
	"time"
)

// Instance is a persisted run of a process for one correlation key (`saga_instances` table).
type Instance struct {
	ID        int64
	ProcessID string
	Key       CorrelationKey
	State     State
	Params    map[string]any
	ExpiresAt *time.Time // set while the expiry timer is armed
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InstanceRef is what the engine hands back to callers.
type InstanceRef struct {
	ID        int64
	ProcessID string
	Key       CorrelationKey
	State     State
}

var (
	ErrInstanceNotFound  = errors.New("saga instance not found")
	ErrDuplicateInstance = errors.New("saga instance already exists for correlation key")
	ErrUnknownProcess    = errors.New("unknown process id")
	ErrNoTransition      = errors.New("signal has no transition from the current state")
)

// Ref returns the caller-facing view of the instance.
func (instance *Instance) Ref() InstanceRef {
	return InstanceRef{
		ID:        instance.ID,
		ProcessID: instance.ProcessID,
		Key:       instance.Key,
		State:     instance.State,
	}
}

// StringParam returns a string parameter, or "" when absent or not a string.
func (instance *Instance) StringParam(name string) string {
	if s, ok := instance.Params[name].(string); ok {
		return s
	}
	return ""
}

// ParamsJSON encodes the parameters for the JSONB column.
func (instance *Instance) ParamsJSON() ([]byte, error) {
	if instance.Params == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(instance.Params)
}

// Clone returns a copy that does not share Params or ExpiresAt.
func (instance *Instance) Clone() *Instance {
	out := *instance
	out.Params = maps.Clone(instance.Params)
	if instance.ExpiresAt != nil {
		t := *instance.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

// Trigger names what moved an instance.
type Trigger string

const (
	TriggerStart  Trigger = "start"
	TriggerSignal Trigger = "signal"
	TriggerTimer  Trigger = "timer"
)

// Transition is one recorded state change of an instance (`saga_transitions` table).
type Transition struct {
	ID         int64
	InstanceID int64
	From       State // empty for the start transition
	To         State
	Trigger    Trigger
	Name       string // signal name, when Trigger is signal
	CreatedAt  time.Time
}
