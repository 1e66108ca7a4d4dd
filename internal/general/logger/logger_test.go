package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var out []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		out = append(out, e)
	}
	return out
}

func TestContextFieldsAreEmitted(t *testing.T) {
	var buf bytes.Buffer
	log := New("dispatch-service").WithOutput(&buf)

	ctx := WithTraceID(WithRideID(WithRequestID(context.Background(), "m-1"), "ride-1"), "trace-1")
	log.Warn(ctx, "driver_assigned_ignored", " stale ", map[string]any{"status": "STARTED"})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "WARN", e.Level)
	assert.Equal(t, "dispatch-service", e.Service)
	assert.Equal(t, "stale", e.Message)
	assert.Equal(t, "m-1", e.RequestID)
	assert.Equal(t, "ride-1", e.RideID)
	assert.Equal(t, "trace-1", e.TraceID)
	assert.Nil(t, e.Error)
}

func TestErrorCarriesMessageAndStack(t *testing.T) {
	var buf bytes.Buffer
	log := New("svc").WithOutput(&buf)

	log.Error(context.Background(), "", "failed", errors.New("boom"), nil)

	e := decodeLines(t, &buf)[0]
	assert.Equal(t, "ERROR", e.Level)
	assert.Equal(t, "unspecified", e.Action)
	require.NotNil(t, e.Error)
	assert.Equal(t, "boom", e.Error.Msg)
	assert.NotEmpty(t, e.Error.Stack)
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New("svc").WithOutput(&buf).WithLevel(ParseLevel("warn"))

	log.Debug(context.Background(), "a", "dropped", nil)
	log.Info(context.Background(), "b", "dropped", nil)
	log.Warn(context.Background(), "c", "kept", nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "c", entries[0].Action)
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestEmptyValuesDoNotOverrideContext(t *testing.T) {
	ctx := WithRideID(context.Background(), "r1")
	assert.Equal(t, "r1", RideID(WithRideID(ctx, "  ")))
}
