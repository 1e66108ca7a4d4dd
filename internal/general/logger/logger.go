package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// ----- Public wire types -----

// ErrorObject is emitted only for error logs.
type ErrorObject struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack,omitempty"`
}

// LogEntry is the single-line JSON format written to the output.
type LogEntry struct {
	Timestamp string       `json:"timestamp"`            // RFC 3339, UTC
	Level     string       `json:"level"`                // DEBUG | INFO | WARN | ERROR
	Service   string       `json:"service"`              // e.g. dispatch-service
	Action    string       `json:"action"`               // event name, e.g. driver_assigned_ignored
	Message   string       `json:"message"`              // human-readable description
	Hostname  string       `json:"hostname"`             // service hostname
	RequestID string       `json:"request_id,omitempty"` // inbound message id
	RideID    string       `json:"ride_id,omitempty"`    // ride correlation id
	TraceID   string       `json:"trace_id,omitempty"`   // propagated envelope traceId
	Details   any          `json:"details,omitempty"`
	Error     *ErrorObject `json:"error,omitempty"`
}

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// ParseLevel maps a config value to a Level; unknown values fall back to INFO.
func ParseLevel(s string) Level {
	for lvl, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return lvl
		}
	}
	return LevelInfo
}

// ----- Logger -----

type Logger struct {
	service  string
	hostname string
	min      Level
	out      io.Writer
	mu       sync.Mutex
}

// New creates a structured logger for the given service writing to stdout at DEBUG.
func New(service string) *Logger {
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}

	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}

	return &Logger{service: service, hostname: hn, min: LevelDebug, out: os.Stdout}
}

// WithLevel drops entries below min.
func (l *Logger) WithLevel(min Level) *Logger {
	l.min = min
	return l
}

// WithOutput redirects the output; tests use a buffer.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	if w != nil {
		l.out = w
	}
	return l
}

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.log(ctx, LevelDebug, action, msg, nil, details)
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.log(ctx, LevelInfo, action, msg, nil, details)
}

// Warn writes a WARN line. Used for stale or duplicate input that is dropped on purpose.
func (l *Logger) Warn(ctx context.Context, action, msg string, details any) {
	l.log(ctx, LevelWarn, action, msg, nil, details)
}

// Error writes an ERROR line and attaches an error stack trace.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	l.log(ctx, LevelError, action, msg, &ErrorObject{
		Msg:   strings.TrimSpace(err.Error()),
		Stack: string(debug.Stack()),
	}, details)
}

func (l *Logger) log(ctx context.Context, lvl Level, action, msg string, errObj *ErrorObject, details any) {
	if lvl < l.min {
		return
	}
	l.emit(LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     levelNames[lvl],
		Service:   l.service,
		Action:    safeAction(action),
		Message:   strings.TrimSpace(msg),
		Hostname:  l.hostname,
		RequestID: RequestID(ctx),
		RideID:    RideID(ctx),
		TraceID:   TraceID(ctx),
		Details:   details,
		Error:     errObj,
	})
}

// emit marshals and writes a single JSON line.
func (l *Logger) emit(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := json.Marshal(e)
	if err != nil {
		// retry once without Details (common source of marshal errors)
		e.Details = nil
		b, err = json.Marshal(e)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "log marshal failed: %v\n", err)
		return
	}
	b = append(b, '\n')
	_, _ = l.out.Write(b)
}

// ------------ Context helpers -------------

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "dispatch_request_id"
	ctxKeyRideID    ctxKey = "dispatch_ride_id"
	ctxKeyTraceID   ctxKey = "dispatch_trace_id"
)

// WithRequestID returns a new context carrying request_id.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	return withValue(ctx, ctxKeyRequestID, reqID)
}

// WithRideID returns a new context carrying ride_id.
func WithRideID(ctx context.Context, rideID string) context.Context {
	return withValue(ctx, ctxKeyRideID, rideID)
}

// WithTraceID returns a new context carrying the propagated trace id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withValue(ctx, ctxKeyTraceID, traceID)
}

// RequestID extracts request_id from ctx (if any).
func RequestID(ctx context.Context) string { return stringValue(ctx, ctxKeyRequestID) }

// RideID extracts ride_id from ctx (if any).
func RideID(ctx context.Context) string { return stringValue(ctx, ctxKeyRideID) }

// TraceID extracts the trace id from ctx (if any).
func TraceID(ctx context.Context) string { return stringValue(ctx, ctxKeyTraceID) }

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if strings.TrimSpace(v) == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

func safeAction(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return "unspecified"
	}
	return a
}
