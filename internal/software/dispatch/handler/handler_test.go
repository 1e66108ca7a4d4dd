package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuery struct {
	rides map[string]*ride.Ride
	err   error
}

func (q *fakeQuery) GetRide(_ context.Context, rideID string) (*ride.Ride, error) {
	if q.err != nil {
		return nil, q.err
	}
	if r, ok := q.rides[rideID]; ok {
		return r, nil
	}
	return nil, ride.ErrRideNotFound
}

func (q *fakeQuery) GetSaga(_ context.Context, rideID string) (*ports.SagaView, error) {
	if _, ok := q.rides[rideID]; !ok {
		return nil, saga.ErrInstanceNotFound
	}
	return &ports.SagaView{InstanceID: 1, RideID: rideID, State: "REQUESTED"}, nil
}

func (q *fakeQuery) ListRides(_ context.Context, limit, offset int) ([]*ride.Ride, error) {
	out := []*ride.Ride{}
	for _, r := range q.rides {
		out = append(out, r)
	}
	return out, nil
}

func (q *fakeQuery) Overview(context.Context) (*ports.OverviewView, error) {
	if q.err != nil {
		return nil, q.err
	}
	return &ports.OverviewView{TotalRides: len(q.rides), ActiveRides: len(q.rides)}, nil
}

type harness struct {
	router   *gin.Engine
	operator string
	service  string
}

func newHarness(t *testing.T, q *fakeQuery, checks map[string]HealthCheck) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mgr := jwt.NewManager("secret", time.Hour)

	h := NewQueryHTTPHandler(q, logger.New("test").WithOutput(io.Discard), mgr, checks)
	r := gin.New()
	h.RegisterRoutes(r)

	operator, _, err := mgr.IssueToken("ops", jwt.RoleOperator)
	require.NoError(t, err)
	service, _, err := mgr.IssueToken("billing", jwt.RoleService)
	require.NoError(t, err)
	return &harness{router: r, operator: operator, service: service}
}

func (h *harness) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func sampleRides(t *testing.T) map[string]*ride.Ride {
	r, err := ride.NewRide("ride123", "A", "B", decimal.RequireFromString("25.50"), "p1")
	require.NoError(t, err)
	require.NoError(t, r.AssignDriver("d1"))
	return map[string]*ride.Ride{"ride123": r}
}

func TestGetRide(t *testing.T) {
	h := newHarness(t, &fakeQuery{rides: sampleRides(t)}, nil)

	w := h.get("/rides/ride123", h.service)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var body rideResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ride123", body.RideID)
	assert.Equal(t, "DRIVER_ASSIGNED", body.Status)
	assert.Equal(t, "25.5", body.Price)
	assert.Equal(t, "d1", body.DriverID)

	assert.Equal(t, http.StatusNotFound, h.get("/rides/ghost", h.operator).Code)
	assert.Equal(t, http.StatusUnauthorized, h.get("/rides/ride123", "").Code)
}

func TestGetSaga(t *testing.T) {
	h := newHarness(t, &fakeQuery{rides: sampleRides(t)}, nil)

	w := h.get("/rides/ride123/saga", h.operator)
	require.Equal(t, http.StatusOK, w.Code)
	var view ports.SagaView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "REQUESTED", view.State)

	assert.Equal(t, http.StatusNotFound, h.get("/rides/ghost/saga", h.operator).Code)
}

func TestOperatorOnlyRoutes(t *testing.T) {
	h := newHarness(t, &fakeQuery{rides: sampleRides(t)}, nil)

	assert.Equal(t, http.StatusForbidden, h.get("/overview", h.service).Code)
	assert.Equal(t, http.StatusOK, h.get("/overview", h.operator).Code)

	assert.Equal(t, http.StatusOK, h.get("/rides?limit=10", h.operator).Code)
	assert.Equal(t, http.StatusBadRequest, h.get("/rides?limit=0", h.operator).Code)
	assert.Equal(t, http.StatusBadRequest, h.get("/rides?offset=x", h.operator).Code)
}

func TestInternalErrorsAreHidden(t *testing.T) {
	h := newHarness(t, &fakeQuery{err: errors.New("connection refused")}, nil)

	w := h.get("/overview", h.operator)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	h := newHarness(t, &fakeQuery{}, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	w := h.get("/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","components":{"postgres":"ok"}}`, w.Body.String())

	h = newHarness(t, &fakeQuery{}, map[string]HealthCheck{
		"rabbitmq": func(context.Context) error { return errors.New("not connected") },
	})
	w = h.get("/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","components":{"rabbitmq":"not connected"}}`, w.Body.String())
}
