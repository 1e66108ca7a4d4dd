package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// QueryHTTPHandler adapts HTTP requests to the QueryService.
type QueryHTTPHandler struct {
	svc    ports.QueryService
	logger *logger.Logger
	auth   *jwt.Manager
	checks map[string]HealthCheck
}

// NewQueryHTTPHandler wires an HTTP handler around the QueryService. checks may be nil.
func NewQueryHTTPHandler(svc ports.QueryService, logger *logger.Logger, auth *jwt.Manager, checks map[string]HealthCheck) *QueryHTTPHandler {
	return &QueryHTTPHandler{svc: svc, logger: logger, auth: auth, checks: checks}
}

// RegisterRoutes mounts the query endpoints.
func (handler *QueryHTTPHandler) RegisterRoutes(r gin.IRouter) {
	r.Use(handler.withReqID)
	r.GET("/health", handler.handleHealth)

	readers := jwt.GinAuth(handler.auth, jwt.RoleOperator, jwt.RoleService)
	operators := jwt.GinAuth(handler.auth, jwt.RoleOperator)

	r.GET("/overview", operators, handler.handleOverview)
	r.GET("/rides", operators, handler.handleListRides)
	r.GET("/rides/:rideId", readers, handler.handleGetRide)
	r.GET("/rides/:rideId/saga", readers, handler.handleGetSaga)
}

// ----- general helpers -----

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func (handler *QueryHTTPHandler) writeError(c *gin.Context, status int, msg string, err error) {
	if status >= http.StatusInternalServerError {
		handler.logger.Error(c.Request.Context(), "http_internal_error", msg, err, map[string]any{"path": c.FullPath()})
	}
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeQueryError maps domain errors onto status codes.
func (handler *QueryHTTPHandler) writeQueryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrRideNotFound), errors.Is(err, saga.ErrInstanceNotFound):
		handler.writeError(c, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, saga.ErrEmptyCorrelation):
		handler.writeError(c, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		handler.writeError(c, http.StatusGatewayTimeout, "request timed out", err)
	default:
		handler.writeError(c, http.StatusInternalServerError, "internal error", err)
	}
}

// withReqID takes X-Request-ID or generates one and puts it in the request context.
func (handler *QueryHTTPHandler) withReqID(c *gin.Context) {
	reqID := c.GetHeader("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = uuid.NewString()
	}
	c.Header("X-Request-ID", reqID)
	c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), reqID))
	c.Next()
}
