package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ride-dispatch/internal/domain/ride"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type rideResponse struct {
	RideID      string    `json:"ride_id"`
	Status      string    `json:"status"`
	Pickup      string    `json:"pickup"`
	Destination string    `json:"destination"`
	Price       string    `json:"price"`
	PassengerID string    `json:"passenger_id"`
	DriverID    string    `json:"driver_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toRideResponse(r *ride.Ride) rideResponse {
	return rideResponse{
		RideID:      r.RideID,
		Status:      r.Status.String(),
		Pickup:      r.Pickup,
		Destination: r.Destination,
		Price:       r.Price.String(),
		PassengerID: r.PassengerID,
		DriverID:    r.Driver(),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ----- Handler: GET /rides/:rideId -----

func (handler *QueryHTTPHandler) handleGetRide(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	r, err := handler.svc.GetRide(ctx, c.Param("rideId"))
	if err != nil {
		handler.writeQueryError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRideResponse(r))
}

// ----- Handler: GET /rides/:rideId/saga -----

func (handler *QueryHTTPHandler) handleGetSaga(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	view, err := handler.svc.GetSaga(ctx, c.Param("rideId"))
	if err != nil {
		handler.writeQueryError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view)
}

// ----- Handler: GET /rides?limit=&offset= -----

func (handler *QueryHTTPHandler) handleListRides(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit <= 0 || limit > maxPageSize {
		handler.writeError(c, http.StatusBadRequest, "limit must be between 1 and 500", err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		handler.writeError(c, http.StatusBadRequest, "offset must be a non-negative integer", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	rides, err := handler.svc.ListRides(ctx, limit, offset)
	if err != nil {
		handler.writeQueryError(c, err)
		return
	}

	out := make([]rideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, toRideResponse(r))
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": out, "limit": limit, "offset": offset})
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
