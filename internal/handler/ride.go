package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// LocationBody is a coordinate pair with an optional address.
type LocationBody struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

func (l LocationBody) toDomain() domain.Location {
	return domain.Location{Lat: l.Lat, Lng: l.Lng, Address: l.Address}
}

// CreateRideRequest is the HTTP request body for creating a ride.
type CreateRideRequest struct {
	RiderID                  string       `json:"rider_id"`
	Pickup                   LocationBody `json:"pickup"`
	Destination              LocationBody `json:"destination"`
	VehicleTypeID            string       `json:"vehicle_type_id,omitempty"`
	EstimatedPrice           float64      `json:"estimated_price"`
	EstimatedDurationSeconds int64        `json:"estimated_duration_seconds"`
	DistanceKm               float64      `json:"distance_km"`
}

// CancelRideRequest is the HTTP request body for cancelling a ride.
type CancelRideRequest struct {
	RiderID string `json:"rider_id"`
	Reason  string `json:"reason,omitempty"`
	Version string `json:"version,omitempty"`
}

// DriverSnapshot is the driver as recorded on the ride at acceptance.
type DriverSnapshot struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	VehiclePlate string `json:"vehicle_plate"`
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID                       string          `json:"id"`
	RiderID                  string          `json:"rider_id"`
	RiderName                string          `json:"rider_name"`
	RiderPhone               string          `json:"rider_phone"`
	Driver                   *DriverSnapshot `json:"driver,omitempty"`
	VehicleTypeID            string          `json:"vehicle_type_id,omitempty"`
	Pickup                   LocationBody    `json:"pickup"`
	Destination              LocationBody    `json:"destination"`
	DistanceKm               float64         `json:"distance_km"`
	EstimatedDurationSeconds int64           `json:"estimated_duration_seconds"`
	EstimatedPrice           float64         `json:"estimated_price"`
	FinalPrice               *float64        `json:"final_price,omitempty"`
	Status                   string          `json:"status"`
	CancelReason             string          `json:"cancel_reason,omitempty"`
	CancelledBy              string          `json:"cancelled_by,omitempty"`
	RequestedAt              *time.Time      `json:"requested_at,omitempty"`
	AcceptedAt               *time.Time      `json:"accepted_at,omitempty"`
	ArrivingAt               *time.Time      `json:"arriving_at,omitempty"`
	ArrivedAt                *time.Time      `json:"arrived_at,omitempty"`
	StartedAt                *time.Time      `json:"started_at,omitempty"`
	CompletedAt              *time.Time      `json:"completed_at,omitempty"`
	CancelledAt              *time.Time      `json:"cancelled_at,omitempty"`
	Version                  domain.Version  `json:"version"`
}

func newRideResponse(r *domain.Ride) RideResponse {
	resp := RideResponse{
		ID:                       r.ID,
		RiderID:                  r.RiderID,
		RiderName:                r.RiderName,
		RiderPhone:               r.RiderPhone,
		VehicleTypeID:            r.VehicleTypeID,
		Pickup:                   LocationBody{Lat: r.Pickup.Lat, Lng: r.Pickup.Lng, Address: r.Pickup.Address},
		Destination:              LocationBody{Lat: r.Destination.Lat, Lng: r.Destination.Lng, Address: r.Destination.Address},
		DistanceKm:               r.DistanceKm,
		EstimatedDurationSeconds: int64(r.EstimatedDuration / time.Second),
		EstimatedPrice:           r.EstimatedPrice,
		FinalPrice:               r.FinalPrice,
		Status:                   string(r.Status),
		CancelReason:             r.CancelReason,
		CancelledBy:              string(r.CancelledBy),
		RequestedAt:              timePtr(r.RequestedAt),
		AcceptedAt:               timePtr(r.AcceptedAt),
		ArrivingAt:               timePtr(r.ArrivingAt),
		ArrivedAt:                timePtr(r.ArrivedAt),
		StartedAt:                timePtr(r.StartedAt),
		CompletedAt:              timePtr(r.CompletedAt),
		CancelledAt:              timePtr(r.CancelledAt),
		Version:                  r.Version(),
	}
	if r.HasDriver() {
		resp.Driver = &DriverSnapshot{
			ID:           r.DriverID,
			Name:         r.DriverName,
			Phone:        r.DriverPhone,
			VehiclePlate: r.VehiclePlate,
		}
	}
	return resp
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.CreateRide(c.Request.Context(), service.CreateRideRequest{
		RiderID:           req.RiderID,
		Pickup:            req.Pickup.toDomain(),
		Destination:       req.Destination.toDomain(),
		VehicleTypeID:     req.VehicleTypeID,
		EstimatedPrice:    req.EstimatedPrice,
		EstimatedDuration: time.Duration(req.EstimatedDurationSeconds) * time.Second,
		DistanceKm:        req.DistanceKm,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newRideResponse(ride))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rideService.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	var req CancelRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.CancelRide(c.Request.Context(), service.CancelRideRequest{
		RiderID: req.RiderID,
		RideID:  c.Param("id"),
		Reason:  req.Reason,
		Version: req.Version,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}
