package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/repository"
	"ridedispatch/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	driverService *service.DriverService
	rideService   *service.RideService
	acceptance    *service.AcceptanceCoordinator
	driverRepo    repository.DriverRepository
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(
	driverService *service.DriverService,
	rideService *service.RideService,
	acceptance *service.AcceptanceCoordinator,
	driverRepo repository.DriverRepository,
) *DriverHandler {
	return &DriverHandler{
		driverService: driverService,
		rideService:   rideService,
		acceptance:    acceptance,
		driverRepo:    driverRepo,
	}
}

// UpdateLocationRequest is the HTTP request body for updating driver location.
type UpdateLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AcceptRideRequest is the HTTP request body for accepting a ride.
type AcceptRideRequest struct {
	Version string `json:"version"`
}

// UpdateRideStatusRequest is the HTTP request body for advancing a ride.
type UpdateRideStatusRequest struct {
	Status     string   `json:"status"`
	FromStatus string   `json:"from_status,omitempty"`
	Version    string   `json:"version,omitempty"`
	FinalPrice *float64 `json:"final_price,omitempty"`
}

// RegisterDriverRequest is the HTTP request body for driver registration.
type RegisterDriverRequest struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	VehicleTypeID string `json:"vehicle_type_id"`
	VehiclePlate  string `json:"vehicle_plate"`
}

// DriverResponse is the HTTP response for driver data.
type DriverResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Status        string `json:"status"`
	VehicleTypeID string `json:"vehicle_type_id"`
	VehiclePlate  string `json:"vehicle_plate"`
}

// PendingRideResponse is a pending ride with its distance from the driver.
type PendingRideResponse struct {
	RideResponse
	DistanceKm float64 `json:"distance_from_driver_km"`
}

func newDriverResponse(d *domain.Driver) DriverResponse {
	return DriverResponse{
		ID:            d.ID,
		Name:          d.Name,
		Phone:         d.Phone,
		Status:        string(d.Status),
		VehicleTypeID: d.VehicleTypeID,
		VehiclePlate:  d.VehiclePlate,
	}
}

// Register handles POST /v1/drivers/register
func (h *DriverHandler) Register(c *gin.Context) {
	var req RegisterDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Name == "" || req.Phone == "" {
		badRequest(c, "name and phone are required")
		return
	}

	driver := &domain.Driver{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Phone:         req.Phone,
		Status:        domain.DriverStatusOffline,
		VehicleTypeID: req.VehicleTypeID,
		VehiclePlate:  req.VehiclePlate,
	}
	if err := h.driverRepo.Create(c.Request.Context(), driver); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newDriverResponse(driver))
}

// Get handles GET /v1/drivers/:id
func (h *DriverHandler) Get(c *gin.Context) {
	driver, err := h.driverRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newDriverResponse(driver))
}

// UpdateLocation handles POST /v1/drivers/:id/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	err := h.driverService.UpdateLocation(c.Request.Context(), service.UpdateLocationRequest{
		DriverID: c.Param("id"),
		Lat:      req.Lat,
		Lng:      req.Lng,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// GoOnline handles POST /v1/drivers/:id/online
func (h *DriverHandler) GoOnline(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	driver, err := h.driverService.GoOnline(c.Request.Context(), service.UpdateLocationRequest{
		DriverID: c.Param("id"),
		Lat:      req.Lat,
		Lng:      req.Lng,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newDriverResponse(driver))
}

// GoOffline handles POST /v1/drivers/:id/offline
func (h *DriverHandler) GoOffline(c *gin.Context) {
	driver, err := h.driverService.GoOffline(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newDriverResponse(driver))
}

// PendingRides handles GET /v1/drivers/:id/rides/pending?lat=&lng=&radius_km=
func (h *DriverHandler) PendingRides(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		badRequest(c, "lat is required")
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		badRequest(c, "lng is required")
		return
	}
	var radius float64
	if raw := c.Query("radius_km"); raw != "" {
		if radius, err = strconv.ParseFloat(raw, 64); err != nil {
			badRequest(c, "invalid radius_km")
			return
		}
	}

	rides, err := h.rideService.ListPendingNearby(c.Request.Context(), service.PendingNearbyRequest{
		DriverID: c.Param("id"),
		Lat:      lat,
		Lng:      lng,
		RadiusKm: radius,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]PendingRideResponse, 0, len(rides))
	for _, p := range rides {
		response = append(response, PendingRideResponse{
			RideResponse: newRideResponse(p.Ride),
			DistanceKm:   p.DistanceKm,
		})
	}
	respondJSON(c, http.StatusOK, response)
}

// AcceptRide handles POST /v1/drivers/:id/rides/:rideId/accept
func (h *DriverHandler) AcceptRide(c *gin.Context) {
	var req AcceptRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ride, err := h.acceptance.AcceptRide(c.Request.Context(), service.AcceptRideRequest{
		DriverID: c.Param("id"),
		RideID:   c.Param("rideId"),
		Version:  req.Version,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}

// UpdateRideStatus handles POST /v1/drivers/:id/rides/:rideId/status
func (h *DriverHandler) UpdateRideStatus(c *gin.Context) {
	var req UpdateRideStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.UpdateRideStatus(c.Request.Context(), service.UpdateStatusRequest{
		DriverID:   c.Param("id"),
		RideID:     c.Param("rideId"),
		Status:     domain.RideStatus(req.Status),
		FromStatus: domain.RideStatus(req.FromStatus),
		Version:    req.Version,
		FinalPrice: req.FinalPrice,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}
