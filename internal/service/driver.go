package service

import (
	"context"
	"fmt"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/redis"
	"ridedispatch/internal/repository"
)

// DriverService handles driver presence and location.
type DriverService struct {
	locations  redis.LocationStoreInterface
	cache      redis.DriverCacheInterface
	driverRepo repository.DriverRepository
	rideRepo   repository.RideRepository
	log        logger.Logger
}

// NewDriverService creates a new DriverService. cache may be nil.
func NewDriverService(
	locations redis.LocationStoreInterface,
	cache redis.DriverCacheInterface,
	driverRepo repository.DriverRepository,
	rideRepo repository.RideRepository,
	log logger.Logger,
) *DriverService {
	return &DriverService{
		locations:  locations,
		cache:      cache,
		driverRepo: driverRepo,
		rideRepo:   rideRepo,
		log:        log.Action("driver"),
	}
}

// UpdateLocationRequest contains the parameters for updating driver location.
type UpdateLocationRequest struct {
	DriverID string
	Lat      float64
	Lng      float64
}

// UpdateLocation records the driver's position and refreshes their online TTL.
func (s *DriverService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) error {
	if err := validateLocation(req); err != nil {
		return err
	}
	if _, err := s.driverRepo.GetByID(ctx, req.DriverID); err != nil {
		return err
	}
	return s.locations.Upsert(ctx, req.DriverID, req.Lat, req.Lng)
}

// GoOnline marks the driver ONLINE and indexes their position. A driver
// already on a trip keeps ON_TRIP.
func (s *DriverService) GoOnline(ctx context.Context, req UpdateLocationRequest) (*domain.Driver, error) {
	if err := validateLocation(req); err != nil {
		return nil, err
	}

	driver, err := s.driverRepo.GetByID(ctx, req.DriverID)
	if err != nil {
		return nil, err
	}

	if driver.Status != domain.DriverStatusOnTrip && driver.Status != domain.DriverStatusOnline {
		if err := s.driverRepo.UpdateStatus(ctx, driver.ID, domain.DriverStatusOnline); err != nil {
			return nil, err
		}
		driver.Status = domain.DriverStatusOnline
		s.invalidate(ctx, driver.ID)
	}

	if err := s.locations.Upsert(ctx, driver.ID, req.Lat, req.Lng); err != nil {
		return nil, err
	}

	s.log.Info("driver online", "driver_id", driver.ID)
	return driver, nil
}

// GoOffline removes the driver from the location index and marks them
// OFFLINE. Refused while the driver has an active ride.
func (s *DriverService) GoOffline(ctx context.Context, driverID string) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	driver, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	active, err := s.rideRepo.GetActiveByDriverID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: driver has active ride %s", ErrPrerequisite, active.ID)
	}

	if err := s.locations.Remove(ctx, driverID); err != nil {
		return nil, err
	}
	if err := s.driverRepo.UpdateStatus(ctx, driverID, domain.DriverStatusOffline); err != nil {
		return nil, err
	}
	driver.Status = domain.DriverStatusOffline
	s.invalidate(ctx, driverID)

	s.log.Info("driver offline", "driver_id", driverID)
	return driver, nil
}

func (s *DriverService) invalidate(ctx context.Context, driverID string) {
	if s.cache != nil {
		_ = s.cache.InvalidateDriver(ctx, driverID)
	}
}

func validateLocation(req UpdateLocationRequest) error {
	if req.DriverID == "" {
		return ErrInvalidDriverID
	}
	if !geo.ValidLatitude(req.Lat) || !geo.ValidLongitude(req.Lng) {
		return ErrInvalidLocation
	}
	return nil
}
