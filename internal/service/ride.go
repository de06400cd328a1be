package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"

	"ridedispatch/internal/config"
	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/redis"
	"ridedispatch/internal/repository"
)

// Dispatcher offers a newly created ride to nearby drivers.
type Dispatcher interface {
	Dispatch(ctx context.Context, ride *domain.Ride) (*DispatchResult, error)
}

// Ensure DispatchEngine implements Dispatcher.
var _ Dispatcher = (*DispatchEngine)(nil)

// RideService handles ride creation, reads and the lifecycle after acceptance.
type RideService struct {
	rideRepo      repository.RideRepository
	riderRepo     repository.RiderRepository
	driverRepo    repository.DriverRepository
	tx            repository.Transactor
	pending       redis.PendingIndexInterface
	cache         redis.DriverCacheInterface
	dispatcher    Dispatcher
	notifications *NotificationService
	cfg           config.DispatchConfig
	log           logger.Logger
	now           func() time.Time

	dispatches sync.WaitGroup
}

// NewRideService creates a new RideService. cache may be nil.
func NewRideService(
	rideRepo repository.RideRepository,
	riderRepo repository.RiderRepository,
	driverRepo repository.DriverRepository,
	tx repository.Transactor,
	pending redis.PendingIndexInterface,
	cache redis.DriverCacheInterface,
	dispatcher Dispatcher,
	notifications *NotificationService,
	cfg config.DispatchConfig,
	log logger.Logger,
) *RideService {
	return &RideService{
		rideRepo:      rideRepo,
		riderRepo:     riderRepo,
		driverRepo:    driverRepo,
		tx:            tx,
		pending:       pending,
		cache:         cache,
		dispatcher:    dispatcher,
		notifications: notifications,
		cfg:           cfg,
		log:           log.Action("ride"),
		now:           time.Now,
	}
}

// CreateRideRequest contains the parameters for creating a ride. Price,
// duration and distance are computed upstream and taken as given.
type CreateRideRequest struct {
	RiderID           string
	Pickup            domain.Location
	Destination       domain.Location
	VehicleTypeID     string
	EstimatedPrice    float64
	EstimatedDuration time.Duration
	DistanceKm        float64
}

// CreateRide persists a PENDING ride and dispatches it in the background.
func (s *RideService) CreateRide(ctx context.Context, req CreateRideRequest) (*domain.Ride, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	rider, err := s.riderRepo.GetByID(ctx, req.RiderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ride := &domain.Ride{
		ID:                uuid.New().String(),
		RiderID:           rider.ID,
		RiderName:         rider.Name,
		RiderPhone:        rider.Phone,
		VehicleTypeID:     req.VehicleTypeID,
		Pickup:            req.Pickup,
		Destination:       req.Destination,
		DistanceKm:        req.DistanceKm,
		EstimatedDuration: req.EstimatedDuration,
		EstimatedPrice:    req.EstimatedPrice,
		Status:            domain.RideStatusPending,
		RequestedAt:       now,
	}
	ride.Touch(now)

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, err
	}
	s.log.Info("ride created", "ride_id", ride.ID, "rider_id", ride.RiderID)

	s.dispatchAsync(ctx, ride)
	return ride, nil
}

// dispatchAsync runs dispatch on a copy of the ride, detached from the
// caller's cancellation and bounded by the dispatch timeout.
func (s *RideService) dispatchAsync(ctx context.Context, ride *domain.Ride) {
	if s.dispatcher == nil {
		return
	}
	snapshot := *ride
	txn := newrelic.FromContext(ctx).NewGoroutine()

	s.dispatches.Add(1)
	go func() {
		defer s.dispatches.Done()

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DispatchTimeout)
		defer cancel()
		dctx = newrelic.NewContext(dctx, txn)

		if _, err := s.dispatcher.Dispatch(dctx, &snapshot); err != nil {
			s.log.Error("dispatch failed", err, "ride_id", snapshot.ID)
		}
	}()
}

// Wait blocks until every in-flight background dispatch has finished.
func (s *RideService) Wait() {
	s.dispatches.Wait()
}

// GetRide retrieves a ride by ID.
func (s *RideService) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	return s.rideRepo.GetByID(ctx, rideID)
}

// PendingNearbyRequest contains the parameters for a driver's pending-ride query.
type PendingNearbyRequest struct {
	DriverID string
	Lat      float64
	Lng      float64
	// RadiusKm of 0 uses the configured search radius.
	RadiusKm float64
}

// PendingRide is a pending ride with its pickup distance from the driver.
type PendingRide struct {
	Ride       *domain.Ride
	DistanceKm float64
}

// ListPendingNearby returns pending rides whose pickup is within the radius
// of the driver and whose vehicle type the driver serves, nearest first.
// Index entries whose ride is gone or no longer PENDING are pruned.
func (s *RideService) ListPendingNearby(ctx context.Context, req PendingNearbyRequest) ([]PendingRide, error) {
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if !geo.ValidLatitude(req.Lat) || !geo.ValidLongitude(req.Lng) {
		return nil, ErrInvalidLocation
	}
	radius := req.RadiusKm
	if radius == 0 {
		radius = s.cfg.SearchRadiusKm
	}
	if radius < 0 {
		return nil, ErrInvalidRadius
	}

	driver, err := s.driverRepo.GetByID(ctx, req.DriverID)
	if err != nil {
		return nil, err
	}

	ids, err := s.pending.Members(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []PendingRide{}, nil
	}

	rides, err := s.rideRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	live := make(map[string]bool, len(rides))
	result := make([]PendingRide, 0, len(rides))
	for _, ride := range rides {
		if ride.Status != domain.RideStatusPending {
			continue
		}
		live[ride.ID] = true

		if !driver.ServesVehicleType(ride.VehicleTypeID) {
			continue
		}
		d := geo.DistanceKm(req.Lat, req.Lng, ride.Pickup.Lat, ride.Pickup.Lng)
		if !geo.InRadius(d, radius) {
			continue
		}
		result = append(result, PendingRide{Ride: ride, DistanceKm: d})
	}

	for _, id := range ids {
		if !live[id] {
			if err := s.pending.Remove(ctx, id); err != nil {
				s.log.Warn("pending index prune failed", "ride_id", id, "error", err.Error())
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DistanceKm == result[j].DistanceKm {
			return result[i].Ride.ID < result[j].Ride.ID
		}
		return result[i].DistanceKm < result[j].DistanceKm
	})
	return result, nil
}

func validateCreateRequest(req CreateRideRequest) error {
	if req.RiderID == "" {
		return ErrInvalidRiderID
	}
	if !geo.ValidLatitude(req.Pickup.Lat) || !geo.ValidLongitude(req.Pickup.Lng) {
		return ErrInvalidPickupLocation
	}
	if !geo.ValidLatitude(req.Destination.Lat) || !geo.ValidLongitude(req.Destination.Lng) {
		return ErrInvalidDestinationLocation
	}
	if req.EstimatedPrice < 0 {
		return ErrInvalidPrice
	}
	return nil
}
