package service

import (
	"context"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"

	"ridedispatch/internal/config"
	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/redis"
	"ridedispatch/internal/repository"
)

// DispatchEngine broadcasts a new ride to the drivers who could take it.
type DispatchEngine struct {
	locations     redis.LocationStoreInterface
	pending       redis.PendingIndexInterface
	profiles      *driverProfiles
	notifications *NotificationService
	cfg           config.DispatchConfig
	log           logger.Logger
}

// NewDispatchEngine creates a new DispatchEngine. cache may be nil.
func NewDispatchEngine(
	locations redis.LocationStoreInterface,
	pending redis.PendingIndexInterface,
	cache redis.DriverCacheInterface,
	driverRepo repository.DriverRepository,
	notifications *NotificationService,
	cfg config.DispatchConfig,
	log logger.Logger,
) *DispatchEngine {
	return &DispatchEngine{
		locations:     locations,
		pending:       pending,
		profiles:      &driverProfiles{cache: cache, repo: driverRepo},
		notifications: notifications,
		cfg:           cfg,
		log:           log.Action("dispatch"),
	}
}

// DispatchResult lists the drivers a ride was offered to, nearest first.
type DispatchResult struct {
	Candidates []geo.Candidate
}

// Dispatch indexes the ride as pending, finds candidate drivers around the
// pickup and offers it to them. The ride is indexed before the candidate
// lookup so polling drivers can find it even when the lookup fails; in that
// case the offer still goes to the drivers:online channel and the lookup
// error is returned. No candidates is not an error.
func (e *DispatchEngine) Dispatch(ctx context.Context, ride *domain.Ride) (*DispatchResult, error) {
	defer newrelic.FromContext(ctx).StartSegment("dispatch").End()

	if err := e.pending.Add(ctx, ride.ID, e.cfg.PendingRideTTL); err != nil {
		return nil, err
	}

	candidates, err := e.findCandidates(ctx, ride)
	if err != nil {
		e.notifications.NotifyNewRideRequest(ctx, ride, nil)
		return nil, fmt.Errorf("find candidates: %w", err)
	}

	driverIDs := make([]string, len(candidates))
	for i, c := range candidates {
		driverIDs[i] = c.DriverID
	}
	e.notifications.NotifyNewRideRequest(ctx, ride, driverIDs)

	e.log.Info("ride dispatched", "ride_id", ride.ID, "candidates", len(candidates))
	return &DispatchResult{Candidates: candidates}, nil
}

func (e *DispatchEngine) findCandidates(ctx context.Context, ride *domain.Ride) ([]geo.Candidate, error) {
	nearby, err := e.locations.Within(ctx, ride.Pickup.Lat, ride.Pickup.Lng, e.cfg.BroadcastRadiusKm)
	if err != nil {
		return nil, err
	}
	geo.SortByDistance(nearby)
	return e.filterEligible(ctx, ride, nearby)
}

// filterEligible keeps drivers whose profile is ONLINE and serves the ride's
// vehicle type. Order is preserved.
func (e *DispatchEngine) filterEligible(ctx context.Context, ride *domain.Ride, nearby []geo.Candidate) ([]geo.Candidate, error) {
	if len(nearby) == 0 {
		return nil, nil
	}

	ids := make([]string, len(nearby))
	for i, c := range nearby {
		ids[i] = c.DriverID
	}
	drivers, err := e.profiles.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	eligible := make([]geo.Candidate, 0, len(nearby))
	for _, c := range nearby {
		d, ok := drivers[c.DriverID]
		if !ok || d.Status != domain.DriverStatusOnline {
			continue
		}
		if !d.ServesVehicleType(ride.VehicleTypeID) {
			continue
		}
		eligible = append(eligible, c)
	}
	return eligible, nil
}

// driverProfiles reads driver profiles cache first, filling the cache from
// the repository on a miss. Cache errors degrade to repository reads.
type driverProfiles struct {
	cache redis.DriverCacheInterface
	repo  repository.DriverRepository
}

func (p *driverProfiles) load(ctx context.Context, ids []string) (map[string]*domain.Driver, error) {
	found := make(map[string]*domain.Driver, len(ids))
	missing := ids

	if p.cache != nil {
		cached, miss, err := p.cache.GetDriversBatch(ctx, ids)
		if err == nil {
			found = cached
			missing = miss
		}
	}
	if len(missing) == 0 {
		return found, nil
	}

	drivers, err := p.repo.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, d := range drivers {
		found[d.ID] = d
	}
	if p.cache != nil && len(drivers) > 0 {
		_ = p.cache.SetDriversBatch(ctx, drivers)
	}
	return found, nil
}

func (p *driverProfiles) invalidate(ctx context.Context, driverID string) {
	if p.cache != nil {
		_ = p.cache.InvalidateDriver(ctx, driverID)
	}
}
