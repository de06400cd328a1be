package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"ridedispatch/internal/config"
	"ridedispatch/internal/domain"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/redis"
	"ridedispatch/internal/repository"
)

// AcceptanceCoordinator resolves the race between drivers claiming the same
// ride. At most one acceptance per ride can commit.
type AcceptanceCoordinator struct {
	rideRepo      repository.RideRepository
	driverRepo    repository.DriverRepository
	tx            repository.Transactor
	locks         redis.LockStoreInterface
	pending       redis.PendingIndexInterface
	profiles      *driverProfiles
	notifications *NotificationService
	lockTTL       time.Duration
	log           logger.Logger
	now           func() time.Time
}

// NewAcceptanceCoordinator creates a new AcceptanceCoordinator. cache may be nil.
func NewAcceptanceCoordinator(
	rideRepo repository.RideRepository,
	driverRepo repository.DriverRepository,
	tx repository.Transactor,
	locks redis.LockStoreInterface,
	pending redis.PendingIndexInterface,
	cache redis.DriverCacheInterface,
	notifications *NotificationService,
	cfg config.DispatchConfig,
	log logger.Logger,
) *AcceptanceCoordinator {
	return &AcceptanceCoordinator{
		rideRepo:      rideRepo,
		driverRepo:    driverRepo,
		tx:            tx,
		locks:         locks,
		pending:       pending,
		profiles:      &driverProfiles{cache: cache, repo: driverRepo},
		notifications: notifications,
		lockTTL:       cfg.RideLockTTL,
		log:           log.Action("accept"),
		now:           time.Now,
	}
}

// AcceptRideRequest contains the parameters for a driver claiming a ride.
type AcceptRideRequest struct {
	DriverID string
	RideID   string
	// Version is the token the driver read the ride at.
	Version string
}

// AcceptRide assigns the ride to the driver if the ride is still pending at
// the version the driver saw and nobody else is claiming it right now.
func (c *AcceptanceCoordinator) AcceptRide(ctx context.Context, req AcceptRideRequest) (*domain.Ride, error) {
	defer newrelic.FromContext(ctx).StartSegment("accept_ride").End()

	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if req.RideID == "" {
		return nil, ErrInvalidRideID
	}
	presented, err := domain.ParseVersion(req.Version)
	if err != nil {
		return nil, err
	}

	driver, err := c.driverRepo.GetByID(ctx, req.DriverID)
	if err != nil {
		return nil, err
	}

	active, err := c.rideRepo.GetActiveByDriverID(ctx, req.DriverID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: driver already on ride %s", ErrPrerequisite, active.ID)
	}

	lockKey := redis.RideLockKey(req.RideID)
	acquired, err := c.locks.TryAcquire(ctx, lockKey, req.DriverID, c.lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrConflict
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Release must run even when the request context is already done.
			if _, err := c.locks.Release(context.WithoutCancel(ctx), lockKey, req.DriverID); err != nil {
				c.log.Warn("lock release failed", "ride_id", req.RideID, "error", err.Error())
			}
		})
	}
	defer release()

	ride, err := c.rideRepo.GetByID(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if ride.HasDriver() {
		return nil, ErrConflict
	}

	expected := ride.Version()
	if presented != expected {
		return nil, fmt.Errorf("%w: have %s, current %s", ErrStaleVersion, presented, expected)
	}
	if ride.Status != domain.RideStatusPending {
		return nil, ErrConflict
	}

	if err := domain.ApplyTransition(ride, domain.TransitionRequest{
		From:   domain.RideStatusPending,
		To:     domain.RideStatusAccepted,
		Actor:  domain.RoleSystem,
		At:     c.now(),
		Driver: driver,
	}); err != nil {
		return nil, err
	}

	err = c.tx.WithinTx(ctx, func(rides repository.RideRepository, drivers repository.DriverRepository) error {
		if err := rides.Update(ctx, ride, expected); err != nil {
			return err
		}
		return drivers.UpdateStatus(ctx, driver.ID, domain.DriverStatusOnTrip)
	})
	if err != nil {
		return nil, mapCommitError(err)
	}

	if err := c.pending.Remove(ctx, ride.ID); err != nil {
		c.log.Warn("pending index remove failed", "ride_id", ride.ID, "error", err.Error())
	}
	c.profiles.invalidate(ctx, driver.ID)
	release()

	c.log.Info("ride accepted", "ride_id", ride.ID, "driver_id", driver.ID)
	c.notifications.NotifyRideAccepted(ctx, ride)
	return ride, nil
}

// mapCommitError translates repository write failures into service errors.
func mapCommitError(err error) error {
	switch {
	case errors.Is(err, repository.ErrVersionMismatch):
		return fmt.Errorf("%w: %w", ErrStaleVersion, err)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: driver already has an active ride", ErrPrerequisite)
	default:
		return err
	}
}
