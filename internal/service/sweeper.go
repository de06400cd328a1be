package service

import (
	"context"
	"errors"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/repository"
)

const sweepBatchSize = 100

// RideExpirer cancels a ride nobody accepted in time.
type RideExpirer interface {
	ExpireRide(ctx context.Context, ride *domain.Ride) (*domain.Ride, error)
}

// ExpirySweeper periodically cancels PENDING rides older than the pending TTL.
type ExpirySweeper struct {
	rideRepo repository.RideRepository
	expirer  RideExpirer
	ttl      time.Duration
	interval time.Duration
	log      logger.Logger
	now      func() time.Time
}

// NewExpirySweeper creates a new ExpirySweeper.
func NewExpirySweeper(rideRepo repository.RideRepository, expirer RideExpirer, ttl, interval time.Duration, log logger.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		rideRepo: rideRepo,
		expirer:  expirer,
		ttl:      ttl,
		interval: interval,
		log:      log.Action("expiry_sweep"),
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("sweep failed", err)
			}
		}
	}
}

// SweepOnce expires one batch of overdue rides and returns how many were cancelled.
// A ride accepted or cancelled concurrently is skipped.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)
	rides, err := s.rideRepo.ListPendingRequestedBefore(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, ride := range rides {
		_, err := s.expirer.ExpireRide(ctx, ride)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrStaleVersion), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotFound):
			s.log.Debug("ride changed before expiry", "ride_id", ride.ID)
		default:
			return expired, err
		}
	}

	if expired > 0 {
		s.log.Info("expired pending rides", "count", expired)
	}
	return expired, nil
}
