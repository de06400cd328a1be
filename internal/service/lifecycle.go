package service

import (
	"context"
	"fmt"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/repository"
)

// ExpiredReason is recorded on rides cancelled because no driver accepted in time.
const ExpiredReason = "no driver accepted"

// UpdateStatusRequest contains the parameters for a driver advancing a ride.
type UpdateStatusRequest struct {
	DriverID string
	RideID   string
	Status   domain.RideStatus
	// FromStatus, when set, must equal the persisted status.
	FromStatus domain.RideStatus
	// Version, when set, must equal the current token.
	Version string
	// FinalPrice applies to COMPLETED only; nil uses the estimate.
	FinalPrice *float64
}

// UpdateRideStatus moves a ride along its lifecycle on behalf of its driver.
func (s *RideService) UpdateRideStatus(ctx context.Context, req UpdateStatusRequest) (*domain.Ride, error) {
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if req.RideID == "" {
		return nil, ErrInvalidRideID
	}
	if !req.Status.IsValid() || (req.FromStatus != "" && !req.FromStatus.IsValid()) {
		return nil, ErrInvalidStatus
	}
	if req.FinalPrice != nil && *req.FinalPrice < 0 {
		return nil, ErrInvalidPrice
	}

	ride, err := s.rideRepo.GetByID(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != req.DriverID {
		return nil, fmt.Errorf("%w: driver not assigned to ride", ErrPrerequisite)
	}
	if err := checkVersion(ride, req.Version); err != nil {
		return nil, err
	}

	from := req.FromStatus
	if from == "" {
		from = ride.Status
	}

	expected := ride.Version()
	if err := domain.ApplyTransition(ride, domain.TransitionRequest{
		From:       from,
		To:         req.Status,
		Actor:      domain.RoleDriver,
		At:         s.now(),
		FinalPrice: req.FinalPrice,
	}); err != nil {
		return nil, err
	}

	completed := ride.Status == domain.RideStatusCompleted
	err = s.tx.WithinTx(ctx, func(rides repository.RideRepository, drivers repository.DriverRepository) error {
		if err := rides.Update(ctx, ride, expected); err != nil {
			return err
		}
		if completed {
			return drivers.UpdateStatus(ctx, ride.DriverID, domain.DriverStatusOnline)
		}
		return nil
	})
	if err != nil {
		return nil, mapCommitError(err)
	}

	s.log.Info("ride status changed", "ride_id", ride.ID, "status", string(ride.Status))
	s.notifications.NotifyStatusChanged(ctx, ride)
	if completed {
		if s.cache != nil {
			_ = s.cache.InvalidateDriver(ctx, ride.DriverID)
		}
		s.notifications.NotifyRideCompleted(ctx, ride)
	}
	return ride, nil
}

// CancelRideRequest contains the parameters for a rider cancelling a ride.
type CancelRideRequest struct {
	RiderID string
	RideID  string
	Reason  string
	// Version, when set, must equal the current token.
	Version string
}

// CancelRide cancels a ride on behalf of the rider who requested it. Only
// PENDING rides can be cancelled.
func (s *RideService) CancelRide(ctx context.Context, req CancelRideRequest) (*domain.Ride, error) {
	if req.RiderID == "" {
		return nil, ErrInvalidRiderID
	}
	if req.RideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.rideRepo.GetByID(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if ride.RiderID != req.RiderID {
		return nil, fmt.Errorf("%w: ride belongs to another rider", ErrPrerequisite)
	}
	if err := checkVersion(ride, req.Version); err != nil {
		return nil, err
	}

	return s.cancel(ctx, ride, domain.RoleRider, req.Reason)
}

// ExpireRide cancels a ride that stayed PENDING past its offer window.
func (s *RideService) ExpireRide(ctx context.Context, ride *domain.Ride) (*domain.Ride, error) {
	return s.cancel(ctx, ride, domain.RoleSystem, ExpiredReason)
}

func (s *RideService) cancel(ctx context.Context, ride *domain.Ride, actor domain.Role, reason string) (*domain.Ride, error) {
	expected := ride.Version()
	if err := domain.ApplyTransition(ride, domain.TransitionRequest{
		From:         ride.Status,
		To:           domain.RideStatusCancelled,
		Actor:        actor,
		At:           s.now(),
		CancelReason: reason,
	}); err != nil {
		return nil, err
	}

	if err := s.rideRepo.Update(ctx, ride, expected); err != nil {
		return nil, mapCommitError(err)
	}

	if err := s.pending.Remove(ctx, ride.ID); err != nil {
		s.log.Warn("pending index remove failed", "ride_id", ride.ID, "error", err.Error())
	}

	s.log.Info("ride cancelled", "ride_id", ride.ID, "cancelled_by", string(actor))
	s.notifications.NotifyStatusChanged(ctx, ride)
	s.notifications.NotifyRideCancelled(ctx, ride)
	return ride, nil
}

// checkVersion compares an optional client token with the ride's current one.
func checkVersion(ride *domain.Ride, token string) error {
	if token == "" {
		return nil
	}
	presented, err := domain.ParseVersion(token)
	if err != nil {
		return err
	}
	if current := ride.Version(); presented != current {
		return fmt.Errorf("%w: have %s, current %s", ErrStaleVersion, presented, current)
	}
	return nil
}
