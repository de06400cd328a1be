package repository

import (
	"context"
	"time"

	"ridedispatch/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetByIDs retrieves the rides that exist among ids, in no particular order.
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Ride, error)

	// Update writes ride only if the stored version still equals expected.
	// Returns ErrVersionMismatch if it does not, ErrNotFound if the ride is gone.
	Update(ctx context.Context, ride *domain.Ride, expected domain.Version) error

	// GetActiveByDriverID retrieves the non-terminal ride assigned to a driver.
	// Returns nil if the driver has none.
	GetActiveByDriverID(ctx context.Context, driverID string) (*domain.Ride, error)

	// ListPendingRequestedBefore returns PENDING rides requested before the cutoff.
	ListPendingRequestedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Ride, error)
}
