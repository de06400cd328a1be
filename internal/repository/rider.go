package repository

import (
	"context"

	"ridedispatch/internal/domain"
)

// RiderRepository defines the persistence operations for riders.
type RiderRepository interface {
	Create(ctx context.Context, rider *domain.Rider) error
	GetByID(ctx context.Context, id string) (*domain.Rider, error)
}
