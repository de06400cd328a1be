package redis

import (
	"context"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
)

// LocationStoreInterface defines the interface for the online driver registry.
type LocationStoreInterface interface {
	Upsert(ctx context.Context, driverID string, lat, lng float64) error
	Remove(ctx context.Context, driverID string) error
	Within(ctx context.Context, lat, lng, radiusKm float64) ([]geo.Candidate, error)
	IsOnline(ctx context.Context, driverID string) (bool, error)
}

// LockStoreInterface defines the interface for owner-checked distributed locks.
type LockStoreInterface interface {
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) (bool, error)
}

// PendingIndexInterface defines the interface for the pending ride index.
type PendingIndexInterface interface {
	Add(ctx context.Context, rideID string, ttl time.Duration) error
	Remove(ctx context.Context, rideID string) error
	Members(ctx context.Context) ([]string, error)
}

// DriverCacheInterface defines the interface for driver profile caching.
type DriverCacheInterface interface {
	GetDriversBatch(ctx context.Context, driverIDs []string) (map[string]*domain.Driver, []string, error)
	SetDriversBatch(ctx context.Context, drivers []*domain.Driver) error
	InvalidateDriver(ctx context.Context, driverID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LocationStoreInterface = (*geo.MemoryRegistry)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
	_ PendingIndexInterface  = (*PendingIndex)(nil)
	_ DriverCacheInterface   = (*CacheStore)(nil)
)
