package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"ridedispatch/internal/domain"
)

// DriverCacheTTL bounds how long a driver profile is served from cache.
// Status changes invalidate the entry explicitly.
const DriverCacheTTL = 30 * time.Second

const driverCachePrefix = "cache:driver:"

// CacheStore handles driver profile caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// CachedDriver is the cached form of a driver profile.
type CachedDriver struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Status        string `json:"status"`
	VehicleTypeID string `json:"vehicle_type_id"`
	VehiclePlate  string `json:"vehicle_plate"`
}

// CachedDriverFrom converts a driver into its cached form.
func CachedDriverFrom(d *domain.Driver) *CachedDriver {
	return &CachedDriver{
		ID:            d.ID,
		Name:          d.Name,
		Phone:         d.Phone,
		Status:        string(d.Status),
		VehicleTypeID: d.VehicleTypeID,
		VehiclePlate:  d.VehiclePlate,
	}
}

// Driver converts the cached form back into a domain driver.
func (c *CachedDriver) Driver() *domain.Driver {
	return &domain.Driver{
		ID:            c.ID,
		Name:          c.Name,
		Phone:         c.Phone,
		Status:        domain.DriverStatus(c.Status),
		VehicleTypeID: c.VehicleTypeID,
		VehiclePlate:  c.VehiclePlate,
	}
}

// GetDriver retrieves a driver from cache. A miss returns nil, nil.
func (s *CacheStore) GetDriver(ctx context.Context, driverID string) (*domain.Driver, error) {
	data, err := s.client.Get(ctx, driverCachePrefix+driverID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var cached CachedDriver
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return cached.Driver(), nil
}

// SetDriver stores a driver in cache.
func (s *CacheStore) SetDriver(ctx context.Context, driver *domain.Driver) error {
	data, err := json.Marshal(CachedDriverFrom(driver))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, driverCachePrefix+driver.ID, data, DriverCacheTTL).Err()
}

// InvalidateDriver removes a driver from cache.
func (s *CacheStore) InvalidateDriver(ctx context.Context, driverID string) error {
	return s.client.Del(ctx, driverCachePrefix+driverID).Err()
}

// GetDriversBatch retrieves multiple drivers from cache using a pipeline.
// Returns the hits keyed by driver ID and the IDs that missed.
func (s *CacheStore) GetDriversBatch(ctx context.Context, driverIDs []string) (map[string]*domain.Driver, []string, error) {
	result := make(map[string]*domain.Driver, len(driverIDs))
	if len(driverIDs) == 0 {
		return result, nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(driverIDs))
	for i, id := range driverIDs {
		cmds[i] = pipe.Get(ctx, driverCachePrefix+id)
	}

	// Exec reports redis.Nil when any key is missing; per-command results below
	// tell hits from misses.
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, nil, err
	}

	var missing []string
	for i, cmd := range cmds {
		id := driverIDs[i]
		data, err := cmd.Bytes()
		if err != nil {
			missing = append(missing, id)
			continue
		}

		var cached CachedDriver
		if err := json.Unmarshal(data, &cached); err != nil {
			missing = append(missing, id)
			continue
		}
		result[id] = cached.Driver()
	}

	return result, missing, nil
}

// SetDriversBatch stores multiple drivers in cache using a pipeline.
func (s *CacheStore) SetDriversBatch(ctx context.Context, drivers []*domain.Driver) error {
	if len(drivers) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, driver := range drivers {
		data, err := json.Marshal(CachedDriverFrom(driver))
		if err != nil {
			continue
		}
		pipe.Set(ctx, driverCachePrefix+driver.ID, data, DriverCacheTTL)
	}

	_, err := pipe.Exec(ctx)
	return err
}
