package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ridedispatch/internal/geo"
)

const (
	driverLocationKey  = "drivers:locations"
	driverOnlinePrefix = "driver:online:"
)

// GEO members are stored as 52-bit geohashes, so the radius query is widened
// slightly. Membership is decided on the exact coordinates kept in the online key.
const (
	geoRadiusSlackRatio = 0.001
	geoRadiusSlackKm    = 0.01
)

// LocationStore handles driver location operations in Redis.
type LocationStore struct {
	client    *redis.Client
	onlineTTL time.Duration
}

// NewLocationStore creates a new LocationStore. Each upsert keeps the driver
// online for onlineTTL.
func NewLocationStore(client *redis.Client, onlineTTL time.Duration) *LocationStore {
	return &LocationStore{client: client, onlineTTL: onlineTTL}
}

// Upsert stores a driver's location using GEOADD and refreshes the online key,
// whose value is the exact "lat,lng" the driver reported.
func (s *LocationStore) Upsert(ctx context.Context, driverID string, lat, lng float64) error {
	pipe := s.client.TxPipeline()
	pipe.GeoAdd(ctx, driverLocationKey, &redis.GeoLocation{
		Name:      driverID,
		Longitude: lng,
		Latitude:  lat,
	})
	pipe.Set(ctx, driverOnlinePrefix+driverID, formatCoord(lat, lng), s.onlineTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Within returns online drivers within radiusKm of the given point.
// Drivers whose online key expired are skipped even if still in the GEO set.
func (s *LocationStore) Within(ctx context.Context, lat, lng, radiusKm float64) ([]geo.Candidate, error) {
	results, err := s.client.GeoRadius(ctx, driverLocationKey, lng, lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm*(1+geoRadiusSlackRatio) + geoRadiusSlackKm,
		Unit:      "km",
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	online := make([]*redis.StringCmd, len(results))
	for i, r := range results {
		online[i] = pipe.Get(ctx, driverOnlinePrefix+r.Name)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	candidates := make([]geo.Candidate, 0, len(results))
	for i, r := range results {
		raw, err := online[i].Result()
		if err != nil {
			continue
		}
		dLat, dLng, ok := parseCoord(raw)
		if !ok {
			// Online key without a position: fall back to the geohash.
			dLat, dLng = r.Latitude, r.Longitude
		}
		d := geo.DistanceKm(lat, lng, dLat, dLng)
		if !geo.InRadius(d, radiusKm) {
			continue
		}
		candidates = append(candidates, geo.Candidate{
			DriverID:   r.Name,
			Lat:        dLat,
			Lng:        dLng,
			DistanceKm: d,
		})
	}

	return candidates, nil
}

// Remove removes a driver from the geo index and clears their online key.
func (s *LocationStore) Remove(ctx context.Context, driverID string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, driverLocationKey, driverID)
	pipe.Del(ctx, driverOnlinePrefix+driverID)
	_, err := pipe.Exec(ctx)
	return err
}

// IsOnline reports whether the driver's online key is still live.
func (s *LocationStore) IsOnline(ctx context.Context, driverID string) (bool, error) {
	n, err := s.client.Exists(ctx, driverOnlinePrefix+driverID).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func formatCoord(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'g', -1, 64) + "," + strconv.FormatFloat(lng, 'g', -1, 64)
}

func parseCoord(s string) (lat, lng float64, ok bool) {
	latStr, lngStr, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
