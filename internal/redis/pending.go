package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingRidesKey = "rides:pending"

// PendingIndex tracks rides open for acceptance. Each member's score is its
// expiry in unix milliseconds; members past expiry are treated as absent and
// pruned lazily on read.
type PendingIndex struct {
	client *redis.Client
	now    func() time.Time
}

// NewPendingIndex creates a new PendingIndex.
func NewPendingIndex(client *redis.Client) *PendingIndex {
	return &PendingIndex{client: client, now: time.Now}
}

// SetClock replaces the index's time source.
func (s *PendingIndex) SetClock(now func() time.Time) {
	s.now = now
}

// Add inserts a ride that stays discoverable for ttl.
func (s *PendingIndex) Add(ctx context.Context, rideID string, ttl time.Duration) error {
	return s.client.ZAdd(ctx, pendingRidesKey, redis.Z{
		Score:  float64(s.now().Add(ttl).UnixMilli()),
		Member: rideID,
	}).Err()
}

// Remove drops a ride from the index.
func (s *PendingIndex) Remove(ctx context.Context, rideID string) error {
	return s.client.ZRem(ctx, pendingRidesKey, rideID).Err()
}

// Members returns the ride IDs that have not expired.
func (s *PendingIndex) Members(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(s.now().UnixMilli(), 10)

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, pendingRidesKey, "-inf", now)
	members := pipe.ZRangeByScore(ctx, pendingRidesKey, &redis.ZRangeBy{
		Min: "(" + now,
		Max: "+inf",
	})
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	return members.Val(), nil
}

// Contains reports whether the ride is in the index and not expired.
func (s *PendingIndex) Contains(ctx context.Context, rideID string) (bool, error) {
	score, err := s.client.ZScore(ctx, pendingRidesKey, rideID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return int64(score) > s.now().UnixMilli(), nil
}
