package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const rideLockPrefix = "lock:ride:"

// releaseScript deletes the key only if it still holds the caller's value, so
// an owner whose TTL lapsed cannot delete a lock someone else has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RideLockKey returns the lock key guarding acceptance of a ride.
func RideLockKey(rideID string) string {
	return rideLockPrefix + rideID
}

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// TryAcquire attempts to take the lock once, storing owner as its value.
// Returns false without waiting if the lock is already held.
func (s *LockStore) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// Release deletes the lock if owner still holds it.
// Returns false if the lock had expired or belongs to someone else.
func (s *LockStore) Release(ctx context.Context, key, owner string) (bool, error) {
	n, err := releaseScript.Run(ctx, s.client, []string{key}, owner).Int()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// Holder returns the current owner of the lock, or "" if it is free.
func (s *LockStore) Holder(ctx context.Context, key string) (string, error) {
	owner, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return owner, err
}
