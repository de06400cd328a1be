package geo

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	lat       float64
	lng       float64
	expiresAt time.Time
}

// MemoryRegistry keeps driver positions in process. Entries past their
// online TTL are skipped by Within and purged on the next write.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryRegistry creates a registry whose entries stay online for ttl after each upsert.
func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the registry's time source.
func (r *MemoryRegistry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Upsert records a driver's position and refreshes their online TTL.
func (r *MemoryRegistry) Upsert(_ context.Context, driverID string, lat, lng float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, e := range r.entries {
		if !now.Before(e.expiresAt) {
			delete(r.entries, id)
		}
	}
	r.entries[driverID] = memoryEntry{lat: lat, lng: lng, expiresAt: now.Add(r.ttl)}
	return nil
}

// Remove drops a driver from the registry.
func (r *MemoryRegistry) Remove(_ context.Context, driverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, driverID)
	return nil
}

// Within returns online drivers whose great-circle distance is at most radiusKm.
func (r *MemoryRegistry) Within(_ context.Context, lat, lng, radiusKm float64) ([]Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	var out []Candidate
	for id, e := range r.entries {
		if !now.Before(e.expiresAt) {
			continue
		}
		d := DistanceKm(lat, lng, e.lat, e.lng)
		if InRadius(d, radiusKm) {
			out = append(out, Candidate{DriverID: id, Lat: e.lat, Lng: e.lng, DistanceKm: d})
		}
	}
	return out, nil
}

// IsOnline reports whether the driver has a live entry.
func (r *MemoryRegistry) IsOnline(_ context.Context, driverID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[driverID]
	return ok && r.now().Before(e.expiresAt), nil
}
