// Package tests holds thread-safe in-memory doubles of the repositories,
// Redis stores and notification sinks, shared by service and HTTP tests.
package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/notify"
	"ridedispatch/internal/redis"
	"ridedispatch/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository stores copies of rides and enforces the version check
// and the one-active-ride-per-driver rule like the Postgres schema does.
type MockRideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride

	UpdateCallCount int32
	CreateError     error
	UpdateError     error
}

// NewMockRideRepository creates an empty ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{rides: make(map[string]*domain.Ride)}
}

// AddRide stores a copy of ride.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *ride
	m.rides[ride.ID] = &stored
}

// Ride returns a copy of the stored ride for assertions.
func (m *MockRideRepository) Ride(id string) *domain.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil
	}
	out := *r
	return &out
}

func (m *MockRideRepository) Create(_ context.Context, ride *domain.Ride) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[ride.ID]; ok {
		return repository.ErrDuplicate
	}
	stored := *ride
	m.rides[ride.ID] = &stored
	return nil
}

func (m *MockRideRepository) GetByID(_ context.Context, id string) (*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (m *MockRideRepository) GetByIDs(_ context.Context, ids []string) ([]*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Ride
	for _, id := range ids {
		if r, ok := m.rides[id]; ok {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MockRideRepository) Update(_ context.Context, ride *domain.Ride, expected domain.Version) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.rides[ride.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version() != expected {
		return repository.ErrVersionMismatch
	}
	if ride.HasDriver() && !ride.Status.IsTerminal() {
		for id, other := range m.rides {
			if id != ride.ID && other.DriverID == ride.DriverID && !other.Status.IsTerminal() && other.HasDriver() {
				return repository.ErrDuplicate
			}
		}
	}
	stored := *ride
	m.rides[ride.ID] = &stored
	return nil
}

func (m *MockRideRepository) GetActiveByDriverID(_ context.Context, driverID string) (*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.DriverID == driverID && !r.Status.IsTerminal() {
			out := *r
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MockRideRepository) ListPendingRequestedBefore(_ context.Context, cutoff time.Time, limit int) ([]*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Ride
	for _, r := range m.rides {
		if r.Status == domain.RideStatusPending && r.RequestedAt.Before(cutoff) {
			c := *r
			out = append(out, &c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────
// MOCK DRIVER / RIDER REPOSITORIES
// ──────────────────────────────────────────────

// MockDriverRepository is a mock implementation of DriverRepository.
type MockDriverRepository struct {
	mu      sync.RWMutex
	drivers map[string]*domain.Driver

	GetByIDsCallCount     int32
	UpdateStatusCallCount int32
	GetByIDsError         error
}

// NewMockDriverRepository creates a repository seeded with copies of drivers.
func NewMockDriverRepository(drivers ...*domain.Driver) *MockDriverRepository {
	m := &MockDriverRepository{drivers: make(map[string]*domain.Driver)}
	for _, d := range drivers {
		c := *d
		m.drivers[d.ID] = &c
	}
	return m
}

func (m *MockDriverRepository) Create(_ context.Context, driver *domain.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *driver
	m.drivers[driver.ID] = &c
	return nil
}

func (m *MockDriverRepository) GetByID(_ context.Context, id string) (*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *d
	return &c, nil
}

func (m *MockDriverRepository) GetByIDs(_ context.Context, ids []string) ([]*domain.Driver, error) {
	atomic.AddInt32(&m.GetByIDsCallCount, 1)
	if m.GetByIDsError != nil {
		return nil, m.GetByIDsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Driver
	for _, id := range ids {
		if d, ok := m.drivers[id]; ok {
			c := *d
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MockDriverRepository) UpdateStatus(_ context.Context, id string, status domain.DriverStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Status = status
	return nil
}

// Status returns the stored status of a driver.
func (m *MockDriverRepository) Status(id string) domain.DriverStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.drivers[id].Status
}

// MockRiderRepository is a mock implementation of RiderRepository.
type MockRiderRepository struct {
	mu     sync.RWMutex
	riders map[string]*domain.Rider
}

// NewMockRiderRepository creates a repository seeded with riders.
func NewMockRiderRepository(riders ...*domain.Rider) *MockRiderRepository {
	m := &MockRiderRepository{riders: make(map[string]*domain.Rider)}
	for _, r := range riders {
		m.riders[r.ID] = r
	}
	return m
}

func (m *MockRiderRepository) Create(_ context.Context, rider *domain.Rider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riders[rider.ID] = rider
	return nil
}

func (m *MockRiderRepository) GetByID(_ context.Context, id string) (*domain.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.riders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *r
	return &c, nil
}

// MockTransactor hands the shared mock repositories to fn. Each mock write
// is atomic on its own; rollback is not simulated.
type MockTransactor struct {
	Rides   *MockRideRepository
	Drivers *MockDriverRepository

	CallCount int32
}

func (m *MockTransactor) WithinTx(_ context.Context, fn func(repository.RideRepository, repository.DriverRepository) error) error {
	atomic.AddInt32(&m.CallCount, 1)
	return fn(m.Rides, m.Drivers)
}

// ──────────────────────────────────────────────
// MOCK REDIS STORES
// ──────────────────────────────────────────────

// MockLockStore is an owner-checked lock table.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]string

	AcquireCallCount int32
	AcquiredCount    int32
	ReleaseCallCount int32
}

// NewMockLockStore creates an empty lock table.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]string)}
}

func (m *MockLockStore) TryAcquire(_ context.Context, key, owner string, _ time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[key]; held {
		return false, nil
	}
	m.locks[key] = owner
	atomic.AddInt32(&m.AcquiredCount, 1)
	return true, nil
}

func (m *MockLockStore) Release(_ context.Context, key, owner string) (bool, error) {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] != owner {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}

// HeldCount returns the number of locks currently held.
func (m *MockLockStore) HeldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// MockPendingIndex is a pending ride index without expiry.
type MockPendingIndex struct {
	mu      sync.Mutex
	members map[string]time.Duration

	RemoveCallCount int32
}

// NewMockPendingIndex creates an empty index.
func NewMockPendingIndex() *MockPendingIndex {
	return &MockPendingIndex{members: make(map[string]time.Duration)}
}

func (m *MockPendingIndex) Add(_ context.Context, rideID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[rideID] = ttl
	return nil
}

func (m *MockPendingIndex) Remove(_ context.Context, rideID string) error {
	atomic.AddInt32(&m.RemoveCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, rideID)
	return nil
}

func (m *MockPendingIndex) Members(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.members))
	for id := range m.members {
		out = append(out, id)
	}
	return out, nil
}

// Contains reports whether id is indexed.
func (m *MockPendingIndex) Contains(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[id]
	return ok
}

// MockDriverCache is an in-memory driver profile cache.
type MockDriverCache struct {
	mu      sync.Mutex
	drivers map[string]*domain.Driver

	SetCallCount        int32
	InvalidateCallCount int32
}

// NewMockDriverCache creates an empty cache.
func NewMockDriverCache() *MockDriverCache {
	return &MockDriverCache{drivers: make(map[string]*domain.Driver)}
}

func (m *MockDriverCache) GetDriversBatch(_ context.Context, ids []string) (map[string]*domain.Driver, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[string]*domain.Driver)
	var missing []string
	for _, id := range ids {
		if d, ok := m.drivers[id]; ok {
			c := *d
			found[id] = &c
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing, nil
}

func (m *MockDriverCache) SetDriversBatch(_ context.Context, drivers []*domain.Driver) error {
	atomic.AddInt32(&m.SetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range drivers {
		c := *d
		m.drivers[d.ID] = &c
	}
	return nil
}

func (m *MockDriverCache) InvalidateDriver(_ context.Context, id string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drivers, id)
	return nil
}

// ──────────────────────────────────────────────
// RECORDING PUBLISHER
// ──────────────────────────────────────────────

// Published is one recorded delivery.
type Published struct {
	Channel string
	Event   notify.Event
}

// RecordingPublisher records every delivery. Err, when set, is returned from Publish.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, channel string, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Published{Channel: channel, Event: ev})
	return p.Err
}

// On returns the event types delivered on channel, in order.
func (p *RecordingPublisher) On(channel string) []notify.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.EventType
	for _, e := range p.events {
		if e.Channel == channel {
			out = append(out, e.Event.Type)
		}
	}
	return out
}

// Count returns how many events of type t were published on any channel.
func (p *RecordingPublisher) Count(t notify.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Event.Type == t {
			n++
		}
	}
	return n
}

// Ensure mocks implement the interfaces they stand in for.
var (
	_ repository.RideRepository   = (*MockRideRepository)(nil)
	_ repository.DriverRepository = (*MockDriverRepository)(nil)
	_ repository.RiderRepository  = (*MockRiderRepository)(nil)
	_ repository.Transactor       = (*MockTransactor)(nil)
	_ redis.LockStoreInterface    = (*MockLockStore)(nil)
	_ redis.PendingIndexInterface = (*MockPendingIndex)(nil)
	_ redis.DriverCacheInterface  = (*MockDriverCache)(nil)
	_ notify.Publisher            = (*RecordingPublisher)(nil)
)
