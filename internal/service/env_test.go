package service

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"ridedispatch/internal/config"
	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/tests"
)

// Pickup and destination used across tests (Hanoi).
var (
	testPickup      = domain.Location{Lat: 21.03, Lng: 105.85, Address: "Hoan Kiem"}
	testDestination = domain.Location{Lat: 21.01, Lng: 105.80, Address: "Dong Da"}
)

// northOf returns a point km kilometres due north of l.
func northOf(l domain.Location, km float64) (float64, float64) {
	return l.Lat + km/(geo.EarthRadiusKm*math.Pi/180), l.Lng
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock     *testClock
	cfg       config.DispatchConfig
	rides     *tests.MockRideRepository
	drivers   *tests.MockDriverRepository
	riders    *tests.MockRiderRepository
	tx        *tests.MockTransactor
	locks     *tests.MockLockStore
	pending   *tests.MockPendingIndex
	locations *geo.MemoryRegistry
	publisher *tests.RecordingPublisher

	notifications *NotificationService
	dispatch      *DispatchEngine
	accept        *AcceptanceCoordinator
	rideService   *RideService
	driverService *DriverService
}

func newTestEnv(t *testing.T, drivers ...*domain.Driver) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	cfg := config.DispatchConfig{
		SearchRadiusKm:    5,
		BroadcastRadiusKm: 7.5,
		PendingRideTTL:    10 * time.Minute,
		RideLockTTL:       5 * time.Second,
		DriverOnlineTTL:   time.Minute,
		DispatchTimeout:   time.Second,
		SweepInterval:     time.Minute,
	}
	log := logger.Discard()

	env := &testEnv{
		clock:     clock,
		cfg:       cfg,
		rides:     tests.NewMockRideRepository(),
		drivers:   tests.NewMockDriverRepository(drivers...),
		riders:    tests.NewMockRiderRepository(&domain.Rider{ID: "rider-1", Name: "An", Phone: "0901"}),
		locks:     tests.NewMockLockStore(),
		pending:   tests.NewMockPendingIndex(),
		locations: geo.NewMemoryRegistry(cfg.DriverOnlineTTL),
		publisher: &tests.RecordingPublisher{},
	}
	env.tx = &tests.MockTransactor{Rides: env.rides, Drivers: env.drivers}
	env.locations.SetClock(clock.Now)

	env.notifications = NewNotificationService(env.publisher, log)
	env.notifications.now = clock.Now
	env.dispatch = NewDispatchEngine(env.locations, env.pending, nil, env.drivers, env.notifications, cfg, log)
	env.accept = NewAcceptanceCoordinator(env.rides, env.drivers, env.tx, env.locks, env.pending, nil, env.notifications, cfg, log)
	env.accept.now = clock.Now
	env.rideService = NewRideService(env.rides, env.riders, env.drivers, env.tx, env.pending, nil, env.dispatch, env.notifications, cfg, log)
	env.rideService.now = clock.Now
	env.driverService = NewDriverService(env.locations, nil, env.drivers, env.rides, log)
	return env
}

// placeDriver puts an existing driver online km north of the test pickup.
func (e *testEnv) placeDriver(t *testing.T, driverID string, km float64) {
	t.Helper()
	lat, lng := northOf(testPickup, km)
	if err := e.locations.Upsert(context.Background(), driverID, lat, lng); err != nil {
		t.Fatalf("upsert %s: %v", driverID, err)
	}
}

// createRide creates a car ride for rider-1 and waits for its dispatch.
func (e *testEnv) createRide(t *testing.T) *domain.Ride {
	t.Helper()
	ride, err := e.rideService.CreateRide(context.Background(), CreateRideRequest{
		RiderID:           "rider-1",
		Pickup:            testPickup,
		Destination:       testDestination,
		VehicleTypeID:     "car",
		EstimatedPrice:    42000,
		EstimatedDuration: 15 * time.Minute,
		DistanceKm:        5.6,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	e.rideService.Wait()
	return ride
}

func onlineCar(id string) *domain.Driver {
	return &domain.Driver{
		ID:            id,
		Name:          "Driver " + id,
		Phone:         "09" + id,
		Status:        domain.DriverStatusOnline,
		VehicleTypeID: "car",
		VehiclePlate:  "29A-" + id,
	}
}
