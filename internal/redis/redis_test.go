package redis

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLocationStore_WithinFiltersByRadiusAndOnline(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	store := NewLocationStore(client, 30*time.Second)

	// Pickup at (21.03, 105.85); 0.01 deg lat is about 1.11 km.
	if err := store.Upsert(ctx, "near", 21.04, 105.85); err != nil {
		t.Fatalf("upsert near: %v", err)
	}
	if err := store.Upsert(ctx, "far", 21.10, 105.85); err != nil {
		t.Fatalf("upsert far: %v", err)
	}

	got, err := store.Within(ctx, 21.03, 105.85, 5)
	if err != nil {
		t.Fatalf("within: %v", err)
	}
	if len(got) != 1 || got[0].DriverID != "near" {
		t.Fatalf("expected only near driver, got %+v", got)
	}
	if got[0].DistanceKm < 1.0 || got[0].DistanceKm > 1.2 {
		t.Errorf("unexpected distance %.3f", got[0].DistanceKm)
	}

	mr.FastForward(31 * time.Second)

	got, err = store.Within(ctx, 21.03, 105.85, 5)
	if err != nil {
		t.Fatalf("within after ttl: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected expired driver to be absent, got %+v", got)
	}
	if online, _ := store.IsOnline(ctx, "near"); online {
		t.Error("expected driver to be offline after ttl")
	}
}

// latNorthOf returns the latitude km kilometres due north of lat.
func latNorthOf(lat, km float64) float64 {
	return lat + km/geo.EarthRadiusKm*180/math.Pi
}

func TestLocationStore_RadiusBoundaryUsesReportedPosition(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	store := NewLocationStore(client, time.Minute)

	for i := 0; i < 50; i++ {
		pickupLat := -60 + float64(i)*2.45
		pickupLng := 105.85
		t.Run(fmt.Sprintf("lat=%.2f", pickupLat), func(t *testing.T) {
			id := fmt.Sprintf("driver-%d", i)
			driverLat := latNorthOf(pickupLat, 5.0)
			if err := store.Upsert(ctx, id, driverLat, pickupLng); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			defer func() { _ = store.Remove(ctx, id) }()

			atFive, err := store.Within(ctx, pickupLat, pickupLng, 5.0)
			if err != nil {
				t.Fatalf("within: %v", err)
			}
			if len(atFive) != 1 || atFive[0].DriverID != id {
				t.Fatalf("expected driver at 5.0 km included at r=5.0, got %+v", atFive)
			}
			if atFive[0].Lat != driverLat || atFive[0].Lng != pickupLng {
				t.Errorf("expected reported position, got (%v, %v)", atFive[0].Lat, atFive[0].Lng)
			}

			atFourNine, err := store.Within(ctx, pickupLat, pickupLng, 4.9)
			if err != nil {
				t.Fatalf("within: %v", err)
			}
			if len(atFourNine) != 0 {
				t.Errorf("expected driver at 5.0 km excluded at r=4.9, got %+v", atFourNine)
			}
		})
	}
}

func TestLocationStore_Remove(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	store := NewLocationStore(client, time.Minute)

	_ = store.Upsert(ctx, "d1", 10, 10)
	if err := store.Remove(ctx, "d1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got, _ := store.Within(ctx, 10, 10, 50)
	if len(got) != 0 {
		t.Errorf("expected no drivers after remove, got %+v", got)
	}
	if online, _ := store.IsOnline(ctx, "d1"); online {
		t.Error("expected removed driver to be offline")
	}
}

func TestLockStore_OwnerCheckedRelease(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	locks := NewLockStore(client)
	key := RideLockKey("ride-1")

	ok, err := locks.TryAcquire(ctx, key, "driver-a", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected driver-a to acquire, ok=%v err=%v", ok, err)
	}

	ok, _ = locks.TryAcquire(ctx, key, "driver-b", time.Second)
	if ok {
		t.Fatal("expected driver-b to be refused while driver-a holds the lock")
	}

	released, err := locks.Release(ctx, key, "driver-b")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released {
		t.Error("non-owner must not release the lock")
	}
	if holder, _ := locks.Holder(ctx, key); holder != "driver-a" {
		t.Errorf("expected driver-a to still hold the lock, got %q", holder)
	}

	released, _ = locks.Release(ctx, key, "driver-a")
	if !released {
		t.Error("owner should release the lock")
	}
	if holder, _ := locks.Holder(ctx, key); holder != "" {
		t.Errorf("expected lock to be free, got holder %q", holder)
	}
}

func TestLockStore_ExpiresWithoutRelease(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	locks := NewLockStore(client)
	key := RideLockKey("ride-1")

	_, _ = locks.TryAcquire(ctx, key, "driver-a", time.Second)
	mr.FastForward(2 * time.Second)

	ok, err := locks.TryAcquire(ctx, key, "driver-b", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected lock to be free after ttl, ok=%v err=%v", ok, err)
	}

	// The stale owner's release must not delete driver-b's lock.
	released, _ := locks.Release(ctx, key, "driver-a")
	if released {
		t.Error("stale owner released a lock it no longer holds")
	}
}

func TestLockStore_ConcurrentAcquireHasOneWinner(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	locks := NewLockStore(client)
	key := RideLockKey("ride-1")

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := locks.TryAcquire(ctx, key, string(rune('a'+i)), time.Second)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}

func TestPendingIndex_ExpiryAndRemove(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	index := NewPendingIndex(client)
	index.SetClock(func() time.Time { return now })

	_ = index.Add(ctx, "short", time.Minute)
	_ = index.Add(ctx, "long", 10*time.Minute)
	_ = index.Add(ctx, "removed", 10*time.Minute)
	_ = index.Remove(ctx, "removed")

	members, err := index.Members(ctx)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}

	now = now.Add(2 * time.Minute)

	members, _ = index.Members(ctx)
	if len(members) != 1 || members[0] != "long" {
		t.Errorf("expected only long to remain, got %v", members)
	}
	if ok, _ := index.Contains(ctx, "short"); ok {
		t.Error("expired ride still reported as pending")
	}
	if ok, _ := index.Contains(ctx, "long"); !ok {
		t.Error("live ride not reported as pending")
	}
}

func TestCacheStore_DriversBatch(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	cache := NewCacheStore(client)

	drivers := []*domain.Driver{
		{ID: "d1", Name: "An", Status: domain.DriverStatusOnline, VehicleTypeID: "car"},
		{ID: "d2", Name: "Binh", Status: domain.DriverStatusOnline, VehicleTypeID: "bike"},
	}
	if err := cache.SetDriversBatch(ctx, drivers); err != nil {
		t.Fatalf("set batch: %v", err)
	}

	hits, missing, err := cache.GetDriversBatch(ctx, []string{"d1", "d2", "d3"})
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if len(hits) != 2 || hits["d2"].VehicleTypeID != "bike" {
		t.Errorf("unexpected hits: %+v", hits)
	}
	if len(missing) != 1 || missing[0] != "d3" {
		t.Errorf("expected d3 to miss, got %v", missing)
	}

	_ = cache.InvalidateDriver(ctx, "d1")
	if d, _ := cache.GetDriver(ctx, "d1"); d != nil {
		t.Errorf("expected invalidated driver to miss, got %+v", d)
	}
}
