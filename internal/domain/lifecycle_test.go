package domain

import (
	"errors"
	"testing"
	"time"
)

var allRoles = []Role{RoleRider, RoleDriver, RoleSystem}

func rideIn(status RideStatus) *Ride {
	r := &Ride{
		ID:             "ride-1",
		RiderID:        "rider-1",
		Status:         status,
		EstimatedPrice: 42000,
		UpdatedAt:      time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
	}
	if status != RideStatusPending && status != RideStatusCancelled {
		r.DriverID = "driver-1"
	}
	return r
}

func TestApplyTransition_ClosureOverAllPairs(t *testing.T) {
	t.Parallel()

	legal := map[RideStatus][]RideStatus{
		RideStatusPending:        {RideStatusAccepted, RideStatusCancelled},
		RideStatusAccepted:       {RideStatusDriverArriving},
		RideStatusDriverArriving: {RideStatusDriverArrived},
		RideStatusDriverArrived:  {RideStatusInProgress},
		RideStatusInProgress:     {RideStatusCompleted},
	}
	isEdge := func(from, to RideStatus) bool {
		for _, s := range legal[from] {
			if s == to {
				return true
			}
		}
		return false
	}

	accepted := 0

	for _, from := range AllRideStatuses {
		for _, to := range AllRideStatuses {
			for _, actor := range allRoles {
				ride := rideIn(from)
				before := *ride
				err := ApplyTransition(ride, TransitionRequest{
					From:   from,
					To:     to,
					Actor:  actor,
					Driver: &Driver{ID: "driver-2", Name: "Binh"},
				})

				wantOK := CanTransition(from, to, actor)
				if wantOK && !isEdge(from, to) {
					t.Errorf("%s -> %s by %s allowed but is not a lifecycle edge", from, to, actor)
				}

				if wantOK {
					accepted++
					if err != nil {
						t.Errorf("%s -> %s by %s: unexpected error %v", from, to, actor, err)
					}
					if ride.Status != to {
						t.Errorf("%s -> %s by %s: status is %s", from, to, actor, ride.Status)
					}
					continue
				}

				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("%s -> %s by %s: expected ErrInvalidTransition, got %v", from, to, actor, err)
				}
				if ride.Status != before.Status || !ride.UpdatedAt.Equal(before.UpdatedAt) {
					t.Errorf("%s -> %s by %s: ride mutated on rejected transition", from, to, actor)
				}
			}
		}
	}

	// Six edges: five forward steps plus rider and system cancellation from PENDING.
	if accepted != 6 {
		t.Errorf("expected 6 legal (from, to, actor) triples, got %d", accepted)
	}
}

func TestApplyTransition_TerminalStatesAreFinal(t *testing.T) {
	t.Parallel()

	for _, status := range []RideStatus{RideStatusCompleted, RideStatusCancelled} {
		for _, to := range AllRideStatuses {
			for _, actor := range allRoles {
				ride := rideIn(status)
				err := ApplyTransition(ride, TransitionRequest{From: status, To: to, Actor: actor})
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("%s -> %s by %s: expected rejection, got %v", status, to, actor, err)
				}
			}
		}
	}
}

func TestApplyTransition_FromMismatch(t *testing.T) {
	t.Parallel()

	ride := rideIn(RideStatusDriverArriving)
	err := ApplyTransition(ride, TransitionRequest{
		From:  RideStatusAccepted,
		To:    RideStatusDriverArriving,
		Actor: RoleDriver,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if ride.Status != RideStatusDriverArriving {
		t.Errorf("status changed to %s", ride.Status)
	}
}

func TestApplyTransition_AcceptSnapshotsDriver(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	ride := rideIn(RideStatusPending)
	oldVersion := ride.Version()

	err := ApplyTransition(ride, TransitionRequest{
		From:   RideStatusPending,
		To:     RideStatusAccepted,
		Actor:  RoleSystem,
		At:     at,
		Driver: &Driver{ID: "driver-9", Name: "Cuong", Phone: "0900", VehiclePlate: "29A-12345"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ride.DriverID != "driver-9" || ride.DriverName != "Cuong" || ride.VehiclePlate != "29A-12345" {
		t.Errorf("driver snapshot not recorded: %+v", ride)
	}
	if !ride.AcceptedAt.Equal(at) {
		t.Errorf("expected AcceptedAt %v, got %v", at, ride.AcceptedAt)
	}
	if ride.Version() <= oldVersion {
		t.Errorf("version did not advance: %v -> %v", oldVersion, ride.Version())
	}
}

func TestApplyTransition_AcceptRequiresDriver(t *testing.T) {
	t.Parallel()

	ride := rideIn(RideStatusPending)
	err := ApplyTransition(ride, TransitionRequest{
		From:  RideStatusPending,
		To:    RideStatusAccepted,
		Actor: RoleSystem,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if ride.Status != RideStatusPending || ride.HasDriver() {
		t.Errorf("ride mutated: %+v", ride)
	}
}

func TestApplyTransition_CompletionPrice(t *testing.T) {
	t.Parallel()

	t.Run("explicit price", func(t *testing.T) {
		t.Parallel()
		ride := rideIn(RideStatusInProgress)
		price := 55000.0
		err := ApplyTransition(ride, TransitionRequest{
			From:       RideStatusInProgress,
			To:         RideStatusCompleted,
			Actor:      RoleDriver,
			FinalPrice: &price,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ride.FinalPrice == nil || *ride.FinalPrice != 55000 {
			t.Errorf("expected final price 55000, got %v", ride.FinalPrice)
		}
		if ride.CompletedAt.IsZero() {
			t.Error("CompletedAt not set")
		}
	})

	t.Run("falls back to estimate", func(t *testing.T) {
		t.Parallel()
		ride := rideIn(RideStatusInProgress)
		err := ApplyTransition(ride, TransitionRequest{
			From:  RideStatusInProgress,
			To:    RideStatusCompleted,
			Actor: RoleDriver,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ride.FinalPrice == nil || *ride.FinalPrice != ride.EstimatedPrice {
			t.Errorf("expected estimate %v, got %v", ride.EstimatedPrice, ride.FinalPrice)
		}
	})
}

func TestApplyTransition_CancelRecordsReason(t *testing.T) {
	t.Parallel()

	ride := rideIn(RideStatusPending)
	err := ApplyTransition(ride, TransitionRequest{
		From:         RideStatusPending,
		To:           RideStatusCancelled,
		Actor:        RoleRider,
		CancelReason: "changed plans",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ride.CancelReason != "changed plans" || ride.CancelledBy != RoleRider || ride.CancelledAt.IsZero() {
		t.Errorf("cancellation not recorded: %+v", ride)
	}
}

func TestApplyTransition_VersionStrictlyIncreasesWithinSameInstant(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	ride := rideIn(RideStatusAccepted)
	ride.UpdatedAt = at

	steps := []RideStatus{RideStatusDriverArriving, RideStatusDriverArrived, RideStatusInProgress, RideStatusCompleted}
	seen := map[Version]bool{ride.Version(): true}
	prev := ride.Version()
	for _, to := range steps {
		if err := ApplyTransition(ride, TransitionRequest{From: ride.Status, To: to, Actor: RoleDriver, At: at}); err != nil {
			t.Fatalf("-> %s: %v", to, err)
		}
		v := ride.Version()
		if v <= prev {
			t.Errorf("-> %s: version %v not greater than %v", to, v, prev)
		}
		if seen[v] {
			t.Errorf("-> %s: version %v reused", to, v)
		}
		seen[v] = true
		prev = v
	}
}

func TestVersion_RoundTrip(t *testing.T) {
	t.Parallel()

	v := VersionOf(time.Date(2026, 3, 4, 5, 6, 7, 891011000, time.UTC))
	parsed, err := ParseVersion(v.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != v {
		t.Errorf("expected %v, got %v", v, parsed)
	}
	if VersionOf(v.Time()) != v {
		t.Error("version does not survive conversion to time and back")
	}

	for _, bad := range []string{"", "!!", "-5", "0"} {
		if _, err := ParseVersion(bad); !errors.Is(err, ErrInvalidVersion) {
			t.Errorf("ParseVersion(%q): expected ErrInvalidVersion, got %v", bad, err)
		}
	}
}
