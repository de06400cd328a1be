package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a requested status change is not
// reachable from the ride's current status for the acting party.
var ErrInvalidTransition = errors.New("invalid status transition")

// rideTransitions lists every legal edge and who may trigger it. Cancellation
// is only reachable from PENDING; later-stage cancellation is rejected.
var rideTransitions = map[RideStatus]map[RideStatus][]Role{
	RideStatusPending: {
		RideStatusAccepted:  {RoleSystem},
		RideStatusCancelled: {RoleRider, RoleSystem},
	},
	RideStatusAccepted: {
		RideStatusDriverArriving: {RoleDriver},
	},
	RideStatusDriverArriving: {
		RideStatusDriverArrived: {RoleDriver},
	},
	RideStatusDriverArrived: {
		RideStatusInProgress: {RoleDriver},
	},
	RideStatusInProgress: {
		RideStatusCompleted: {RoleDriver},
	},
}

// CanTransition reports whether actor may move a ride from one status to another.
func CanTransition(from, to RideStatus, actor Role) bool {
	actors, ok := rideTransitions[from][to]
	if !ok {
		return false
	}
	for _, a := range actors {
		if a == actor {
			return true
		}
	}
	return false
}

// TransitionRequest describes one status change.
type TransitionRequest struct {
	From  RideStatus
	To    RideStatus
	Actor Role
	At    time.Time

	// Driver is required when moving to ACCEPTED.
	Driver *Driver
	// FinalPrice is used when moving to COMPLETED; nil falls back to the estimate.
	FinalPrice *float64
	// CancelReason is recorded when moving to CANCELLED.
	CancelReason string
}

// ApplyTransition validates req against the ride's persisted status and the
// transition table and, when legal, mutates the ride and mints a new version.
// On error the ride is left untouched.
func ApplyTransition(ride *Ride, req TransitionRequest) error {
	if ride.Status.IsTerminal() {
		return fmt.Errorf("%w: ride is %s", ErrInvalidTransition, ride.Status)
	}
	if req.From != ride.Status {
		return fmt.Errorf("%w: ride is %s, not %s", ErrInvalidTransition, ride.Status, req.From)
	}
	if !CanTransition(req.From, req.To, req.Actor) {
		return fmt.Errorf("%w: %s -> %s by %s", ErrInvalidTransition, req.From, req.To, req.Actor)
	}

	at := req.At
	if at.IsZero() {
		at = time.Now()
	}

	switch req.To {
	case RideStatusAccepted:
		if req.Driver == nil || req.Driver.ID == "" {
			return fmt.Errorf("%w: accepting requires a driver", ErrInvalidTransition)
		}
		if ride.HasDriver() {
			return fmt.Errorf("%w: ride already has driver", ErrInvalidTransition)
		}
		ride.DriverID = req.Driver.ID
		ride.DriverName = req.Driver.Name
		ride.DriverPhone = req.Driver.Phone
		ride.VehiclePlate = req.Driver.VehiclePlate
		ride.AcceptedAt = at
	case RideStatusDriverArriving:
		ride.ArrivingAt = at
	case RideStatusDriverArrived:
		ride.ArrivedAt = at
	case RideStatusInProgress:
		ride.StartedAt = at
	case RideStatusCompleted:
		price := ride.EstimatedPrice
		if req.FinalPrice != nil {
			price = *req.FinalPrice
		}
		ride.FinalPrice = &price
		ride.CompletedAt = at
	case RideStatusCancelled:
		ride.CancelledAt = at
		ride.CancelReason = req.CancelReason
		ride.CancelledBy = req.Actor
	}

	ride.Status = req.To
	ride.Touch(at)
	return nil
}
