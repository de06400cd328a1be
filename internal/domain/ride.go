package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusPending        RideStatus = "PENDING"
	RideStatusAccepted       RideStatus = "ACCEPTED"
	RideStatusDriverArriving RideStatus = "DRIVER_ARRIVING"
	RideStatusDriverArrived  RideStatus = "DRIVER_ARRIVED"
	RideStatusInProgress     RideStatus = "IN_PROGRESS"
	RideStatusCompleted      RideStatus = "COMPLETED"
	RideStatusCancelled      RideStatus = "CANCELLED"
)

// AllRideStatuses lists every status in lifecycle order.
var AllRideStatuses = []RideStatus{
	RideStatusPending,
	RideStatusAccepted,
	RideStatusDriverArriving,
	RideStatusDriverArrived,
	RideStatusInProgress,
	RideStatusCompleted,
	RideStatusCancelled,
}

// IsTerminal reports whether no further mutation is permitted.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// IsValid reports whether s is a known status.
func (s RideStatus) IsValid() bool {
	for _, known := range AllRideStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Role identifies who initiated an action on a ride.
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleSystem Role = "system"
)

// Location is a coordinate pair with an optional human-readable address.
type Location struct {
	Lat     float64
	Lng     float64
	Address string
}

// Ride is the aggregate of record for a single trip request.
type Ride struct {
	ID      string
	RiderID string
	// DriverID is empty until the ride is accepted.
	DriverID string

	// Snapshots captured when the party becomes relevant.
	RiderName    string
	RiderPhone   string
	DriverName   string
	DriverPhone  string
	VehiclePlate string

	VehicleTypeID     string
	Pickup            Location
	Destination       Location
	DistanceKm        float64
	EstimatedDuration time.Duration

	EstimatedPrice float64
	FinalPrice     *float64

	Status       RideStatus
	CancelReason string
	CancelledBy  Role

	RequestedAt time.Time
	AcceptedAt  time.Time
	ArrivingAt  time.Time
	ArrivedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	CancelledAt time.Time

	// UpdatedAt is the last-modified time; the concurrency token is derived from it.
	UpdatedAt time.Time
}

// Version returns the ride's current concurrency token.
func (r *Ride) Version() Version {
	return VersionOf(r.UpdatedAt)
}

// Touch advances UpdatedAt so the ride carries a token newer than any it had before.
func (r *Ride) Touch(now time.Time) {
	r.UpdatedAt = r.Version().Next(now).Time()
}

// HasDriver reports whether a driver has been assigned.
func (r *Ride) HasDriver() bool {
	return r.DriverID != ""
}
