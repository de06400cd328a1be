package service

import (
	"errors"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/repository"
)

var (
	// ErrNotFound is returned when a ride, driver or rider does not exist.
	ErrNotFound = repository.ErrNotFound

	// ErrConflict is returned when another driver holds or has taken the ride.
	ErrConflict = errors.New("ride no longer available")

	// ErrStaleVersion is returned when the caller's version token is older than the stored one.
	ErrStaleVersion = errors.New("stale ride version")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = domain.ErrInvalidTransition

	// ErrPrerequisite is returned when the acting party is not in a state to act,
	// e.g. a driver that already has an active ride.
	ErrPrerequisite = errors.New("prerequisite not met")

	// ErrInvalidVersion is returned when a version token cannot be decoded.
	ErrInvalidVersion = domain.ErrInvalidVersion

	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidPickupLocation is returned when pickup coordinates are invalid.
	ErrInvalidPickupLocation = errors.New("invalid pickup location")

	// ErrInvalidDestinationLocation is returned when destination coordinates are invalid.
	ErrInvalidDestinationLocation = errors.New("invalid destination location")

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidPrice is returned for a negative estimated or final price.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidStatus is returned when a requested ride status is unknown.
	ErrInvalidStatus = errors.New("invalid ride status")

	// ErrInvalidRadius is returned for a non-positive search radius.
	ErrInvalidRadius = errors.New("invalid radius")
)

// IsValidationError reports whether err stems from bad caller input.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidVersion,
		ErrInvalidRiderID,
		ErrInvalidRideID,
		ErrInvalidDriverID,
		ErrInvalidPickupLocation,
		ErrInvalidDestinationLocation,
		ErrInvalidLocation,
		ErrInvalidPrice,
		ErrInvalidStatus,
		ErrInvalidRadius,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
