// Package geo holds the great-circle math shared by the driver registries and
// an in-process registry used for single-node runs and tests.
package geo

import (
	"math"
	"sort"
)

// EarthRadiusKm is the mean earth radius used for Haversine distances.
const EarthRadiusKm = 6371.0

// radiusToleranceKm absorbs floating point error at the radius boundary.
const radiusToleranceKm = 1e-9

// Candidate is a driver found by a radius query.
type Candidate struct {
	DriverID   string
	Lat        float64
	Lng        float64
	DistanceKm float64
}

// DistanceKm returns the great-circle distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// InRadius reports whether distanceKm falls inside radiusKm, boundary included.
func InRadius(distanceKm, radiusKm float64) bool {
	return distanceKm <= radiusKm+radiusToleranceKm
}

// SortByDistance orders candidates nearest first, ties broken by driver ID.
func SortByDistance(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DistanceKm == candidates[j].DistanceKm {
			return candidates[i].DriverID < candidates[j].DriverID
		}
		return candidates[i].DistanceKm < candidates[j].DistanceKm
	})
}

// ValidLatitude reports whether lat is a usable latitude.
func ValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90 && !math.IsNaN(lat)
}

// ValidLongitude reports whether lng is a usable longitude.
func ValidLongitude(lng float64) bool {
	return lng >= -180 && lng <= 180 && !math.IsNaN(lng)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
