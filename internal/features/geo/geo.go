// Package geo provides the pure distance and proximity math used by the
// tracking subsystem. All functions are deterministic and stateless.
package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

const (
	// EarthRadiusMeters is Earth's mean radius in meters.
	EarthRadiusMeters = 6371000.0
	// EarthRadiusKm is Earth's mean radius in kilometers.
	EarthRadiusKm = 6371.0
)

// Point is a WGS84 latitude/longitude pair in degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DistanceKm returns the great-circle distance between two points in
// kilometers.
func DistanceKm(a, b Point) float64 {
	p1 := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	p2 := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return p1.Distance(p2).Radians() * EarthRadiusKm
}

// DistanceMeters returns the great-circle distance between two points in
// meters.
func DistanceMeters(a, b Point) float64 {
	return DistanceKm(a, b) * 1000
}

// IsWithinRadius reports whether point lies within radiusMeters of center.
func IsWithinRadius(point, center Point, radiusMeters float64) bool {
	return DistanceMeters(point, center) <= radiusMeters
}

// Bearing returns the initial bearing (forward azimuth) from a to b in
// degrees, where 0 is North and 90 is East.
func Bearing(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	lonDiff := (b.Longitude - a.Longitude) * math.Pi / 180

	y := math.Sin(lonDiff) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(lonDiff)
	bearing := math.Atan2(y, x)

	bearingDeg := bearing * 180 / math.Pi
	return math.Mod(bearingDeg+360, 360)
}
