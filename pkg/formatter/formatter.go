// Package formatter converts raw activity metrics into human-readable strings.
// All functions are pure; callers decide what to do with formatting errors.
package formatter

import (
	"errors"
	"fmt"
	"math"
)

// Unit distances in meters, used for pace conversion.
const (
	MetersPerKm   = 1000.0
	MetersPerMile = 1609.344
)

// ErrNoSpeed is returned when a pace cannot be computed from the given speed.
var ErrNoSpeed = errors.New("formatter: speed is zero or negative")

// ZeroPad left-pads a non-negative number with zeros up to the given width.
func ZeroPad(n, places int) string {
	return fmt.Sprintf("%0*d", places, n)
}

// Duration renders a number of seconds as M:SS, or H:MM:SS once the value
// reaches an hour.
func Duration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Pace converts a speed in m/s into time-per-unit-distance, formatted via
// Duration. unitDistance is in meters (MetersPerKm or MetersPerMile).
func Pace(unitDistance, speed float64) (string, error) {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return "", ErrNoSpeed
	}
	secs := unitDistance / speed
	return Duration(int(math.Round(secs))), nil
}

// compassFallback is used when the wind direction cannot be bucketed.
const compassFallback = "?"

var compassPoints = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Compass buckets a wind direction in degrees to the nearest 45-degree
// compass point. Inputs outside [0, 360) are normalized first; non-finite
// inputs map to the fallback label.
func Compass(degrees float64) string {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return compassFallback
	}
	degrees = math.Mod(degrees, 360)
	if degrees < 0 {
		degrees += 360
	}
	idx := int(math.Round(degrees/45.0)) % len(compassPoints)
	return compassPoints[idx]
}

// Distance renders a distance in meters as kilometers with two decimals.
func Distance(meters float64) string {
	return fmt.Sprintf("%.2f km", meters/MetersPerKm)
}
