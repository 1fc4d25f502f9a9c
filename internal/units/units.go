// Package units converts Signal K SI values (m/s, radians) into display units.
package units

import (
	"math"
	"slices"
	"strings"
)

// Speed unit names accepted in configuration and API queries.
const (
	Knots = "kn"
	MPS   = "mps"
	KMPH  = "kmph"
	MPH   = "mph"
)

// ValidUnits lists the accepted speed units.
var ValidUnits = []string{Knots, MPS, KMPH, MPH}

// IsValid reports whether unit is an accepted speed unit. Matching is case
// sensitive.
func IsValid(unit string) bool {
	return slices.Contains(ValidUnits, unit)
}

// ValidUnitsString returns the accepted units for error messages.
func ValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed in m/s to unit. Unknown units leave the
// value in m/s.
func ConvertSpeed(mps float64, unit string) float64 {
	switch unit {
	case Knots:
		return mps * 3600 / 1852
	case KMPH:
		return mps * 3.6
	case MPH:
		return mps * 2.2369362920544
	default:
		return mps
	}
}

// Degrees converts a heading in radians to degrees in [0, 360).
func Degrees(rad float64) float64 {
	d := math.Mod(rad*180/math.Pi, 360)
	if d < 0 {
		d += 360
	}
	return d
}
