package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name string
		mps  float64
		unit string
		want float64
	}{
		{"one knot", 1852.0 / 3600, Knots, 1},
		{"10 m/s to knots", 10, Knots, 19.4384},
		{"10 m/s to kmph", 10, KMPH, 36},
		{"10 m/s to mph", 10, MPH, 22.3694},
		{"10 m/s to mps", 10, MPS, 10},
		{"unknown stays in mps", 10, "furlongs", 10},
		{"zero", 0, Knots, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertSpeed(tt.mps, tt.unit)
			if !scalar.EqualWithinAbs(got, tt.want, 1e-3) {
				t.Errorf("ConvertSpeed(%v, %q) = %v, want %v", tt.mps, tt.unit, got, tt.want)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		assert.True(t, IsValid(u), u)
	}
	for _, u := range []string{"", "KN", "knots", "kph"} {
		assert.False(t, IsValid(u), u)
	}
	assert.Equal(t, "kn, mps, kmph, mph", ValidUnitsString())
}

func TestDegrees(t *testing.T) {
	tests := []struct {
		rad  float64
		want float64
	}{
		{0, 0},
		{math.Pi / 2, 90},
		{math.Pi, 180},
		{-math.Pi / 2, 270},
		{2 * math.Pi, 0},
		{5 * math.Pi / 2, 90},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Degrees(tt.rad), 1e-9, "rad=%v", tt.rad)
	}
}
