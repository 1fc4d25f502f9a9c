// Package geo provides spherical-earth geodesy for vessel positions: forward
// projection along a bearing, dead reckoning and great-circle distance.
package geo

import (
	"math"
	"time"
)

// EarthRadiusMeters is the mean radius of the earth used by all calculations.
const EarthRadiusMeters = 6371e3

// Point is a position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func toRadians(v float64) float64 { return v * math.Pi / 180 }
func toDegrees(v float64) float64 { return v * 180 / math.Pi }

// Project returns the point reached by travelling distanceMeters from origin
// along the initial great-circle bearing (radians, clockwise from true north).
// The returned longitude is normalised into (-180, 180].
func Project(origin Point, bearing, distanceMeters float64) Point {
	delta := distanceMeters / EarthRadiusMeters

	phi1 := toRadians(origin.Lat)
	lambda1 := toRadians(origin.Lon)

	sinPhi1, cosPhi1 := math.Sincos(phi1)
	sinDelta, cosDelta := math.Sincos(delta)
	sinTheta, cosTheta := math.Sincos(bearing)

	sinPhi2 := sinPhi1*cosDelta + cosPhi1*sinDelta*cosTheta
	phi2 := math.Asin(sinPhi2)
	y := sinTheta * sinDelta * cosPhi1
	x := cosDelta - sinPhi1*sinPhi2
	lambda2 := lambda1 + math.Atan2(y, x)

	return Point{Lat: toDegrees(phi2), Lon: NormalizeLon(toDegrees(lambda2))}
}

// NormalizeLon wraps a longitude in degrees into (-180, 180].
func NormalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	lon -= 180
	if lon == -180 {
		return 180
	}
	return lon
}

// DeadReckon projects a constant-course trail from origin: one point per
// step up to and including horizon. speed is in metres per second. A
// non-positive step or horizon yields no points.
func DeadReckon(origin Point, bearing, speed float64, horizon, step time.Duration) []Point {
	if step <= 0 || horizon < step {
		return nil
	}
	n := int(horizon / step)
	trail := make([]Point, 0, n)
	for i := 1; i <= n; i++ {
		elapsed := (time.Duration(i) * step).Seconds()
		trail = append(trail, Project(origin, bearing, speed*elapsed))
	}
	return trail
}

// Distance returns the haversine great-circle distance between a and b in
// metres.
func Distance(a, b Point) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)
	la1 := toRadians(a.Lat)
	la2 := toRadians(b.Lat)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FromLonLat converts [lon, lat] coordinate pairs, as used by GeoJSON, into
// points. Pairs with fewer than two members are skipped.
func FromLonLat(coords [][]float64) []Point {
	points := make([]Point, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		points = append(points, Point{Lat: c[1], Lon: c[0]})
	}
	return points
}
