// Package geo holds the straight-line distance helpers used for responder ranking.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// MinEtaMinutes is the floor applied to every ETA estimate.
const MinEtaMinutes = 2

// minutesPerKm is the flat travel-time heuristic (~20 km/h average urban speed).
const minutesPerKm = 3.0

type Point struct {
	Lat float64
	Lng float64
}

// DistanceKm returns the great-circle distance between a and b in kilometers.
func DistanceKm(a, b Point) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// EtaMinutes estimates travel time from a straight-line distance.
// There is no road network behind this number; it is only good for ranking
// and for the rough ETA shown to dispatchers.
func EtaMinutes(distanceKm float64) int {
	eta := int(math.Round(distanceKm * minutesPerKm))
	if eta < MinEtaMinutes {
		return MinEtaMinutes
	}
	return eta
}

// RoundKm rounds a distance to one decimal for display.
func RoundKm(distanceKm float64) float64 {
	return math.Round(distanceKm*10) / 10
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
