// Package geo provides great-circle distance between two coordinates.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius used by the haversine formula
const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance in meters between two
// latitude/longitude pairs, computed with the haversine formula.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
