// Package geo holds the spherical-earth helpers shared by the integrators
// and the flight metrics.
package geo

import "math"

// EarthRadius is the mean Earth radius in metres.
const EarthRadius = 6371000.0

// EarthRadiusKm is EarthRadius in kilometres.
const EarthRadiusKm = EarthRadius / 1000

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceKm returns the great-circle distance between two points using the
// haversine formula.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	phi1, phi2 := toRad(lat1), toRad(lat2)
	dPhi := phi2 - phi1
	dLambda := toRad(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	if a > 1 {
		a = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// BearingDeg returns the initial bearing from the first point to the second,
// clockwise from north in [0, 360).
func BearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := toRad(lat1), toRad(lat2)
	dLambda := toRad(lon2 - lon1)
	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	b := toDeg(math.Atan2(y, x))
	if b < 0 {
		b += 360
	}
	return b
}

// NormalizeLon wraps a longitude into [-180, 180].
func NormalizeLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// ClampLat limits a latitude to [-90, 90].
func ClampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

// Offset returns the east/north displacement in kilometres from the first
// point to the second on a local tangent plane.
func Offset(lat1, lon1, lat2, lon2 float64) (eastKm, northKm float64) {
	dLon := NormalizeLon(lon2 - lon1)
	eastKm = toRad(dLon) * EarthRadiusKm * math.Cos(toRad((lat1+lat2)/2))
	northKm = toRad(lat2-lat1) * EarthRadiusKm
	return eastKm, northKm
}
