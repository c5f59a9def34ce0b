package geo

import (
	"math"

	"rainbowwatch/internal/types"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// metersPerDegree is the equirectangular approximation used to convert
// cluster and grid distances into degree deltas. Good enough at map-widget
// scale; nobody clusters sightings across a hemisphere.
const metersPerDegree = 111000.0

// HaversineKm returns the great-circle distance between two coordinates in
// kilometers.
func HaversineKm(a, b types.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// metersToDegrees converts a surface distance to the equivalent degree
// delta under the equirectangular approximation.
func metersToDegrees(meters float64) float64 {
	return meters / metersPerDegree
}
