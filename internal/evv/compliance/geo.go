package compliance

import (
	"math"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
)

// earthRadiusMiles is the mean earth radius used for great-circle distance.
const earthRadiusMiles = 3958.8

// distanceMiles computes the haversine distance between two GPS points.
func distanceMiles(a, b domain.GeoPoint) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
