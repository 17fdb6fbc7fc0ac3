package domain

import "math"

const (
	earthRadiusKm = 6371.0
	kmPerDegree   = 111.0
)

// Haversine returns the great-circle distance in kilometers between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Bounds is a lat/lon box.
type Bounds struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

// SearchBounds returns the flat-earth box around a point for the given radius.
// The cosine floor of 0.1 keeps the longitude span finite near the poles.
func SearchBounds(lat, lon, radiusKm float64) Bounds {
	latDelta := radiusKm / kmPerDegree
	lonDelta := radiusKm / (kmPerDegree * math.Max(0.1, math.Cos(toRad(lat))))
	return Bounds{
		LatMin: lat - latDelta,
		LatMax: lat + latDelta,
		LonMin: lon - lonDelta,
		LonMax: lon + lonDelta,
	}
}

// ClampTo intersects the box with the region's extent.
func (b Bounds) ClampTo(r Region) Bounds {
	return Bounds{
		LatMin: math.Max(b.LatMin, r.LatMin),
		LatMax: math.Min(b.LatMax, r.LatMax),
		LonMin: math.Max(b.LonMin, r.LonMin),
		LonMax: math.Min(b.LonMax, r.LonMax),
	}
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
