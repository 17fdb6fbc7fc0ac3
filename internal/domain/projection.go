package domain

import "math"

// ToPixel projects a coordinate onto the region's pixel grid, clamped to the
// grid bounds. Halfway values round to even.
func (r Region) ToPixel(lat, lon float64) (x, y int) {
	fx := (lon - r.LonMin) / (r.LonMax - r.LonMin) * float64(r.Width-1)
	fy := (r.LatMax - lat) / (r.LatMax - r.LatMin) * float64(r.Height-1)
	x = clamp(int(math.RoundToEven(fx)), 0, r.Width-1)
	y = clamp(int(math.RoundToEven(fy)), 0, r.Height-1)
	return x, y
}

// ToLatLon returns the coordinate of the center of pixel (x, y).
func (r Region) ToLatLon(x, y int) (lat, lon float64) {
	lon = r.LonMin + (float64(x)+0.5)/float64(r.Width)*(r.LonMax-r.LonMin)
	lat = r.LatMax - (float64(y)+0.5)/float64(r.Height)*(r.LatMax-r.LatMin)
	return lat, lon
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
