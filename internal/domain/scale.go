package domain

// RGB is an opaque 8-bit color.
type RGB struct {
	R, G, B uint8
}

// ScaleEntry is one step of the pollution color scale.
type ScaleEntry struct {
	Color    RGB
	Level    float64
	MinMPSAS float64 // darkest sky brightness of the step, mag/arcsec²
	AvgMPSAS float64
	MinLPI   float64 // light pollution index, artificial / natural brightness
	AvgLPI   float64
}

// DefaultLevel is returned by the classifier when no scale entry is available.
const DefaultLevel = 4.0

// scale is ordered darkest to brightest. Order breaks classification ties.
var scale = []ScaleEntry{
	{Color: RGB{0, 0, 0}, Level: 0, MinMPSAS: 22.00, AvgMPSAS: 21.995, MinLPI: 0.00, AvgLPI: 0.005},
	{Color: RGB{34, 34, 34}, Level: 1, MinMPSAS: 21.99, AvgMPSAS: 21.96, MinLPI: 0.01, AvgLPI: 0.035},
	{Color: RGB{66, 66, 66}, Level: 1.5, MinMPSAS: 21.93, AvgMPSAS: 21.91, MinLPI: 0.06, AvgLPI: 0.085},
	{Color: RGB{20, 47, 114}, Level: 2, MinMPSAS: 21.89, AvgMPSAS: 21.85, MinLPI: 0.11, AvgLPI: 0.15},
	{Color: RGB{33, 84, 216}, Level: 2.5, MinMPSAS: 21.81, AvgMPSAS: 21.75, MinLPI: 0.19, AvgLPI: 0.26},
	{Color: RGB{15, 87, 20}, Level: 3, MinMPSAS: 21.69, AvgMPSAS: 21.60, MinLPI: 0.33, AvgLPI: 0.455},
	{Color: RGB{31, 161, 42}, Level: 3.5, MinMPSAS: 21.51, AvgMPSAS: 21.38, MinLPI: 0.58, AvgLPI: 0.79},
	{Color: RGB{110, 100, 30}, Level: 4, MinMPSAS: 21.25, AvgMPSAS: 21.08, MinLPI: 1.0, AvgLPI: 1.365},
	{Color: RGB{184, 166, 37}, Level: 4.5, MinMPSAS: 20.91, AvgMPSAS: 20.70, MinLPI: 1.73, AvgLPI: 2.365},
	{Color: RGB{191, 100, 30}, Level: 5, MinMPSAS: 20.49, AvgMPSAS: 20.255, MinLPI: 3.0, AvgLPI: 4.1},
	{Color: RGB{253, 150, 80}, Level: 5.5, MinMPSAS: 20.02, AvgMPSAS: 19.76, MinLPI: 5.2, AvgLPI: 7.1},
	{Color: RGB{251, 90, 73}, Level: 6, MinMPSAS: 19.50, AvgMPSAS: 19.225, MinLPI: 9.0, AvgLPI: 12.295},
	{Color: RGB{251, 153, 138}, Level: 6.5, MinMPSAS: 18.95, AvgMPSAS: 18.665, MinLPI: 15.59, AvgLPI: 21.295},
	{Color: RGB{160, 160, 160}, Level: 7, MinMPSAS: 18.38, AvgMPSAS: 18.09, MinLPI: 27.0, AvgLPI: 36.885},
	{Color: RGB{242, 242, 242}, Level: 7.5, MinMPSAS: 17.80, AvgMPSAS: 17.80, MinLPI: 46.77, AvgLPI: 46.77},
}

// exact indexes the scale by color so rasters painted with scale colors skip
// the distance search.
var exact = func() map[RGB]int {
	m := make(map[RGB]int, len(scale))
	for i, e := range scale {
		if _, ok := m[e.Color]; !ok {
			m[e.Color] = i
		}
	}
	return m
}()

// Scale returns a copy of the pollution color scale in order.
func Scale() []ScaleEntry {
	out := make([]ScaleEntry, len(scale))
	copy(out, scale)
	return out
}

// Classify returns the pollution level of the scale color nearest to c.
func Classify(c RGB) float64 {
	e, ok := NearestScaleEntry(c)
	if !ok {
		return DefaultLevel
	}
	return e.Level
}

// NearestScaleEntry returns the scale entry nearest to c by squared Euclidean
// distance. The first entry wins ties.
func NearestScaleEntry(c RGB) (ScaleEntry, bool) {
	if i, ok := exact[c]; ok {
		return scale[i], true
	}
	return nearestIn(scale, c)
}

func nearestIn(entries []ScaleEntry, c RGB) (ScaleEntry, bool) {
	if len(entries) == 0 {
		return ScaleEntry{}, false
	}
	best := 0
	bestDist := -1
	for i, e := range entries {
		d := sqDist(c, e.Color)
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return entries[best], true
}

// ScaleEntryForLevel returns the scale step with exactly the given level.
func ScaleEntryForLevel(level float64) (ScaleEntry, bool) {
	for _, e := range scale {
		if e.Level == level {
			return e, true
		}
	}
	return ScaleEntry{}, false
}

func sqDist(a, b RGB) int {
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	return dr*dr + dg*dg + db*db
}
