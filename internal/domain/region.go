package domain

import (
	"errors"
	"fmt"
)

// Region is a rectangular lat/lon box backed by one raster image.
type Region struct {
	Name     string  `json:"name"`
	LonMin   float64 `json:"lon_min"`
	LatMin   float64 `json:"lat_min"`
	LonMax   float64 `json:"lon_max"`
	LatMax   float64 `json:"lat_max"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Resource string  `json:"resource"`
}

// Contains reports whether the coordinate falls inside the region, bounds inclusive.
func (r Region) Contains(lat, lon float64) bool {
	return lat >= r.LatMin && lat <= r.LatMax && lon >= r.LonMin && lon <= r.LonMax
}

// Validate checks the region's structural invariants.
func (r Region) Validate() error {
	if r.Name == "" {
		return errors.New("region name is required")
	}
	if r.LonMin >= r.LonMax {
		return fmt.Errorf("region %s: lon_min %.4f must be below lon_max %.4f", r.Name, r.LonMin, r.LonMax)
	}
	if r.LatMin >= r.LatMax {
		return fmt.Errorf("region %s: lat_min %.4f must be below lat_max %.4f", r.Name, r.LatMin, r.LatMax)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("region %s: dimensions %dx%d must be positive", r.Name, r.Width, r.Height)
	}
	if r.Resource == "" {
		return fmt.Errorf("region %s: resource is required", r.Name)
	}
	return nil
}

// WithDimensions returns a copy of the region with its pixel grid replaced.
// Used when a raster's actual size differs from the declared one.
func (r Region) WithDimensions(width, height int) Region {
	r.Width = width
	r.Height = height
	return r
}

// overlaps reports whether two region boxes share any area or edge.
func (r Region) overlaps(o Region) bool {
	return r.LonMin <= o.LonMax && o.LonMin <= r.LonMax &&
		r.LatMin <= o.LatMax && o.LatMin <= r.LatMax
}

// Overlap names two regions whose boxes intersect.
type Overlap struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

// Catalog is an ordered, immutable set of regions. Resolution is first match wins.
type Catalog struct {
	regions []Region
	byName  map[string]int
}

// NewCatalog validates the regions and builds a catalog preserving their order.
func NewCatalog(regions ...Region) (*Catalog, error) {
	c := &Catalog{
		regions: make([]Region, 0, len(regions)),
		byName:  make(map[string]int, len(regions)),
	}
	for _, r := range regions {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate region name %q", r.Name)
		}
		c.byName[r.Name] = len(c.regions)
		c.regions = append(c.regions, r)
	}
	return c, nil
}

// DefaultRegions returns the continental map set in resolution order.
func DefaultRegions() []Region {
	return []Region{
		{Name: "North America", LonMin: -180, LatMin: 7, LonMax: -51, LatMax: 75, Width: 15480, Height: 8160, Resource: "NorthAmerica2024.png"},
		{Name: "South America", LonMin: -93, LatMin: -57, LonMax: -33, LatMax: 14, Width: 7200, Height: 8520, Resource: "SouthAmerica2024.png"},
		{Name: "Europe", LonMin: -32, LatMin: 34, LonMax: 70, LatMax: 75, Width: 12240, Height: 4920, Resource: "Europe2024.png"},
		{Name: "Africa", LonMin: -26, LatMin: -36, LonMax: 64, LatMax: 38, Width: 10800, Height: 8800, Resource: "Africa2024.png"},
		{Name: "Asia", LonMin: 60, LatMin: 5, LonMax: 180, LatMax: 75, Width: 14400, Height: 8400, Resource: "Asia2024.png"},
		{Name: "Australia", LonMin: 94, LatMin: -48, LonMax: 180, LatMax: 8, Width: 10320, Height: 6720, Resource: "Australia2024.png"},
	}
}

// DefaultCatalog builds the catalog of the continental map set.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultRegions()...)
	if err != nil {
		panic(fmt.Sprintf("default catalog: %v", err))
	}
	return c
}

// Resolve returns the first region, in catalog order, containing the coordinate.
func (c *Catalog) Resolve(lat, lon float64) (Region, bool) {
	for _, r := range c.regions {
		if r.Contains(lat, lon) {
			return r, true
		}
	}
	return Region{}, false
}

// Lookup returns the region with the given name.
func (c *Catalog) Lookup(name string) (Region, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Region{}, false
	}
	return c.regions[i], true
}

// Regions returns a copy of the catalog in resolution order.
func (c *Catalog) Regions() []Region {
	out := make([]Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// Overlaps lists every pair of regions whose boxes intersect, in catalog order.
// Points in an overlap always resolve to the first region of the pair.
func (c *Catalog) Overlaps() []Overlap {
	var out []Overlap
	for i := range c.regions {
		for j := i + 1; j < len(c.regions); j++ {
			if c.regions[i].overlaps(c.regions[j]) {
				out = append(out, Overlap{First: c.regions[i].Name, Second: c.regions[j].Name})
			}
		}
	}
	return out
}
