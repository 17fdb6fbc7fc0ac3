// Package domain models light-pollution raster maps and the site records
// derived from them.
//
// # Data Source
//
// Each continental region is covered by one pre-rendered raster image whose
// pixels are painted with one of fifteen fixed colors. Every color stands for a
// half-step light-pollution level on a 0–7.5 scale, where 0 is a pristine sky
// and 7.5 is a city core. The images are equirectangular: pixel columns are
// evenly spaced in longitude and pixel rows evenly spaced in latitude, with
// row 0 at the region's northern edge.
//
// # Regions
//
// The [Catalog] holds the regions in a fixed order. A coordinate is resolved
// to the first region whose box contains it, bounds inclusive. Several boxes
// overlap (Europe, Africa and Asia share longitude bands), so the order is part
// of the contract. [Catalog.Overlaps] lists the overlapping pairs so operators
// can see which areas are decided by order alone.
//
// # Projection
//
// Coordinates map to pixels with round-half-to-even and clamping:
//
//	x = round((lon - lon_min) / (lon_max - lon_min) * (width - 1))
//	y = round((lat_max - lat) / (lat_max - lat_min) * (height - 1))
//
// Pixels map back through their centers:
//
//	lon = lon_min + (x + 0.5) / width  * (lon_max - lon_min)
//	lat = lat_max - (y + 0.5) / height * (lat_max - lat_min)
//
// The two formulas are not exact inverses; a round trip lands within one pixel.
//
// # Scale
//
// [Classify] maps an arbitrary RGB triple to the level of the nearest scale
// color by squared Euclidean distance; ties go to the earlier scale entry.
// Each [ScaleEntry] also carries the sky brightness (MPSAS, magnitudes per
// square arcsecond) and light pollution index (artificial over natural sky
// brightness) ranges that the step represents.
package domain
