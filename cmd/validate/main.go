// Command validate checks that region rasters use only colors from the
// pollution scale and match the dimensions declared in the region catalog.
// It prints a per-region PASS/FAIL table followed by a color report.
//
// Usage:
//
//	go run ./cmd/validate -maps-dir assets/light_pollution_maps
//	go run ./cmd/validate -maps-dir assets/light_pollution_maps -region Europe
package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observability"
	"github.com/couchcryptid/dark-sky-site-finder/internal/raster"
)

const topColors = 10

// phase tracks pass/fail for one region's validation.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// colorCount is a raster color and the number of pixels painted with it.
type colorCount struct {
	color domain.RGB
	count int
}

func main() {
	mapsDir := flag.String("maps-dir", "assets/light_pollution_maps", "directory containing region raster images")
	region := flag.String("region", "", "validate only the named region (default: all regions)")
	maxPixels := flag.Int("max-pixels", raster.DefaultMaxPixels, "reject images larger than this many pixels")
	strict := flag.Bool("strict", false, "fail on missing scale colors and dimension mismatches")
	flag.Parse()

	if code := run(os.Stdout, *mapsDir, *region, *maxPixels, *strict); code != 0 {
		os.Exit(code)
	}
}

func run(w io.Writer, mapsDir, only string, maxPixels int, strict bool) int {
	catalog := domain.DefaultCatalog()
	regions := catalog.Regions()
	if only != "" {
		r, ok := catalog.Lookup(only)
		if !ok {
			fmt.Fprintf(os.Stderr, "FATAL: unknown region %q\n", only)
			return 1
		}
		regions = []domain.Region{r}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := raster.NewLoader(raster.NewDirStore(mapsDir), maxPixels, logger, observability.NewMetricsForTesting())

	fmt.Fprintln(w, "=== Light Pollution Raster Validation ===")
	fmt.Fprintf(w, "Maps: %s\n\n", mapsDir)

	phases := make([]*phase, 0, len(regions))
	for _, r := range regions {
		phases = append(phases, validateRegion(context.Background(), w, loader, r, strict))
	}

	return report(w, phases)
}

func report(w io.Writer, phases []*phase) int {
	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

func validateRegion(ctx context.Context, w io.Writer, loader raster.RegionLoader, region domain.Region, strict bool) *phase {
	p := &phase{name: region.Name}

	r, err := loader.Load(ctx, region)
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	if r.Width != region.Width || r.Height != region.Height {
		record := p.notef
		if strict {
			record = p.errorf
		}
		record("dimensions %dx%d, catalog declares %dx%d", r.Width, r.Height, region.Width, region.Height)
	}

	counts := countColors(r)
	checkColors(p, counts, strict)

	fmt.Fprintf(w, "%s (%s): %dx%d, %d unique colors\n", region.Name, region.Resource, r.Width, r.Height, len(counts))
	for _, n := range p.notes {
		fmt.Fprintf(w, "  note: %s\n", n)
	}
	fmt.Fprintf(w, "  top %d colors:\n", topColors)
	for _, c := range topN(counts, topColors) {
		fmt.Fprintf(w, "    %s -> %d pixels (%s)\n", formatColor(c.color), c.count, levelLabel(c.color))
	}
	return p
}

// checkColors flags raster colors outside the scale and scale colors the
// raster never uses. Missing colors are errors only in strict mode.
func checkColors(p *phase, counts map[domain.RGB]int, strict bool) {
	allowed := make(map[domain.RGB]float64)
	for _, e := range domain.Scale() {
		allowed[e.Color] = e.Level
	}

	var unexpected []colorCount
	for c, n := range counts {
		if _, ok := allowed[c]; !ok {
			unexpected = append(unexpected, colorCount{color: c, count: n})
		}
	}
	slices.SortFunc(unexpected, compareColors)
	for _, u := range unexpected {
		nearest, _ := domain.NearestScaleEntry(u.color)
		p.errorf("unexpected color %s in %d pixels, classifies as level %g", formatColor(u.color), u.count, nearest.Level)
	}

	for _, e := range domain.Scale() {
		if _, ok := counts[e.Color]; ok {
			continue
		}
		record := p.notef
		if strict {
			record = p.errorf
		}
		record("scale color %s (level %g) missing from map", formatColor(e.Color), e.Level)
	}
}

func countColors(r *raster.Raster) map[domain.RGB]int {
	counts := make(map[domain.RGB]int)
	for y := range r.Height {
		for x := range r.Width {
			counts[r.At(x, y)]++
		}
	}
	return counts
}

// topN returns the n most frequent colors. Equal counts order by color.
func topN(counts map[domain.RGB]int, n int) []colorCount {
	all := make([]colorCount, 0, len(counts))
	for c, k := range counts {
		all = append(all, colorCount{color: c, count: k})
	}
	slices.SortFunc(all, func(a, b colorCount) int {
		if a.count != b.count {
			return cmp.Compare(b.count, a.count)
		}
		return compareColors(a, b)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func compareColors(a, b colorCount) int {
	return cmp.Or(
		cmp.Compare(a.color.R, b.color.R),
		cmp.Compare(a.color.G, b.color.G),
		cmp.Compare(a.color.B, b.color.B),
	)
}

func levelLabel(c domain.RGB) string {
	for _, e := range domain.Scale() {
		if e.Color == c {
			return fmt.Sprintf("level %g", e.Level)
		}
	}
	return "not in scale"
}

func formatColor(c domain.RGB) string {
	return fmt.Sprintf("(%3d, %3d, %3d)", c.R, c.G, c.B)
}
