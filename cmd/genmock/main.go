// Command genmock writes synthetic light pollution rasters for every catalog
// region, plus matching query, response, and observation fixtures. The
// rasters are paletted PNGs painted with the pollution scale: bright city
// cores fading to dark sky. Responses are computed by the real search engine
// over the generated rasters so fixtures match service behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -maps-out data/mock/maps \
//	  -queries-out data/mock/site_queries.json \
//	  -responses-out data/mock/site_responses.json \
//	  -observations-out data/mock/observations.csv
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jszwec/csvutil"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observability"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observation"
	"github.com/couchcryptid/dark-sky-site-finder/internal/raster"
	"github.com/couchcryptid/dark-sky-site-finder/internal/search"
)

// city is a light source painted onto the mock rasters.
type city struct {
	name     string
	lat, lon float64
	radiusKm float64
	peak     int // index into the pollution scale at the core
}

var cities = []city{
	{name: "New York", lat: 40.71, lon: -74.01, radiusKm: 180, peak: 14},
	{name: "Chicago", lat: 41.88, lon: -87.63, radiusKm: 150, peak: 13},
	{name: "Denver", lat: 39.74, lon: -104.99, radiusKm: 110, peak: 12},
	{name: "Mexico City", lat: 19.43, lon: -99.13, radiusKm: 140, peak: 14},
	{name: "Sao Paulo", lat: -23.55, lon: -46.63, radiusKm: 160, peak: 14},
	{name: "Santiago", lat: -33.45, lon: -70.67, radiusKm: 100, peak: 12},
	{name: "London", lat: 51.51, lon: -0.13, radiusKm: 150, peak: 14},
	{name: "Madrid", lat: 40.42, lon: -3.70, radiusKm: 110, peak: 13},
	{name: "Cairo", lat: 30.04, lon: 31.24, radiusKm: 130, peak: 13},
	{name: "Lagos", lat: 6.52, lon: 3.38, radiusKm: 100, peak: 12},
	{name: "Tokyo", lat: 35.68, lon: 139.69, radiusKm: 200, peak: 14},
	{name: "Delhi", lat: 28.61, lon: 77.21, radiusKm: 160, peak: 14},
	{name: "Sydney", lat: -33.87, lon: 151.21, radiusKm: 120, peak: 13},
	{name: "Perth", lat: -31.95, lon: 115.86, radiusKm: 80, peak: 11},
}

// queryRadiusKm is the search radius of the generated queries.
const queryRadiusKm = 150

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	mapsOut := flag.String("maps-out", "", "output directory for region rasters")
	queriesOut := flag.String("queries-out", "", "output path for the site query JSON fixture")
	responsesOut := flag.String("responses-out", "", "optional output path for computed responses")
	observationsOut := flag.String("observations-out", "", "optional output path for an observation CSV")
	scale := flag.Float64("scale", 0.02, "raster size as a fraction of the catalog dimensions")
	seed := flag.Uint64("seed", 42, "random seed for background noise and observations")
	flag.Parse()

	if *mapsOut == "" || *queriesOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -maps-out, -queries-out")
	}
	if *scale <= 0 || *scale > 1 {
		return fmt.Errorf("-scale must be in (0, 1], got %g", *scale)
	}

	// Fixed clock for reproducible computed_at stamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.September, 3, 2, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	catalog := domain.DefaultCatalog()
	if err := os.MkdirAll(*mapsOut, 0o755); err != nil {
		return err
	}
	for i, region := range catalog.Regions() {
		rng := rand.New(rand.NewPCG(*seed, uint64(i)))
		img := paint(scaled(region, *scale), rng)
		path := filepath.Join(*mapsOut, region.Resource)
		if err := writePNG(path, img); err != nil {
			return fmt.Errorf("writing %s: %w", region.Resource, err)
		}
		b := img.Bounds()
		log.Printf("%s: %dx%d -> %s", region.Name, b.Dx(), b.Dy(), path)
	}

	queries := sampleQueries()
	if err := writeJSON(*queriesOut, queries); err != nil {
		return err
	}
	log.Printf("queries: %d -> %s", len(queries), *queriesOut)

	if *responsesOut != "" {
		responses, err := computeResponses(catalog, *mapsOut, queries)
		if err != nil {
			return err
		}
		if err := writeJSON(*responsesOut, responses); err != nil {
			return err
		}
		log.Printf("responses: %d -> %s", len(responses), *responsesOut)
	}

	if *observationsOut != "" {
		records := sampleObservations(rand.New(rand.NewPCG(*seed, uint64(len(cities)))))
		if err := writeObservations(*observationsOut, records); err != nil {
			return err
		}
		log.Printf("observations: %d -> %s", len(records), *observationsOut)
	}
	return nil
}

func scaled(r domain.Region, factor float64) domain.Region {
	w := max(1, int(math.Round(float64(r.Width)*factor)))
	h := max(1, int(math.Round(float64(r.Height)*factor)))
	return r.WithDimensions(w, h)
}

// paint renders the region with every city as a radial glow over a mostly
// dark background. The brightest glow wins where cities overlap.
func paint(region domain.Region, rng *rand.Rand) *image.Paletted {
	entries := domain.Scale()
	palette := make(color.Palette, len(entries))
	for i, e := range entries {
		palette[i] = color.RGBA{R: e.Color.R, G: e.Color.G, B: e.Color.B, A: 0xff}
	}
	img := image.NewPaletted(image.Rect(0, 0, region.Width, region.Height), palette)

	for y := range region.Height {
		for x := range region.Width {
			lat, lon := region.ToLatLon(x, y)
			idx := 0
			if rng.IntN(10) == 0 {
				idx = 1
			}
			for _, c := range cities {
				idx = max(idx, glow(c, lat, lon))
			}
			img.SetColorIndex(x, y, uint8(idx))
		}
	}
	return img
}

// glow returns the scale index the city contributes at a point, falling off
// linearly from its peak to zero at its radius.
func glow(c city, lat, lon float64) int {
	d := domain.Haversine(c.lat, c.lon, lat, lon)
	if d >= c.radiusKm {
		return 0
	}
	return int(math.Round(float64(c.peak) * (1 - d/c.radiusKm)))
}

func sampleQueries() []domain.SiteQuery {
	queries := make([]domain.SiteQuery, 0, len(cities)+1)
	for i, c := range cities {
		queries = append(queries, domain.SiteQuery{
			ID:       fmt.Sprintf("mock-%02d", i+1),
			Lat:      c.lat,
			Lon:      c.lon,
			RadiusKm: queryRadiusKm,
			TopN:     5,
		})
	}
	// Mid-Pacific, outside every region.
	queries = append(queries, domain.SiteQuery{
		ID: "mock-uncovered", Lat: 0, Lon: -150, RadiusKm: queryRadiusKm, TopN: 5,
	})
	return queries
}

func computeResponses(catalog *domain.Catalog, mapsDir string, queries []domain.SiteQuery) ([]domain.SearchResponse, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	loader := raster.NewLoader(raster.NewDirStore(mapsDir), raster.DefaultMaxPixels, logger, metrics)
	engine := search.NewEngine(catalog, raster.NewCache(loader, logger, metrics), logger, metrics)

	ctx := context.Background()
	responses := make([]domain.SearchResponse, 0, len(queries))
	for _, q := range queries {
		outcome, err := engine.Search(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", q.ID, err)
		}
		responses = append(responses, domain.NewSearchResponse(q, outcome))
	}
	return responses, nil
}

func sampleObservations(rng *rand.Rand) []observation.Record {
	clouds := []string{"clear", "1/4 of sky", "1/2 of sky", "over 1/2 of sky"}
	records := make([]observation.Record, 0, 2*len(cities))
	for i, c := range cities {
		for j := range 2 {
			var cover observation.CloudCover
			_ = cover.UnmarshalText([]byte(clouds[rng.IntN(len(clouds))]))
			mag := math.Round((2+rng.Float64()*4)*10) / 10
			records = append(records, observation.Record{
				ID:          fmt.Sprintf("obs-%02d-%d", i+1, j+1),
				ObsType:     "SQM",
				Latitude:    domain.RoundTo(c.lat+(rng.Float64()-0.5), 4),
				Longitude:   domain.RoundTo(c.lon+(rng.Float64()-0.5), 4),
				UTDate:      "2024-09-03",
				UTTime:      fmt.Sprintf("0%d:%02d", 2+j, rng.IntN(60)),
				LimitingMag: &mag,
				CloudCover:  cover,
				Country:     c.name,
			})
		}
	}
	return records
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeObservations(path string, records []observation.Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := csvutil.Marshal(records)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
