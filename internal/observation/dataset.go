package observation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/jszwec/csvutil"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
)

// Nearby is an observation site recorded within a search radius.
type Nearby struct {
	Name                string   `json:"name"`
	Latitude            float64  `json:"latitude"`
	Longitude           float64  `json:"longitude"`
	DistanceKm          float64  `json:"distance_km"`
	LightPollutionIndex *float64 `json:"light_pollution_index"`
	SkyBrightnessMPSAS  *float64 `json:"sky_brightness_mpsas,omitempty"`
	LimitingMag         *float64 `json:"limiting_mag"`
	CloudCover          *float64 `json:"cloud_cover"`
	Conditions          string   `json:"conditions"`
}

// Dataset is an immutable, in-memory set of annotated observations.
type Dataset struct {
	records []Annotated
}

// LoadFile reads an annotated observation CSV from disk.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open observations: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Load decodes an annotated observation CSV. Columns the record does not know
// are ignored. Rows at exactly (0, 0) are placeholders and are dropped.
func Load(r io.Reader) (*Dataset, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Dataset{}, nil
		}
		return nil, fmt.Errorf("read observation header: %w", err)
	}

	var records []Annotated
	for line := 2; ; line++ {
		var rec Annotated
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode observation line %d: %w", line, err)
		}
		if rec.Latitude == 0 && rec.Longitude == 0 {
			continue
		}
		records = append(records, rec)
	}
	return &Dataset{records: records}, nil
}

// Len returns the number of observations held.
func (d *Dataset) Len() int {
	return len(d.records)
}

// FindNearby returns up to topN observations within radiusKm of the point,
// nearest first.
func (d *Dataset) FindNearby(lat, lon, radiusKm float64, topN int) []Nearby {
	type hit struct {
		rec      *Annotated
		distance float64
	}

	var hits []hit
	for i := range d.records {
		rec := &d.records[i]
		dist := domain.Haversine(lat, lon, rec.Latitude, rec.Longitude)
		if dist <= radiusKm {
			hits = append(hits, hit{rec: rec, distance: dist})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		switch {
		case a.distance < b.distance:
			return -1
		case a.distance > b.distance:
			return 1
		}
		return 0
	})
	if topN >= 0 && len(hits) > topN {
		hits = hits[:topN]
	}

	out := make([]Nearby, 0, len(hits))
	for _, h := range hits {
		dist := domain.RoundTo(h.distance, 2)
		label := strconv.FormatFloat(dist, 'f', -1, 64)
		out = append(out, Nearby{
			Name:                label + " km away",
			Latitude:            h.rec.Latitude,
			Longitude:           h.rec.Longitude,
			DistanceKm:          dist,
			LightPollutionIndex: h.rec.LightPollutionIndex,
			SkyBrightnessMPSAS:  h.rec.AvgMPSAS,
			LimitingMag:         h.rec.LimitingMag,
			CloudCover:          h.rec.CloudCover.Value(),
			Conditions:          "Observation location " + label + " km from center",
		})
	}
	return out
}
