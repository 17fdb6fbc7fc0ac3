package observation

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jszwec/csvutil"

	"github.com/couchcryptid/dark-sky-site-finder/internal/search"
)

// Leveler classifies the raster pixel under a point.
type Leveler interface {
	LevelAt(ctx context.Context, lat, lon float64) (search.Level, error)
}

// AnnotateStats summarizes an annotation run.
type AnnotateStats struct {
	Read      int
	Skipped   int
	Covered   int
	Uncovered int
}

// Annotate reads raw observations from in and writes them to out with the
// pollution reading of each point appended. Placeholder rows at (0, 0) are
// skipped; points outside every region are written without a reading.
func Annotate(ctx context.Context, in io.Reader, out io.Writer, lv Leveler, logger *slog.Logger) (AnnotateStats, error) {
	var stats AnnotateStats

	dec, err := csvutil.NewDecoder(csv.NewReader(in))
	if err != nil {
		return stats, fmt.Errorf("read observation header: %w", err)
	}

	w := csv.NewWriter(out)
	enc := csvutil.NewEncoder(w)
	if err := enc.EncodeHeader(Annotated{}); err != nil {
		return stats, fmt.Errorf("write header: %w", err)
	}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return stats, fmt.Errorf("decode observation line %d: %w", line, err)
		}
		stats.Read++

		if rec.Latitude == 0 && rec.Longitude == 0 {
			stats.Skipped++
			continue
		}

		annotated := Annotated{Record: rec}
		level, err := lv.LevelAt(ctx, rec.Latitude, rec.Longitude)
		if err != nil {
			return stats, fmt.Errorf("classify line %d: %w", line, err)
		}
		if level.Covered {
			stats.Covered++
			annotated.LightPollutionIndex = ptr(level.Value)
			annotated.MinMPSAS = ptr(level.Entry.MinMPSAS)
			annotated.AvgMPSAS = ptr(level.Entry.AvgMPSAS)
			annotated.MinLPI = ptr(level.Entry.MinLPI)
			annotated.AvgLPI = ptr(level.Entry.AvgLPI)
		} else {
			stats.Uncovered++
			logger.Debug("observation outside supported maps", "line", line, "lat", rec.Latitude, "lon", rec.Longitude)
		}

		if err := enc.Encode(annotated); err != nil {
			return stats, fmt.Errorf("encode line %d: %w", line, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return stats, fmt.Errorf("flush annotated observations: %w", err)
	}
	return stats, nil
}

func ptr(v float64) *float64 { return &v }
