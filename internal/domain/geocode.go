package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrPlaceNotFound means a forward geocode returned no match.
var ErrPlaceNotFound = errors.New("place not found")

// LocatePlace resolves a place query to coordinates.
func LocatePlace(ctx context.Context, query string, geocoder Geocoder) (GeocodingResult, error) {
	if geocoder == nil {
		return GeocodingResult{}, errors.New("geocoding is disabled")
	}
	result, err := geocoder.ForwardGeocode(ctx, query)
	if err != nil {
		return GeocodingResult{}, fmt.Errorf("locate %q: %w", query, err)
	}
	if result.Lat == 0 && result.Lon == 0 {
		return GeocodingResult{}, fmt.Errorf("locate %q: %w", query, ErrPlaceNotFound)
	}
	return result, nil
}

// EnrichWithPlaceNames attempts to attach a place name to every result.
// Geocoding failures are logged and leave the result untouched (graceful
// degradation). A nil geocoder returns the results as-is.
func EnrichWithPlaceNames(ctx context.Context, results []SearchResult, geocoder Geocoder, logger *slog.Logger) []SearchResult {
	if geocoder == nil {
		return results
	}
	for i := range results {
		if ctx.Err() != nil {
			return results
		}
		result, err := geocoder.ReverseGeocode(ctx, results[i].Latitude, results[i].Longitude)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"site", results[i].Name,
				"lat", results[i].Latitude,
				"lon", results[i].Longitude,
				"error", err,
			)
			continue
		}
		if result.FormattedAddress != "" {
			results[i].PlaceName = result.FormattedAddress
		}
	}
	return results
}
