package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock geocoder ---

type mockGeocoder struct {
	forwardResult GeocodingResult
	forwardErr    error
	reverseResult GeocodingResult
	reverseErr    error
	forwardCalls  int
	reverseCalls  int
}

func (m *mockGeocoder) ForwardGeocode(_ context.Context, _ string) (GeocodingResult, error) {
	m.forwardCalls++
	return m.forwardResult, m.forwardErr
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (GeocodingResult, error) {
	m.reverseCalls++
	return m.reverseResult, m.reverseErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleResults() []SearchResult {
	return []SearchResult{
		NewSearchResult(1, 44.1, -110.2, 12.5, 0),
		NewSearchResult(2, 44.2, -110.3, 20.1, 1),
	}
}

// --- tests ---

func TestEnrichWithPlaceNames_NilGeocoder(t *testing.T) {
	results := EnrichWithPlaceNames(context.Background(), sampleResults(), nil, discardLogger())

	for _, r := range results {
		assert.Empty(t, r.PlaceName)
	}
}

func TestEnrichWithPlaceNames_ReverseGeocode(t *testing.T) {
	geo := &mockGeocoder{
		reverseResult: GeocodingResult{FormattedAddress: "Yellowstone National Park, Wyoming"},
	}

	results := EnrichWithPlaceNames(context.Background(), sampleResults(), geo, discardLogger())

	assert.Equal(t, 2, geo.reverseCalls)
	for _, r := range results {
		assert.Equal(t, "Yellowstone National Park, Wyoming", r.PlaceName)
	}
}

func TestEnrichWithPlaceNames_ErrorLeavesResult(t *testing.T) {
	geo := &mockGeocoder{reverseErr: errors.New("api down")}

	results := EnrichWithPlaceNames(context.Background(), sampleResults(), geo, discardLogger())

	require.Len(t, results, 2)
	assert.Equal(t, 2, geo.reverseCalls, "every result is attempted")
	assert.Empty(t, results[0].PlaceName)
	assert.Equal(t, "Low-light spot #1", results[0].Name)
}

func TestEnrichWithPlaceNames_EmptyAddress(t *testing.T) {
	geo := &mockGeocoder{reverseResult: GeocodingResult{}}

	results := EnrichWithPlaceNames(context.Background(), sampleResults(), geo, discardLogger())

	assert.Empty(t, results[0].PlaceName)
}

func TestEnrichWithPlaceNames_CancelledContext(t *testing.T) {
	geo := &mockGeocoder{reverseResult: GeocodingResult{FormattedAddress: "somewhere"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	EnrichWithPlaceNames(ctx, sampleResults(), geo, discardLogger())

	assert.Zero(t, geo.reverseCalls)
}

func TestLocatePlace(t *testing.T) {
	geo := &mockGeocoder{
		forwardResult: GeocodingResult{Lat: 30.2672, Lon: -97.7431, PlaceName: "Austin"},
	}

	result, err := LocatePlace(context.Background(), "Austin, TX", geo)
	require.NoError(t, err)
	assert.Equal(t, 30.2672, result.Lat)
	assert.Equal(t, 1, geo.forwardCalls)
}

func TestLocatePlace_NotFound(t *testing.T) {
	geo := &mockGeocoder{}

	_, err := LocatePlace(context.Background(), "Atlantis", geo)
	require.ErrorIs(t, err, ErrPlaceNotFound)
}

func TestLocatePlace_Error(t *testing.T) {
	geo := &mockGeocoder{forwardErr: errors.New("timeout")}

	_, err := LocatePlace(context.Background(), "Austin", geo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestLocatePlace_Disabled(t *testing.T) {
	_, err := LocatePlace(context.Background(), "Austin", nil)
	require.Error(t, err)
}
