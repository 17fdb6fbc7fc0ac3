package raster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegion(width, height int, resource string) domain.Region {
	return domain.Region{
		Name: "Test", LonMin: 0, LatMin: 0, LonMax: 1, LatMax: 1,
		Width: width, Height: height, Resource: resource,
	}
}

func solidImage(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestLoader(fsys fstest.MapFS, maxPixels int) (*Loader, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewLoader(NewFSStore(fsys), maxPixels, discardLogger(), m), m
}

func TestLoader_LoadPNG(t *testing.T) {
	fsys := fstest.MapFS{
		"test.png": {Data: encodePNG(t, solidImage(8, 6, color.RGBA{191, 100, 30, 255}))},
	}
	loader, m := newTestLoader(fsys, 0)

	r, err := loader.Load(context.Background(), testRegion(8, 6, "test.png"))
	require.NoError(t, err)

	assert.Equal(t, 8, r.Width)
	assert.Equal(t, 6, r.Height)
	assert.Equal(t, orange, r.At(7, 5))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RasterLoads.WithLabelValues("Test", "success")))
}

func TestLoader_LoadTIFF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, solidImage(4, 4, color.RGBA{31, 161, 42, 255}), nil))
	fsys := fstest.MapFS{"test.tif": {Data: buf.Bytes()}}
	loader, _ := newTestLoader(fsys, 0)

	r, err := loader.Load(context.Background(), testRegion(4, 4, "test.tif"))
	require.NoError(t, err)
	assert.Equal(t, green, r.At(2, 2))
}

func TestLoader_MissingResource(t *testing.T) {
	loader, m := newTestLoader(fstest.MapFS{}, 0)

	_, err := loader.Load(context.Background(), testRegion(8, 6, "missing.png"))
	require.ErrorIs(t, err, domain.ErrResourceNotFound)
	assert.NotErrorIs(t, err, domain.ErrDecode)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RasterLoads.WithLabelValues("Test", "not_found")))
}

func TestLoader_Undecodable(t *testing.T) {
	fsys := fstest.MapFS{"bad.png": {Data: []byte("definitely not a png")}}
	loader, m := newTestLoader(fsys, 0)

	_, err := loader.Load(context.Background(), testRegion(8, 6, "bad.png"))
	require.ErrorIs(t, err, domain.ErrDecode)
	assert.NotErrorIs(t, err, domain.ErrResourceNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RasterLoads.WithLabelValues("Test", "decode_error")))
}

func TestLoader_TruncatedImage(t *testing.T) {
	data := encodePNG(t, solidImage(32, 32, color.RGBA{191, 100, 30, 255}))
	fsys := fstest.MapFS{"cut.png": {Data: data[:len(data)/2]}}
	loader, _ := newTestLoader(fsys, 0)

	_, err := loader.Load(context.Background(), testRegion(32, 32, "cut.png"))
	require.ErrorIs(t, err, domain.ErrDecode)
}

func TestLoader_TooManyPixels(t *testing.T) {
	fsys := fstest.MapFS{
		"big.png": {Data: encodePNG(t, solidImage(20, 20, color.RGBA{0, 0, 0, 255}))},
	}
	loader, _ := newTestLoader(fsys, 100)

	_, err := loader.Load(context.Background(), testRegion(20, 20, "big.png"))
	require.ErrorIs(t, err, domain.ErrDecode)
	assert.Contains(t, err.Error(), "pixel limit")
}

func TestLoader_DimensionMismatchUsesActualSize(t *testing.T) {
	fsys := fstest.MapFS{
		"odd.png": {Data: encodePNG(t, solidImage(5, 3, color.RGBA{0, 0, 0, 255}))},
	}
	loader, m := newTestLoader(fsys, 0)

	r, err := loader.Load(context.Background(), testRegion(8, 6, "odd.png"))
	require.NoError(t, err)

	assert.Equal(t, 5, r.Width)
	assert.Equal(t, 3, r.Height)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RasterDimensionMismatch.WithLabelValues("Test")))
}

func TestFSStore_Exists(t *testing.T) {
	s := NewFSStore(fstest.MapFS{"a.png": {Data: []byte("x")}})
	assert.True(t, s.Exists("a.png"))
	assert.False(t, s.Exists("b.png"))
}

func TestFSStore_MissingResourcesAndReadiness(t *testing.T) {
	a := testRegion(2, 2, "a.png")
	b := testRegion(2, 2, "b.png")
	b.Name = "Other"
	catalog, err := domain.NewCatalog(a, b)
	require.NoError(t, err)

	s := NewFSStore(fstest.MapFS{"a.png": {Data: []byte("x")}})
	missing := s.MissingResources(catalog)
	require.Len(t, missing, 1)
	assert.Equal(t, "Other", missing[0].Name)
	require.NoError(t, s.CheckReadiness(catalog))

	empty := NewFSStore(fstest.MapFS{})
	require.ErrorIs(t, empty.CheckReadiness(catalog), domain.ErrResourceNotFound)
}
