package raster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observability"
)

// --- mock loader ---

type countingLoader struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (l *countingLoader) Load(_ context.Context, region domain.Region) (*Raster, error) {
	l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.err != nil {
		return nil, l.err
	}
	r := New(region.Width, region.Height)
	r.Fill(orange)
	return r, nil
}

func newTestCache(loader RegionLoader) *Cache {
	return NewCache(loader, discardLogger(), observability.NewMetricsForTesting())
}

// --- tests ---

func TestCache_LoadsOnce(t *testing.T) {
	loader := &countingLoader{}
	cache := newTestCache(loader)
	region := testRegion(4, 4, "test.png")

	first, err := cache.Get(context.Background(), region)
	require.NoError(t, err)
	second, err := cache.Get(context.Background(), region)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), loader.calls.Load())
	assert.True(t, cache.Resident("Test"))
}

func TestCache_ConcurrentFirstUseSharesLoad(t *testing.T) {
	loader := &countingLoader{delay: 50 * time.Millisecond}
	cache := newTestCache(loader)
	region := testRegion(4, 4, "test.png")

	const callers = 16
	results := make([]*Raster, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := cache.Get(context.Background(), region)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestCache_RegionsLoadIndependently(t *testing.T) {
	loader := &countingLoader{}
	cache := newTestCache(loader)

	for i := 0; i < 3; i++ {
		region := testRegion(2, 2, "x.png")
		region.Name = fmt.Sprintf("Region %d", i)
		_, err := cache.Get(context.Background(), region)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), loader.calls.Load())
}

func TestCache_FailuresAreNotCached(t *testing.T) {
	loader := &countingLoader{err: fmt.Errorf("load: %w", domain.ErrResourceNotFound)}
	cache := newTestCache(loader)
	region := testRegion(4, 4, "missing.png")

	_, err := cache.Get(context.Background(), region)
	require.ErrorIs(t, err, domain.ErrResourceNotFound)

	loader.err = nil
	r, err := cache.Get(context.Background(), region)
	require.NoError(t, err)
	assert.NotNil(t, r)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestCache_CancelledWaiter(t *testing.T) {
	loader := &countingLoader{delay: 200 * time.Millisecond}
	cache := newTestCache(loader)
	region := testRegion(4, 4, "slow.png")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cache.Get(ctx, region)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	// The shared load finishes in the background and lands in the cache.
	require.Eventually(t, func() bool { return cache.Resident("Test") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), loader.calls.Load())
}
