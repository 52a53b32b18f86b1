package geo_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bluelight-hub/authguard/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingResolver records how many real lookups happen.
type countingResolver struct {
	mu    sync.Mutex
	calls int
}

func (r *countingResolver) Resolve(_ context.Context, ip string) (*geo.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if ip == "203.0.113.50" {
		return &geo.Location{City: "Berlin", Country: "Germany", Timezone: "Europe/Berlin"}, nil
	}
	return nil, nil
}

func (r *countingResolver) Close() error { return nil }

func TestCachedResolver_DeduplicatesBurstLookups(t *testing.T) {
	inner := &countingResolver{}
	cached := geo.NewCachedResolver(inner, 5*time.Minute)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		loc, err := cached.Resolve(ctx, "203.0.113.50")
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.Equal(t, "Berlin, Germany", loc.Label())
	}

	assert.Equal(t, 1, inner.calls)
}

func TestCachedResolver_CachesMisses(t *testing.T) {
	inner := &countingResolver{}
	cached := geo.NewCachedResolver(inner, 5*time.Minute)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		loc, err := cached.Resolve(ctx, "198.51.100.1")
		require.NoError(t, err)
		assert.Nil(t, loc)
	}

	assert.Equal(t, 1, inner.calls)
}

func TestCachedResolver_DistinctIPsLookSeparately(t *testing.T) {
	inner := &countingResolver{}
	cached := geo.NewCachedResolver(inner, 5*time.Minute)

	ctx := context.Background()
	_, _ = cached.Resolve(ctx, "203.0.113.50")
	_, _ = cached.Resolve(ctx, "198.51.100.1")

	assert.Equal(t, 2, inner.calls)
}

func TestLocationLabel(t *testing.T) {
	assert.Equal(t, "Berlin, Germany", (&geo.Location{City: "Berlin", Country: "Germany"}).Label())
	assert.Equal(t, "Germany", (&geo.Location{Country: "Germany"}).Label())
	assert.Equal(t, "", (&geo.Location{}).Label())
	assert.Equal(t, "", (*geo.Location)(nil).Label())
}
