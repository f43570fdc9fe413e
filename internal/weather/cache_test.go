package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/balloonpredict/internal/models"
)

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, 4)
	now := t0
	c.now = func() time.Time { return now }

	g := &Grid{Source: "a"}
	require.NoError(t, c.Set(ctx, "k", g))

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Same(t, g, got)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Hour, 2)

	require.NoError(t, c.Set(ctx, "a", &Grid{Source: "a"}))
	require.NoError(t, c.Set(ctx, "b", &Grid{Source: "b"}))
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)
	require.NoError(t, c.Set(ctx, "c", &Grid{Source: "c"}))

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCachePrune(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, 10)
	now := t0
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "old", &Grid{}))
	now = now.Add(45 * time.Second)
	require.NoError(t, c.Set(ctx, "new", &Grid{}))
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 1, c.Len())
}

type countingProvider struct {
	grid  *Grid
	err   error
	calls int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Fetch(ctx context.Context, q Query) (*Grid, error) {
	p.calls++
	return p.grid, p.err
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()
	q, err := NewQuery(40, -74, t0, t0.Add(4*time.Hour))
	require.NoError(t, err)

	inner := &countingProvider{grid: testGrid(t)}
	p := NewCachedProvider(inner, NewMemoryCache(time.Hour, 4), nil)

	for i := 0; i < 3; i++ {
		g, err := p.Fetch(ctx, q)
		require.NoError(t, err)
		assert.False(t, g.Empty())
	}
	assert.Equal(t, 1, inner.calls)
}

func TestCachedProviderSkipsEmptyGridsAndErrors(t *testing.T) {
	ctx := context.Background()
	q, err := NewQuery(40, -74, t0, t0.Add(4*time.Hour))
	require.NoError(t, err)

	empty := &countingProvider{grid: &Grid{}}
	p := NewCachedProvider(empty, NewMemoryCache(time.Hour, 4), nil)
	_, _ = p.Fetch(ctx, q)
	_, _ = p.Fetch(ctx, q)
	assert.Equal(t, 2, empty.calls)

	failing := &countingProvider{err: errors.New("boom")}
	p = NewCachedProvider(failing, NewMemoryCache(time.Hour, 4), nil)
	_, err = p.Fetch(ctx, q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch counting")
}

func TestNewQuery(t *testing.T) {
	q, err := NewQuery(40.71, -74.01, t0.Add(20*time.Minute), t0.Add(5*time.Hour+10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, t0, q.Start)
	assert.Equal(t, t0.Add(6*time.Hour), q.End)
	assert.Equal(t, DefaultRadiusDeg, q.RadiusDeg)
	assert.Len(t, q.Corners(), 4)

	point, err := NewQuery(40.71, -74.01, t0, t0.Add(time.Hour), WithRadius(0))
	require.NoError(t, err)
	assert.Len(t, point.Corners(), 1)
	assert.NotEqual(t, q.Key(), point.Key())
}

func TestNewQueryListsEveryViolation(t *testing.T) {
	_, err := NewQuery(95, 200, t0, t0.Add(-time.Hour), WithRadius(-1), WithPressureLevels(nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	fields := map[string]bool{}
	for _, v := range models.ViolationsOf(err) {
		fields[v.Field] = true
	}
	for _, want := range []string{"latitude", "longitude", "window", "radius", "pressureLevels"} {
		assert.True(t, fields[want], "missing violation for %s", want)
	}
}

func TestSelectKeepsBracketingNodes(t *testing.T) {
	q, err := NewQuery(40.5, -74.5, t0, t0.Add(2*time.Hour), WithRadius(0.25))
	require.NoError(t, err)

	pts := []Point{
		point(40, -75, t0, 0, 1, 0),                   // outside the box but brackets it
		point(45, -75, t0, 0, 1, 0),                   // too far north
		point(40, -75, t0.Add(-3*time.Hour), 0, 1, 0), // before the window
		point(41, -74, t0.Add(3*time.Hour), 0, 1, 0),  // within the hour of slack
	}
	got := Select(pts, q)
	require.Len(t, got, 2)
	assert.Equal(t, 40.0, got[0].Latitude)
	assert.Equal(t, 41.0, got[1].Latitude)
}

func TestSelectAlignsAcrossAntimeridian(t *testing.T) {
	q, err := NewQuery(0, 179.5, t0, t0.Add(time.Hour))
	require.NoError(t, err)

	got := Select([]Point{point(0, -179, t0, 0, 1, 0)}, q)
	require.Len(t, got, 1)
	assert.Equal(t, 181.0, got[0].Longitude)
}
