package weather

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/balloonpredict/internal/models"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func point(lat, lon float64, t time.Time, alt, u, v float64) Point {
	return Point{
		Latitude:  lat,
		Longitude: lon,
		WeatherConditions: models.WeatherConditions{
			Time:        t,
			Altitude:    alt,
			WindU:       u,
			WindV:       v,
			Temperature: 15 - alt/150,
			Pressure:    1000 - alt/20,
			Humidity:    50,
			Confidence:  1,
		},
	}
}

// testGrid has two times, a 2×2 horizontal cell and levels at 0, 5000 and
// 10000 m. Wind u is the altitude in km plus an hour offset; v depends on
// position.
func testGrid(t *testing.T) *Grid {
	t.Helper()
	var pts []Point
	for hi, tt := range []time.Time{t0, t0.Add(3 * time.Hour)} {
		for _, lat := range []float64{40, 41} {
			for _, lon := range []float64{-75, -74} {
				for _, alt := range []float64{0, 5000, 10000} {
					u := alt/1000 + float64(hi)*3
					v := (lat-40)*10 + (lon+75)*2
					pts = append(pts, point(lat, lon, tt, alt, u, v))
				}
			}
		}
	}
	g, err := BuildGrid("test", pts)
	require.NoError(t, err)
	return g
}

func TestSampleAtGridPointReturnsStoredValues(t *testing.T) {
	g := testGrid(t)

	for _, p := range g.Points() {
		wc, err := g.Sample(p.Latitude, p.Longitude, p.Altitude, p.Time)
		require.NoError(t, err)
		assert.Equal(t, p.WindU, wc.WindU)
		assert.Equal(t, p.WindV, wc.WindV)
		assert.Equal(t, p.Temperature, wc.Temperature)
		assert.Equal(t, p.Pressure, wc.Pressure)
		assert.Equal(t, p.Humidity, wc.Humidity)
		assert.Equal(t, 1.0, wc.Confidence)
		assert.False(t, wc.Extrapolated)
	}
}

func TestTimeNodesArePrecomputed(t *testing.T) {
	built := testGrid(t)
	data, err := json.Marshal(built)
	require.NoError(t, err)
	var decoded Grid
	require.NoError(t, json.Unmarshal(data, &decoded))

	tests := []struct {
		name string
		grid *Grid
	}{
		{"built", built},
		{"decoded", &decoded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []float64{0, 3 * 3600}, tt.grid.offsets)
			allocs := testing.AllocsPerRun(100, func() {
				_ = tt.grid.timeNodes()
			})
			assert.Zero(t, allocs)

			wc, err := tt.grid.Sample(40, -75, 5000, t0.Add(90*time.Minute))
			require.NoError(t, err)
			assert.InDelta(t, 6.5, wc.WindU, 1e-9)
		})
	}
}

func TestSampleInterpolates(t *testing.T) {
	g := testGrid(t)

	tests := []struct {
		name  string
		lat   float64
		lon   float64
		alt   float64
		t     time.Time
		wantU float64
		wantV float64
	}{
		{"vertical midpoint", 40, -75, 2500, t0, 2.5, 0},
		{"temporal midpoint", 40, -75, 5000, t0.Add(90 * time.Minute), 6.5, 0},
		{"latitude midpoint", 40.5, -75, 0, t0, 0, 5},
		{"longitude quarter", 40, -74.75, 0, t0, 0, 0.5},
		{"cell centre", 40.5, -74.5, 10000, t0, 10, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wc, err := g.Sample(tt.lat, tt.lon, tt.alt, tt.t)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantU, wc.WindU, 1e-9)
			assert.InDelta(t, tt.wantV, wc.WindV, 1e-9)
			assert.False(t, wc.Extrapolated)
			assert.Less(t, wc.Confidence, 1.0)
			assert.Greater(t, wc.Confidence, 0.5)
		})
	}
}

func TestSampleClampsOutsideData(t *testing.T) {
	g := testGrid(t)

	tests := []struct {
		name      string
		lat, lon  float64
		alt       float64
		t         time.Time
		wantU     float64
		wantExtra bool
	}{
		{"before window", 40, -75, 0, t0.Add(-2 * time.Hour), 0, true},
		{"after window", 40, -75, 0, t0.Add(5 * time.Hour), 3, true},
		{"above top level", 40, -75, 20000, t0, 10, true},
		{"slightly below ground level", 40, -75, -100, t0, 0, false},
		{"north of grid", 43, -75, 0, t0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wc, err := g.Sample(tt.lat, tt.lon, tt.alt, tt.t)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantU, wc.WindU, 1e-9)
			assert.Equal(t, tt.wantExtra, wc.Extrapolated)
			assert.Less(t, wc.Confidence, 1.0)
		})
	}
}

func TestConfidenceDecreasesWithDistance(t *testing.T) {
	g := testGrid(t)

	prev := 2.0
	for _, h := range []time.Duration{0, time.Hour, 4 * time.Hour, 8 * time.Hour} {
		wc, err := g.Sample(40, -75, 0, t0.Add(3*time.Hour+h))
		require.NoError(t, err)
		assert.Less(t, wc.Confidence, prev+1e-12, "offset %s", h)
		prev = wc.Confidence
	}
}

func TestSinglePointGridUsesNearestNeighbour(t *testing.T) {
	g, err := BuildGrid("single", []Point{
		point(40, -74, t0, 0, 1, 2),
		point(40, -74, t0, 10000, 11, 12),
	})
	require.NoError(t, err)

	wc, err := g.Sample(40.1, -74.1, 5000, t0)
	require.NoError(t, err)
	assert.InDelta(t, 6, wc.WindU, 1e-9)
	assert.InDelta(t, 7, wc.WindV, 1e-9)
	assert.False(t, wc.Extrapolated)
	assert.Less(t, wc.Confidence, 1.0)

	far, err := g.Sample(45, -74, 5000, t0)
	require.NoError(t, err)
	assert.True(t, far.Extrapolated)
	assert.Less(t, far.Confidence, wc.Confidence)
}

func TestSampleAcrossAntimeridian(t *testing.T) {
	var pts []Point
	for _, lon := range []float64{179, 181} {
		pts = append(pts, point(0, lon, t0, 0, lon-179, 0))
	}
	g, err := BuildGrid("dateline", pts)
	require.NoError(t, err)

	wc, err := g.Sample(0, -179.5, 0, t0)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, wc.WindU, 1e-9)
	assert.False(t, wc.Extrapolated)
}

func TestEmptyGridIsDataUnavailable(t *testing.T) {
	g, err := BuildGrid("empty", nil)
	require.NoError(t, err)
	assert.True(t, g.Empty())

	_, err = g.Sample(0, 0, 0, t0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDataUnavailable))
	assert.Equal(t, models.KindDataUnavailable, models.KindOf(err))
}

func TestBuildGridRejectsMissingColumn(t *testing.T) {
	_, err := BuildGrid("ragged", []Point{
		point(40, -75, t0, 0, 0, 0),
		point(41, -74, t0, 0, 0, 0),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no levels")
}

func TestCompleteTimesDropsRaggedTimes(t *testing.T) {
	t1 := t0.Add(time.Hour)
	pts := []Point{
		point(40, -75, t0, 0, 1, 0),
		point(40, -74, t0, 0, 1, 0),
		point(40, -75, t1, 0, 2, 0),
	}

	kept := CompleteTimes(pts)
	require.Len(t, kept, 2)
	for _, p := range kept {
		assert.Equal(t, t0, p.Time)
	}

	g, err := BuildGrid("trimmed", kept)
	require.NoError(t, err)
	assert.Len(t, g.Times, 1)
	assert.Empty(t, CompleteTimes(nil))
}

func TestBuildGridSortsLevels(t *testing.T) {
	g, err := BuildGrid("unsorted", []Point{
		point(40, -75, t0, 10000, 10, 0),
		point(40, -75, t0, 0, 0, 0),
		point(40, -75, t0, 5000, 5, 0),
	})
	require.NoError(t, err)

	wc, err := g.Sample(40, -75, 7500, t0)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, wc.WindU, 1e-9)
}

func TestCoverage(t *testing.T) {
	g := testGrid(t)

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  float64
	}{
		{"inside", t0, t0.Add(3 * time.Hour), 1},
		{"padded edges", t0.Add(-30 * time.Minute), t0.Add(210 * time.Minute), 1},
		{"half after", t0.Add(30 * time.Minute), t0.Add(6*time.Hour + 30*time.Minute), 0.5},
		{"disjoint", t0.Add(24 * time.Hour), t0.Add(30 * time.Hour), 0},
		{"instant inside", t0.Add(time.Hour), t0.Add(time.Hour), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := g.Coverage(tt.start, tt.end)
			assert.InDelta(t, tt.want, c.Fraction, 1e-9)
		})
	}

	var empty *Grid
	assert.True(t, empty.Coverage(t0, t0.Add(time.Hour)).None())
}

func TestContains(t *testing.T) {
	g := testGrid(t)
	assert.True(t, g.Contains(40.5, -74.5))
	assert.True(t, g.Contains(41.2, -74.5))
	assert.False(t, g.Contains(45, -74.5))
}

func TestWithFallback(t *testing.T) {
	empty, err := BuildGrid("empty", nil)
	require.NoError(t, err)

	f := WithFallback(empty, NewConstant(3, 4))
	wc, err := f.Sample(10, 10, 1000, t0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, wc.WindU)
	assert.Equal(t, 4.0, wc.WindV)
	assert.True(t, wc.Extrapolated)
	assert.InDelta(t, fallbackPenalty, wc.Confidence, 1e-12)

	g := testGrid(t)
	direct := WithFallback(g, NewConstant(3, 4))
	wc, err = direct.Sample(40, -75, 0, t0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, wc.WindU)
	assert.False(t, wc.Extrapolated)
}

func TestConstantFieldUsesStandardAtmosphere(t *testing.T) {
	wc, err := StandardAtmosphere().Sample(0, 0, 0, t0)
	require.NoError(t, err)
	assert.InDelta(t, 15, wc.Temperature, 1e-9)
	assert.InDelta(t, 1013.25, wc.Pressure, 1e-6)
	assert.Zero(t, wc.WindU)
	assert.InDelta(t, fallbackConfidence, wc.Confidence, 1e-12)
	assert.False(t, math.IsNaN(wc.WindDirection()))
}

func TestBatchSample(t *testing.T) {
	g := testGrid(t)
	out, err := BatchSample(g, []SampleQuery{
		{Latitude: 40, Longitude: -75, Altitude: 0, Time: t0},
		{Latitude: 40, Longitude: -75, Altitude: 5000, Time: t0},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 0.0, out[0].WindU)
	assert.Equal(t, 5.0, out[1].WindU)

	empty, _ := BuildGrid("empty", nil)
	_, err = BatchSample(empty, []SampleQuery{{Time: t0}})
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
}
