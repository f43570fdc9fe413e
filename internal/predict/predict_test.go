package predict

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/balloonpredict/internal/geo"
	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/weather"
)

var launchTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newYorkLaunch() models.LaunchSpec {
	return models.LaunchSpec{
		Coordinates: models.Coordinates{Latitude: 40.7128, Longitude: -74.0060, Altitude: 0},
		LaunchTime:  launchTime,
		Balloon: models.BalloonConfiguration{
			Volume:          4,
			BurstAltitude:   30000,
			AscentRate:      5,
			PayloadWeight:   1,
			DragCoefficient: 0.5,
		},
	}
}

// uniformGrid returns a grid with the same wind everywhere, spanning ±2° of
// the launch site and the given hours from an hour before launch.
func uniformGrid(t *testing.T, u, v float64, hours int) *weather.Grid {
	t.Helper()
	var pts []weather.Point
	for h := -1; h <= hours; h++ {
		ts := launchTime.Add(time.Duration(h) * time.Hour)
		for _, lat := range []float64{38.7128, 42.7128} {
			for _, lon := range []float64{-76.006, -72.006} {
				for _, alt := range []float64{0, 10000, 20000, 30000, 40000} {
					pts = append(pts, weather.Point{
						Latitude:  lat,
						Longitude: lon,
						WeatherConditions: models.WeatherConditions{
							Time:       ts,
							Altitude:   alt,
							WindU:      u,
							WindV:      v,
							Confidence: 1,
						},
					})
				}
			}
		}
	}
	g, err := weather.BuildGrid("uniform", pts)
	require.NoError(t, err)
	return g
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MonteCarlo.Samples = 20
	return cfg
}

func run(t *testing.T, p weather.Provider, cfg Config, launch models.LaunchSpec, opts ...Option) (*models.PredictionResult, error) {
	t.Helper()
	return New(p, cfg, opts...).Predict(context.Background(), launch)
}

func TestCalmFlight(t *testing.T) {
	launch := newYorkLaunch()
	res, err := run(t, &weather.StaticProvider{Grid: uniformGrid(t, 0, 0, 12)}, testConfig(), launch)
	require.NoError(t, err)

	assert.Equal(t, launch.Latitude, res.BurstSite.Latitude)
	assert.Equal(t, launch.Longitude, res.BurstSite.Longitude)
	assert.Equal(t, 30000.0, res.BurstSite.Altitude)
	assert.Equal(t, launchTime.Add(6000*time.Second), res.BurstSite.Time)

	assert.Equal(t, res.BurstSite.Latitude, res.LandingSite.Latitude)
	assert.Equal(t, res.BurstSite.Longitude, res.LandingSite.Longitude)
	assert.Equal(t, 0.0, res.LandingSite.Altitude)

	assert.Equal(t, models.QualityGood, res.Quality.WeatherDataQuality)
	assert.False(t, res.Quality.DegradedMode)
	assert.Empty(t, res.Quality.Warnings)
	assert.Equal(t, 1.0, res.Quality.Coverage)

	assert.Equal(t, 30000.0, res.Metrics.MaxAltitude)
	assert.Equal(t, res.LandingSite.Time.Sub(launchTime), res.Metrics.Duration)
	assert.Zero(t, res.Metrics.TotalDistanceKm)
	assert.InDelta(t, 5, res.Metrics.AverageAscentRate, 1e-9)

	require.NotNil(t, res.Uncertainty)
	assert.Greater(t, res.Uncertainty.LandingRadiusKm, 0.0)
	assert.Equal(t, res.Uncertainty.LandingRadiusKm, res.LandingSite.UncertaintyRadiusKm)
	assert.Equal(t, 0.95, res.LandingSite.Confidence)
	assert.NotEmpty(t, res.Uncertainty.ContributingFactors)
	assert.NotEmpty(t, res.ID)
}

func TestEastwardWind(t *testing.T) {
	launch := newYorkLaunch()
	res, err := run(t, &weather.StaticProvider{Grid: uniformGrid(t, 10, 0, 12)}, testConfig(), launch)
	require.NoError(t, err)

	assert.Greater(t, res.LandingSite.Longitude, launch.Longitude)
	assert.InDelta(t, launch.Latitude, res.LandingSite.Latitude, 1e-9)

	seconds := res.LandingSite.Time.Sub(launchTime).Seconds()
	want := 10 * seconds / (geo.EarthRadius * math.Cos(launch.Latitude*math.Pi/180)) * 180 / math.Pi
	assert.InEpsilon(t, want, res.LandingSite.Longitude-launch.Longitude, 1e-6)

	assert.InEpsilon(t, 10*seconds/1000, res.Metrics.TotalDistanceKm, 1e-3)
	assert.InDelta(t, 90, res.Metrics.BearingDeg, 1)
}

func TestTrajectoryInvariants(t *testing.T) {
	res, err := run(t, &weather.StaticProvider{Grid: uniformGrid(t, 4, -3, 12)}, testConfig(), newYorkLaunch())
	require.NoError(t, err)

	traj := res.Trajectory
	require.NotEmpty(t, traj)
	assert.Equal(t, launchTime, traj[0].Time)
	assert.Equal(t, models.PhaseAscent, traj[0].Phase)

	last := traj[len(traj)-1]
	assert.Equal(t, models.PhaseLanded, last.Phase)
	assert.Equal(t, 0.0, last.Altitude)

	bursts := 0
	for i := 1; i < len(traj); i++ {
		assert.True(t, traj[i].Time.After(traj[i-1].Time), "timestamp %d not increasing", i)
		assert.GreaterOrEqual(t, traj[i].Phase.Order(), traj[i-1].Phase.Order(), "phase went backward at %d", i)
		if traj[i].Phase == models.PhaseBurst {
			bursts++
			assert.Equal(t, 30000.0, traj[i].Altitude)
		}
	}
	assert.Equal(t, 1, bursts)
}

func TestNoWeatherDataIsPoorNotFatal(t *testing.T) {
	empty, err := weather.BuildGrid("empty", nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		provider weather.Provider
	}{
		{"empty grid", &weather.StaticProvider{Grid: empty}},
		{"no provider", nil},
		{"provider error", failingProvider{err: models.Errorf(models.KindDataUnavailable, "fetch", "upstream down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launch := newYorkLaunch()
			res, err := run(t, tt.provider, testConfig(), launch)
			require.NoError(t, err)

			assert.Equal(t, models.QualityPoor, res.Quality.WeatherDataQuality)
			assert.True(t, res.Quality.DegradedMode)
			assert.NotEmpty(t, res.Quality.Warnings)
			assert.Equal(t, launch.Latitude, res.LandingSite.Latitude)
			assert.Equal(t, 0.0, res.LandingSite.Altitude)
		})
	}
}

type failingProvider struct{ err error }

func (failingProvider) Name() string { return "failing" }

func (p failingProvider) Fetch(context.Context, weather.Query) (*weather.Grid, error) {
	return nil, p.err
}

func TestPartialCoverageIsDegraded(t *testing.T) {
	res, err := run(t, &weather.StaticProvider{Grid: uniformGrid(t, 2, 2, 1)}, testConfig(), newYorkLaunch())
	require.NoError(t, err)

	assert.Equal(t, models.QualityFair, res.Quality.WeatherDataQuality)
	assert.True(t, res.Quality.DegradedMode)
	assert.Greater(t, res.Quality.Coverage, 0.0)
	assert.Less(t, res.Quality.Coverage, 1.0)
	assert.NotEmpty(t, res.Quality.Warnings)
	assert.Greater(t, res.Quality.ExtrapolatedSamples, 0)
}

func TestInvalidInputListsEveryField(t *testing.T) {
	launch := newYorkLaunch()
	launch.Latitude = 100
	launch.Balloon.Volume = 0
	launch.Balloon.AscentRate = -1
	launch.Balloon.BurstAltitude = -10

	var phases []Phase
	_, err := run(t, nil, testConfig(), launch, WithObserver(func(p Phase) { phases = append(phases, p) }))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	fields := map[string]bool{}
	for _, v := range models.ViolationsOf(err) {
		fields[v.Field] = true
	}
	for _, want := range []string{"latitude", "balloon.volume", "balloon.ascentRate", "balloon.burstAltitude"} {
		assert.True(t, fields[want], "missing violation for %s", want)
	}
	assert.Equal(t, []Phase{PhaseValidating, PhaseError}, phases)
}

func TestPhaseOrder(t *testing.T) {
	var mu sync.Mutex
	var phases []Phase
	observer := func(p Phase) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, p)
	}

	_, err := run(t, &weather.StaticProvider{Grid: uniformGrid(t, 1, 1, 12)}, testConfig(), newYorkLaunch(), WithObserver(observer))
	require.NoError(t, err)

	want := []Phase{
		PhaseValidating,
		PhaseWeatherPreparation,
		PhaseAscending,
		PhaseDescending,
		PhaseUncertaintyAnalysis,
		PhaseComplete,
	}
	if diff := cmp.Diff(want, phases); diff != "" {
		t.Errorf("phases (-want +got):\n%s", diff)
	}
}

func TestFatalErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"insufficient samples", func(c *Config) { c.MonteCarlo.Samples = 3 }, models.ErrInsufficientSamples},
		{"ascent timeout", func(c *Config) { c.Ascent.MaxDuration = 10 * time.Minute }, models.ErrAscentTimeout},
		{"descent timeout", func(c *Config) { c.Descent.MaxDuration = time.Minute }, models.ErrDescentTimeout},
		{"bad config", func(c *Config) { c.WindowPadding = -1 }, models.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			res, err := run(t, &weather.StaticProvider{Grid: uniformGrid(t, 0, 0, 12)}, cfg, newYorkLaunch())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestUncertaintyFailureKeepsPrediction(t *testing.T) {
	cfg := testConfig()
	cfg.UncertaintyTimeout = time.Nanosecond

	res, err := run(t, &weather.StaticProvider{Grid: uniformGrid(t, 3, 0, 12)}, cfg, newYorkLaunch())
	require.NoError(t, err)

	assert.Nil(t, res.Uncertainty)
	assert.Zero(t, res.LandingSite.UncertaintyRadiusKm)
	assert.Zero(t, res.LandingSite.Confidence)
	assert.Zero(t, res.BurstSite.Confidence)
	assert.Equal(t, 0.0, res.LandingSite.Altitude)
	require.NotEmpty(t, res.Quality.Warnings)
	assert.Contains(t, res.Quality.Warnings[len(res.Quality.Warnings)-1], "uncertainty analysis failed")
}

func TestSkipUncertainty(t *testing.T) {
	cfg := testConfig()
	cfg.SkipUncertainty = true
	cfg.MonteCarlo.Samples = 0

	res, err := run(t, &weather.StaticProvider{Grid: uniformGrid(t, 3, 0, 12)}, cfg, newYorkLaunch())
	require.NoError(t, err)
	assert.Nil(t, res.Uncertainty)
	assert.Contains(t, res.Quality.Warnings, "uncertainty analysis disabled")
	assert.Zero(t, res.LandingSite.UncertaintyRadiusKm)
	assert.Zero(t, res.LandingSite.Confidence)
	assert.Zero(t, res.BurstSite.Confidence)
	assert.Greater(t, res.Quality.MeanConfidence, 0.0)

	calm, err := run(t, nil, cfg, newYorkLaunch())
	require.NoError(t, err)
	assert.Zero(t, calm.LandingSite.Confidence)
	assert.Zero(t, calm.BurstSite.Confidence)
}

func TestSlowAscentTimesOut(t *testing.T) {
	for _, rate := range []float64{1e-3, 1e-6} {
		launch := newYorkLaunch()
		launch.Balloon.AscentRate = rate

		cfg := testConfig()
		start, end := Window(launch, cfg)
		assert.True(t, end.After(start), "rate %g", rate)
		assert.LessOrEqual(t, end.Sub(start), 30*time.Hour, "rate %g", rate)

		res, err := run(t, &weather.StaticProvider{Grid: uniformGrid(t, 0, 0, 12)}, cfg, launch)
		require.Error(t, err, "rate %g", rate)
		assert.Nil(t, res)
		assert.Equal(t, models.KindAscentTimeout, models.KindOf(err), "rate %g: %v", rate, err)
	}
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var phases []Phase
	o := New(&weather.StaticProvider{Grid: uniformGrid(t, 0, 0, 12)}, testConfig(),
		WithObserver(func(p Phase) { phases = append(phases, p) }))
	_, err := o.Predict(ctx, newYorkLaunch())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, PhaseError, phases[len(phases)-1])
}

func TestDeterministicForSeed(t *testing.T) {
	grid := uniformGrid(t, 6, 2, 12)
	a, err := run(t, &weather.StaticProvider{Grid: grid}, testConfig(), newYorkLaunch())
	require.NoError(t, err)
	b, err := run(t, &weather.StaticProvider{Grid: grid}, testConfig(), newYorkLaunch())
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.LandingSite, b.LandingSite)
	if diff := cmp.Diff(a.Uncertainty, b.Uncertainty); diff != "" {
		t.Errorf("uncertainty differs:\n%s", diff)
	}
}

func TestWindow(t *testing.T) {
	launch := newYorkLaunch()
	cfg := DefaultConfig()

	est := EstimateDuration(launch, cfg)
	assert.Greater(t, est, 6000*time.Second)

	start, end := Window(launch, cfg)
	assert.Equal(t, launchTime, start)
	assert.Equal(t, time.Duration(float64(est)*1.25)+30*time.Minute, end.Sub(start))
}

func TestResultJSONShape(t *testing.T) {
	res, err := run(t, &weather.StaticProvider{Grid: uniformGrid(t, 1, 0, 12)}, testConfig(), newYorkLaunch())
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"trajectory", "burstSite", "landingSite", "metrics", "uncertainty", "quality"} {
		assert.Contains(t, doc, key)
	}
	quality := doc["quality"].(map[string]any)
	assert.Equal(t, "good", quality["weatherDataQuality"])
	metrics := doc["metrics"].(map[string]any)
	assert.Equal(t, res.Metrics.Duration.Seconds(), metrics["durationSeconds"])
	assert.Equal(t, 6000.0, metrics["ascentDurationSeconds"])
	point := doc["trajectory"].([]any)[0].(map[string]any)
	for _, key := range []string{"timestamp", "latitude", "longitude", "altitude", "verticalVelocity", "windSpeed", "windDirection", "phase"} {
		assert.Contains(t, point, key)
	}
}

func TestWeatherQueryErrorIsNotRewrapped(t *testing.T) {
	cfg := testConfig()
	cfg.WeatherRadiusDeg = math.NaN()
	require.Error(t, cfg.Validate())

	_, err := New(nil, cfg).prepareWeather(context.Background(), newYorkLaunch())
	require.Error(t, err)
	assert.Equal(t, models.KindInvalidInput, models.KindOf(err))
	assert.Equal(t, 1, strings.Count(err.Error(), "weather query"), err.Error())
}
