package descent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/weather"
)

var burstTime = time.Date(2025, 6, 1, 13, 40, 0, 0, time.UTC)

func burstSite() models.Site {
	return models.Site{
		Coordinates: models.Coordinates{Latitude: 40.7128, Longitude: -74.0060, Altitude: 30000},
		Time:        burstTime,
	}
}

func balloon() models.BalloonConfiguration {
	return models.BalloonConfiguration{
		Volume:          4,
		BurstAltitude:   30000,
		AscentRate:      5,
		PayloadWeight:   1,
		DragCoefficient: 0.5,
	}
}

func TestTerminalVelocity(t *testing.T) {
	assert.InDelta(t, 5.6588, TerminalVelocity(balloon(), 0), 1e-3)

	b := balloon()
	b.DescentArea = 4
	assert.InDelta(t, 5.6588/2, TerminalVelocity(b, 0), 1e-3)

	assert.Greater(t, TerminalVelocity(balloon(), 30000), TerminalVelocity(balloon(), 10000))
}

func TestCalmDescentLandsDirectlyBelowBurst(t *testing.T) {
	burst := burstSite()
	res, err := New(weather.NewConstant(0, 0), DefaultConfig(), nil).Run(context.Background(), burst, balloon(), 0)
	require.NoError(t, err)

	assert.Equal(t, burst.Latitude, res.Landing.Latitude)
	assert.Equal(t, burst.Longitude, res.Landing.Longitude)
	assert.Equal(t, 0.0, res.Landing.Altitude)
	assert.True(t, res.Landing.Time.After(burstTime))

	last := res.Points[len(res.Points)-1]
	assert.Equal(t, models.PhaseLanded, last.Phase)
	assert.Equal(t, 0.0, last.Altitude)
	assert.Equal(t, res.Landing.Time, last.Time)
}

func TestDescentLandsOnGroundElevation(t *testing.T) {
	res, err := New(weather.NewConstant(0, 0), DefaultConfig(), nil).Run(context.Background(), burstSite(), balloon(), 512.5)
	require.NoError(t, err)
	assert.Equal(t, 512.5, res.Landing.Altitude)
	assert.Equal(t, 512.5, res.Points[len(res.Points)-1].Altitude)
}

func TestDescentPointsAreOrdered(t *testing.T) {
	res, err := New(weather.NewConstant(-4, 6), DefaultConfig(), nil).Run(context.Background(), burstSite(), balloon(), 0)
	require.NoError(t, err)

	for i, p := range res.Points {
		assert.True(t, p.Time.After(burstTime))
		if i == 0 {
			continue
		}
		prev := res.Points[i-1]
		assert.True(t, p.Time.After(prev.Time), "point %d", i)
		assert.Less(t, p.Altitude, prev.Altitude)
		if i < len(res.Points)-1 {
			assert.Equal(t, models.PhaseDescent, p.Phase)
			assert.Less(t, p.VerticalVelocity, 0.0)
		}
	}

	total := 0.0
	for _, s := range res.Segments {
		total += s.Dt
	}
	assert.InDelta(t, res.Landing.Time.Sub(burstTime).Seconds(), total, 1e-3)
	assert.Greater(t, res.Landing.Latitude, burstSite().Latitude)
	assert.Less(t, res.Landing.Longitude, burstSite().Longitude)
}

func TestEstimateDurationTracksSimulation(t *testing.T) {
	res, err := New(weather.NewConstant(0, 0), DefaultConfig(), nil).Run(context.Background(), burstSite(), balloon(), 0)
	require.NoError(t, err)

	actual := res.Landing.Time.Sub(burstTime)
	est := EstimateDuration(balloon(), 30000, 0, 10*time.Second, 0)
	assert.InEpsilon(t, actual.Seconds(), est.Seconds(), 0.05)
}

func TestDescentErrors(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		ground float64
		kind   models.Kind
	}{
		{"timeout", Config{MaxDuration: time.Minute}, 0, models.KindDescentTimeout},
		{"ground above burst", DefaultConfig(), 30000, models.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(weather.NewConstant(0, 0), tt.cfg, nil).Run(context.Background(), burstSite(), balloon(), tt.ground)
			require.Error(t, err)
			assert.Equal(t, tt.kind, models.KindOf(err))
		})
	}
}

func TestDescentHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(weather.NewConstant(0, 0), DefaultConfig(), nil).Run(ctx, burstSite(), balloon(), 0)
	assert.True(t, errors.Is(err, context.Canceled))
}
