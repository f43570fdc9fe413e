// Package descent integrates a payload under drag from burst to the ground.
package descent

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lox/balloonpredict/internal/atmosphere"
	"github.com/lox/balloonpredict/internal/drift"
	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/weather"
)

const (
	DefaultTimestep    = time.Second
	DefaultLogInterval = 50
	DefaultMaxDuration = 6 * time.Hour
)

type Config struct {
	Timestep    time.Duration `json:"timestep"`
	LogInterval int           `json:"logInterval"`
	MaxDuration time.Duration `json:"maxDuration"`
}

func DefaultConfig() Config {
	return Config{
		Timestep:    DefaultTimestep,
		LogInterval: DefaultLogInterval,
		MaxDuration: DefaultMaxDuration,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timestep <= 0 {
		c.Timestep = d.Timestep
	}
	if c.LogInterval <= 0 {
		c.LogInterval = d.LogInterval
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = d.MaxDuration
	}
	return c
}

// Result is a completed descent. Points exclude the burst point the descent
// starts from and end with the landing point.
type Result struct {
	Points   []models.TrajectoryPoint
	Segments []drift.Segment
	Landing  models.Site
	Steps    int
	Stats    weather.Stats
}

type Simulator struct {
	field weather.Field
	cfg   Config
	log   logging.Logger
}

func New(field weather.Field, cfg Config, log logging.Logger) *Simulator {
	if log == nil {
		log = logging.Noop()
	}
	return &Simulator{field: field, cfg: cfg.withDefaults(), log: log}
}

// TerminalVelocity returns the descent speed (m/s, positive) at which drag
// balances the payload's weight at alt.
func TerminalVelocity(b models.BalloonConfiguration, alt float64) float64 {
	rho := atmosphere.Density(alt)
	return math.Sqrt(2 * b.PayloadWeight * atmosphere.G0 / (rho * b.DragCoefficient * b.EffectiveDescentArea()))
}

// Run integrates from the burst site down to ground. The last step is
// shortened so the landing altitude equals ground exactly.
func (s *Simulator) Run(ctx context.Context, burst models.Site, b models.BalloonConfiguration, ground float64) (*Result, error) {
	const op = "descent"
	if !(burst.Altitude > ground) {
		return nil, models.InvalidInput(op, []models.Violation{{
			Field:   "groundElevation",
			Message: fmt.Sprintf("%.1f is not below burst altitude %.1f", ground, burst.Altitude),
		}})
	}

	dt := s.cfg.Timestep.Seconds()
	maxElapsed := s.cfg.MaxDuration.Seconds()

	pos := drift.Position{Lat: burst.Latitude, Lon: burst.Longitude}
	alt := burst.Altitude
	elapsed := 0.0
	res := &Result{}
	var last models.WeatherConditions

	for alt > ground {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if elapsed >= maxElapsed {
			return nil, models.Errorf(models.KindDescentTimeout, op,
				"%.0f m above ground after %s", alt-ground, s.cfg.MaxDuration)
		}

		now := at(burst.Time, elapsed)
		wc, err := s.field.Sample(pos.Lat, pos.Lon, alt, now)
		if err != nil {
			return nil, fmt.Errorf("%s: sample at %.0f m: %w", op, alt, err)
		}
		res.Stats.Add(wc)
		last = wc

		vt := TerminalVelocity(b, alt)
		if !(vt > 0) || math.IsInf(vt, 0) {
			return nil, models.Errorf(models.KindDescentTimeout, op, "terminal velocity %v at %.0f m", vt, alt)
		}

		if res.Steps > 0 && res.Steps%s.cfg.LogInterval == 0 {
			res.Points = append(res.Points, point(now, pos, alt, -vt, wc, models.PhaseDescent))
		}

		step := dt
		final := alt-vt*dt <= ground
		if final {
			step = (alt - ground) / vt
		}
		pos = drift.Advance(pos, wc.WindU, wc.WindV, step)
		res.Segments = append(res.Segments, drift.Segment{U: wc.WindU, V: wc.WindV, Dt: step})
		if final {
			alt = ground
		} else {
			alt -= vt * step
		}
		elapsed += step
		res.Steps++
	}

	landTime := at(burst.Time, elapsed)
	landed := point(landTime, pos, ground, 0, last, models.PhaseLanded)
	if n := len(res.Points); n > 0 && !res.Points[n-1].Time.Before(landTime) {
		res.Points[n-1] = landed
	} else {
		res.Points = append(res.Points, landed)
	}

	res.Landing = models.Site{
		Coordinates: models.Coordinates{Latitude: pos.Lat, Longitude: pos.Lon, Altitude: ground},
		Time:        landTime,
	}

	s.log.Debug(ctx, "descent: landed",
		logging.Float("latitude", pos.Lat),
		logging.Float("longitude", pos.Lon),
		logging.Duration("elapsed", landTime.Sub(burst.Time)),
		logging.Int("steps", res.Steps),
	)
	return res, nil
}

// EstimateDuration integrates the descent on the standard atmosphere alone,
// coarsely, to size a forecast window.
func EstimateDuration(b models.BalloonConfiguration, from, ground float64, step, limit time.Duration) time.Duration {
	if step <= 0 {
		step = 10 * time.Second
	}
	if limit <= 0 {
		limit = DefaultMaxDuration
	}
	dt := step.Seconds()
	alt := from
	elapsed := 0.0
	for alt > ground && elapsed < limit.Seconds() {
		vt := TerminalVelocity(b, alt)
		if !(vt > 0) || math.IsInf(vt, 0) {
			break
		}
		if alt-vt*dt <= ground {
			elapsed += (alt - ground) / vt
			break
		}
		alt -= vt * dt
		elapsed += dt
	}
	return time.Duration(min(elapsed, limit.Seconds()) * float64(time.Second))
}

func at(start time.Time, elapsed float64) time.Time {
	return start.Add(time.Duration(math.Round(elapsed * float64(time.Second))))
}

func point(t time.Time, pos drift.Position, alt, vz float64, wc models.WeatherConditions, phase models.Phase) models.TrajectoryPoint {
	return models.TrajectoryPoint{
		Time:             t,
		Latitude:         pos.Lat,
		Longitude:        pos.Lon,
		Altitude:         alt,
		VerticalVelocity: vz,
		WindSpeed:        wc.WindSpeed(),
		WindDirection:    wc.WindDirection(),
		Phase:            phase,
	}
}
