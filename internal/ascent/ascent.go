// Package ascent integrates a balloon from launch to burst altitude.
package ascent

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
	DefaultMaxDuration = 12 * time.Hour

	// envelopeDrag is the drag coefficient of an inflated latex envelope,
	// used only by the buoyancy mode.
	envelopeDrag = 0.3
)

type Config struct {
	Timestep    time.Duration `json:"timestep"`
	LogInterval int           `json:"logInterval"` // steps between recorded points
	MaxDuration time.Duration `json:"maxDuration"`
}

func DefaultConfig() Config {
	return Config{
		Timestep:    DefaultTimestep,
		LogInterval: DefaultLogInterval,
		MaxDuration: DefaultMaxDuration,
	}
}

// withDefaults fills zero fields.
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

// Result is a completed ascent. Points are downsampled; Segments hold every
// integration step.
type Result struct {
	Points   []models.TrajectoryPoint
	Segments []drift.Segment
	Burst    models.Site
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

// Run integrates from the launch site until the burst altitude is reached.
// The last step is shortened so the burst happens exactly at the burst
// altitude.
func (s *Simulator) Run(ctx context.Context, launch models.LaunchSpec) (*Result, error) {
	const op = "ascent"
	b := launch.Balloon
	dt := s.cfg.Timestep.Seconds()
	maxElapsed := s.cfg.MaxDuration.Seconds()

	pos := drift.Position{Lat: launch.Latitude, Lon: launch.Longitude}
	alt := launch.Altitude
	elapsed := 0.0
	res := &Result{}

	for alt < b.BurstAltitude {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if elapsed >= maxElapsed {
			return nil, models.Errorf(models.KindAscentTimeout, op,
				"reached %.0f m of %.0f m after %s", alt, b.BurstAltitude, s.cfg.MaxDuration)
		}

		now := at(launch.LaunchTime, elapsed)
		wc, err := s.field.Sample(pos.Lat, pos.Lon, alt, now)
		if err != nil {
			return nil, fmt.Errorf("%s: sample at %.0f m: %w", op, alt, err)
		}
		res.Stats.Add(wc)

		rate := Rate(b, alt, launch.Altitude)
		if !(rate > 0) || math.IsInf(rate, 0) {
			return nil, models.Errorf(models.KindAscentTimeout, op, "no net lift at %.0f m", alt)
		}

		if res.Steps%s.cfg.LogInterval == 0 {
			res.Points = append(res.Points, point(now, pos, alt, rate, wc, models.PhaseAscent))
		}

		step := dt
		final := alt+rate*dt >= b.BurstAltitude
		if final {
			step = (b.BurstAltitude - alt) / rate
		}
		pos = drift.Advance(pos, wc.WindU, wc.WindV, step)
		res.Segments = append(res.Segments, drift.Segment{U: wc.WindU, V: wc.WindV, Dt: step})
		if final {
			alt = b.BurstAltitude
		} else {
			alt += rate * step
		}
		elapsed += step
		res.Steps++
	}

	burstTime := at(launch.LaunchTime, elapsed)
	wc, err := s.field.Sample(pos.Lat, pos.Lon, alt, burstTime)
	if err != nil {
		return nil, fmt.Errorf("%s: sample at burst: %w", op, err)
	}
	res.Stats.Add(wc)

	burst := point(burstTime, pos, alt, Rate(b, alt, launch.Altitude), wc, models.PhaseBurst)
	if n := len(res.Points); n > 0 && !res.Points[n-1].Time.Before(burstTime) {
		res.Points[n-1] = burst
	} else {
		res.Points = append(res.Points, burst)
	}

	res.Burst = models.Site{
		Coordinates: models.Coordinates{Latitude: pos.Lat, Longitude: pos.Lon, Altitude: alt},
		Time:        burstTime,
	}

	s.log.Debug(ctx, "ascent: burst",
		logging.Float("latitude", pos.Lat),
		logging.Float("longitude", pos.Lon),
		logging.Float("altitude", alt),
		logging.Duration("elapsed", burstTime.Sub(launch.LaunchTime)),
		logging.Int("steps", res.Steps),
	)
	return res, nil
}

// Rate returns the ascent rate at alt. Constant mode uses the configured
// rate; buoyancy mode derives it from the envelope's net lift and drag, and
// returns 0 when there is no lift.
func Rate(b models.BalloonConfiguration, alt, launchAlt float64) float64 {
	if b.EffectiveAscentMode() != models.AscentBuoyancy {
		return b.AscentRate
	}

	rhoAir := atmosphere.Density(alt)
	rhoGas := atmosphere.GasDensity(atmosphere.MolarMassHelium, alt)
	// The envelope expands as ambient density falls.
	volume := b.Volume * atmosphere.Density(launchAlt) / rhoAir
	lift := (rhoAir-rhoGas)*volume*atmosphere.G0 - b.PayloadWeight*atmosphere.G0
	if lift <= 0 {
		return 0
	}
	radius := math.Cbrt(3 * volume / (4 * math.Pi))
	area := math.Pi * radius * radius
	return math.Sqrt(2 * lift / (rhoAir * envelopeDrag * area))
}

// EstimateDuration approximates the time to burst without sampling weather.
// Estimates beyond limit are reported as limit with ok false, as is a
// balloon that never reaches burst altitude.
func EstimateDuration(launch models.LaunchSpec, step, limit time.Duration) (time.Duration, bool) {
	if step <= 0 {
		step = time.Minute
	}
	if limit <= 0 {
		limit = DefaultMaxDuration
	}
	b := launch.Balloon
	if b.EffectiveAscentMode() != models.AscentBuoyancy {
		secs := (b.BurstAltitude - launch.Altitude) / b.AscentRate
		if !(secs <= limit.Seconds()) {
			return limit, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}

	dt := step.Seconds()
	alt := launch.Altitude
	elapsed := 0.0
	for alt < b.BurstAltitude {
		rate := Rate(b, alt, launch.Altitude)
		if !(rate > 0) || elapsed > limit.Seconds() {
			return limit, false
		}
		alt += rate * dt
		elapsed += dt
	}
	return time.Duration(elapsed * float64(time.Second)), true
}

func at(start time.Time, elapsed float64) time.Time {
	return start.Add(time.Duration(math.Round(elapsed * float64(time.Second))))
}

func point(t time.Time, pos drift.Position, alt, rate float64, wc models.WeatherConditions, phase models.Phase) models.TrajectoryPoint {
	return models.TrajectoryPoint{
		Time:             t,
		Latitude:         pos.Lat,
		Longitude:        pos.Lon,
		Altitude:         alt,
		VerticalVelocity: rate,
		WindSpeed:        wc.WindSpeed(),
		WindDirection:    wc.WindDirection(),
		Phase:            phase,
	}
}
