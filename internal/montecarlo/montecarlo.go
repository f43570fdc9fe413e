// Package montecarlo estimates landing uncertainty by re-integrating a
// flight's wind drift with perturbed winds.
package montecarlo

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/balloonpredict/internal/drift"
	"github.com/lox/balloonpredict/internal/geo"
	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/metrics"
	"github.com/lox/balloonpredict/internal/models"
)

const (
	DefaultSamples         = 100
	MinSamples             = 10
	DefaultConfidence      = 0.95
	DefaultRMSWindError    = 2.0 // m/s
	DefaultCorrelationTime = 30 * time.Minute
	DefaultSeed            = 1
)

// DefaultPercentiles are reported alongside the landing radius.
var DefaultPercentiles = []float64{10, 50, 90, 95}

type Config struct {
	Samples         int           `json:"samples"`
	RMSWindError    float64       `json:"rmsWindError"` // m/s
	ConfidenceLevel float64       `json:"confidenceLevel"`
	CorrelationTime time.Duration `json:"correlationTime"`
	Seed            uint64        `json:"seed"`
	Workers         int           `json:"workers"` // 0 uses GOMAXPROCS
	Percentiles     []float64     `json:"percentiles"`
}

func DefaultConfig() Config {
	return Config{
		Samples:         DefaultSamples,
		RMSWindError:    DefaultRMSWindError,
		ConfidenceLevel: DefaultConfidence,
		CorrelationTime: DefaultCorrelationTime,
		Seed:            DefaultSeed,
		Percentiles:     DefaultPercentiles,
	}
}

// Validate reports too few samples as InsufficientSamples and any other bad
// setting as InvalidInput.
func (c Config) Validate() error {
	if c.Samples < MinSamples {
		return models.Errorf(models.KindInsufficientSamples, "monte carlo",
			"%d samples requested, at least %d required", c.Samples, MinSamples)
	}
	var violations []models.Violation
	if c.RMSWindError < 0 || math.IsNaN(c.RMSWindError) || math.IsInf(c.RMSWindError, 0) {
		violations = append(violations, models.Violation{Field: "rmsWindError", Message: "must be a finite value >= 0"})
	}
	if !(c.ConfidenceLevel > 0 && c.ConfidenceLevel < 1) {
		violations = append(violations, models.Violation{Field: "confidenceLevel", Message: "must be within (0, 1)"})
	}
	if c.CorrelationTime < 0 {
		violations = append(violations, models.Violation{Field: "correlationTime", Message: "must be >= 0"})
	}
	for _, p := range c.Percentiles {
		if !(p > 0 && p <= 100) {
			violations = append(violations, models.Violation{Field: "percentiles", Message: fmt.Sprintf("%v outside (0, 100]", p)})
			break
		}
	}
	if len(violations) > 0 {
		return models.InvalidInput("monte carlo", violations)
	}
	return nil
}

// Input is the deterministic flight to perturb: its starting position, the
// drift segments of each leg, and where the unperturbed flight burst and
// landed.
type Input struct {
	Start   drift.Position
	Ascent  []drift.Segment
	Descent []drift.Segment
	Burst   drift.Position
	Landing drift.Position
}

type Result struct {
	LandingRadiusKm float64
	BurstRadiusKm   float64
	ConfidenceLevel float64
	Samples         int
	RMSWindError    float64
	MeanOffsetKm    float64
	Percentiles     []models.Percentile
}

type Engine struct {
	cfg Config
	log logging.Logger
}

func New(cfg Config, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	if cfg.Percentiles == nil {
		cfg.Percentiles = DefaultPercentiles
	}
	return &Engine{cfg: cfg, log: log}
}

// Run draws the configured number of perturbed flights on a bounded worker
// pool. Sample i always uses the stream seeded by (Seed, i), so results do
// not depend on scheduling.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	n := e.cfg.Samples
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	landing := make([]float64, n)
	burst := make([]float64, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, l := e.sample(uint64(i), in)
			burst[i] = geo.DistanceKm(in.Burst.Lat, in.Burst.Lon, b.Lat, b.Lon)
			landing[i] = geo.DistanceKm(in.Landing.Lat, in.Landing.Lon, l.Lat, l.Lon)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.MonteCarloSamples.WithLabelValues("cancelled").Add(float64(n))
		return nil, fmt.Errorf("monte carlo: %w", err)
	}
	if err := ctx.Err(); err != nil {
		metrics.MonteCarloSamples.WithLabelValues("cancelled").Add(float64(n))
		return nil, fmt.Errorf("monte carlo: %w", err)
	}
	metrics.MonteCarloSamples.WithLabelValues("ok").Add(float64(n))

	sort.Float64s(landing)
	sort.Float64s(burst)

	res := &Result{
		LandingRadiusKm: stat.Quantile(e.cfg.ConfidenceLevel, stat.Empirical, landing, nil),
		BurstRadiusKm:   stat.Quantile(e.cfg.ConfidenceLevel, stat.Empirical, burst, nil),
		ConfidenceLevel: e.cfg.ConfidenceLevel,
		Samples:         n,
		RMSWindError:    e.cfg.RMSWindError,
		MeanOffsetKm:    stat.Mean(landing, nil),
	}
	for _, p := range e.cfg.Percentiles {
		res.Percentiles = append(res.Percentiles, models.Percentile{
			Percent:    p,
			DistanceKm: stat.Quantile(p/100, stat.Empirical, landing, nil),
		})
	}

	e.log.Debug(ctx, "montecarlo: complete",
		logging.Int("samples", n),
		logging.Float("landing_radius_km", res.LandingRadiusKm),
		logging.Float("burst_radius_km", res.BurstRadiusKm),
	)
	return res, nil
}

// sample re-integrates both legs with one perturber, so a held wind error
// carries across burst.
func (e *Engine) sample(i uint64, in Input) (burst, landing drift.Position) {
	p := drift.NewPerturber(e.cfg.RMSWindError, e.cfg.CorrelationTime.Seconds(), rand.NewPCG(e.cfg.Seed, i))
	integ := drift.NewPerturbed(p)

	pos := in.Start
	for _, s := range in.Ascent {
		pos = integ.Step(pos, s.U, s.V, s.Dt)
	}
	burst = pos
	for _, s := range in.Descent {
		pos = integ.Step(pos, s.U, s.V, s.Dt)
	}
	return burst, pos
}
