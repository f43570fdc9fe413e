// Package predict runs a full flight prediction: validation, weather
// preparation, ascent, descent and uncertainty analysis.
package predict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lox/balloonpredict/internal/ascent"
	"github.com/lox/balloonpredict/internal/descent"
	"github.com/lox/balloonpredict/internal/drift"
	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/metrics"
	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/montecarlo"
	"github.com/lox/balloonpredict/internal/observability"
	"github.com/lox/balloonpredict/internal/weather"
)

type Phase string

const (
	PhaseValidating          Phase = "validating"
	PhaseWeatherPreparation  Phase = "weather_preparation"
	PhaseAscending           Phase = "ascending"
	PhaseDescending          Phase = "descending"
	PhaseUncertaintyAnalysis Phase = "uncertainty_analysis"
	PhaseComplete            Phase = "complete"
	PhaseError               Phase = "error"
)

// PhaseObserver is called synchronously as a prediction enters each phase.
type PhaseObserver func(Phase)

type Option func(*Orchestrator)

func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

func WithObserver(fn PhaseObserver) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator is safe for concurrent use; each Predict call owns its state.
type Orchestrator struct {
	provider weather.Provider
	cfg      Config
	log      logging.Logger
	observer PhaseObserver
	now      func() time.Time
}

// New returns an orchestrator that fetches weather from provider. A nil
// provider predicts on the standard atmosphere with calm winds.
func New(provider weather.Provider, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		cfg:      cfg,
		log:      logging.Noop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Predict runs every phase for launch. Validation, configuration and
// simulation failures are returned as errors; weather and uncertainty
// problems degrade the result and are recorded in its quality warnings.
func (o *Orchestrator) Predict(ctx context.Context, launch models.LaunchSpec) (*models.PredictionResult, error) {
	started := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "predict")
	defer span.End()

	res, err := o.predict(ctx, launch)
	metrics.PredictionDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		o.notify(PhaseError)
		metrics.PredictionsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.log.Warn(ctx, "predict: failed", logging.String("kind", models.KindOf(err).String()), logging.Err(err))
		return nil, err
	}

	o.notify(PhaseComplete)
	metrics.PredictionsTotal.WithLabelValues("ok").Inc()
	metrics.PredictionQuality.WithLabelValues(string(res.Quality.WeatherDataQuality)).Inc()
	span.SetAttributes(
		attribute.String("prediction.id", res.ID),
		attribute.String("prediction.quality", string(res.Quality.WeatherDataQuality)),
	)
	o.log.Info(ctx, "predict: complete",
		logging.String("id", res.ID),
		logging.Float("landing_lat", res.LandingSite.Latitude),
		logging.Float("landing_lon", res.LandingSite.Longitude),
		logging.Float("landing_radius_km", res.LandingSite.UncertaintyRadiusKm),
		logging.String("quality", string(res.Quality.WeatherDataQuality)),
		logging.Int("warnings", len(res.Quality.Warnings)),
	)
	return res, nil
}

func (o *Orchestrator) predict(ctx context.Context, launch models.LaunchSpec) (*models.PredictionResult, error) {
	_, done := o.enter(ctx, PhaseValidating)
	err := o.validate(launch)
	done(err)
	if err != nil {
		return nil, err
	}

	pctx, done := o.enter(ctx, PhaseWeatherPreparation)
	prep, err := o.prepareWeather(pctx, launch)
	done(err)
	if err != nil {
		return nil, err
	}

	pctx, done = o.enter(ctx, PhaseAscending)
	up, err := ascent.New(prep.field, o.cfg.Ascent, o.log).Run(pctx, launch)
	done(err)
	if err != nil {
		return nil, err
	}

	pctx, done = o.enter(ctx, PhaseDescending)
	down, err := descent.New(prep.field, o.cfg.Descent, o.log).Run(pctx, up.Burst, launch.Balloon, launch.Ground())
	done(err)
	if err != nil {
		return nil, err
	}

	res := &models.PredictionResult{
		ID:          uuid.NewString(),
		GeneratedAt: o.now().UTC(),
		Launch:      launch,
		Trajectory:  append(append([]models.TrajectoryPoint{}, up.Points...), down.Points...),
		BurstSite:   up.Burst,
		LandingSite: down.Landing,
	}
	res.Metrics = flightMetrics(launch, res.Trajectory, up.Burst, down.Landing)

	stats := up.Stats
	stats.Merge(down.Stats)
	quality := prep.quality
	assessSamples(&quality, stats)

	if o.cfg.SkipUncertainty {
		quality.Warnings = append(quality.Warnings, "uncertainty analysis disabled")
	} else {
		pctx, done = o.enter(ctx, PhaseUncertaintyAnalysis)
		mc, err := o.uncertainty(pctx, launch, up, down)
		done(err)
		switch {
		case err == nil:
			res.Uncertainty = analysis(mc, launch, res.Metrics, quality)
			res.BurstSite.UncertaintyRadiusKm = mc.BurstRadiusKm
			res.BurstSite.Confidence = mc.ConfidenceLevel
			res.LandingSite.UncertaintyRadiusKm = mc.LandingRadiusKm
			res.LandingSite.Confidence = mc.ConfidenceLevel
		case ctx.Err() != nil:
			return nil, fmt.Errorf("uncertainty analysis: %w", ctx.Err())
		default:
			o.log.Warn(ctx, "predict: uncertainty analysis failed", logging.Err(err))
			quality.Warnings = append(quality.Warnings, fmt.Sprintf("uncertainty analysis failed: %v", err))
		}
	}

	if quality.Warnings == nil {
		quality.Warnings = []string{}
	}
	res.Quality = quality
	return res, nil
}

func (o *Orchestrator) validate(launch models.LaunchSpec) error {
	if v := launch.Validate(); len(v) > 0 {
		return models.InvalidInput("validate launch", v)
	}
	return o.cfg.Validate()
}

func (o *Orchestrator) uncertainty(ctx context.Context, launch models.LaunchSpec, up *ascent.Result, down *descent.Result) (*montecarlo.Result, error) {
	if o.cfg.UncertaintyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.UncertaintyTimeout)
		defer cancel()
	}
	return montecarlo.New(o.cfg.MonteCarlo, o.log).Run(ctx, montecarlo.Input{
		Start:   drift.Position{Lat: launch.Latitude, Lon: launch.Longitude},
		Ascent:  up.Segments,
		Descent: down.Segments,
		Burst:   drift.Position{Lat: up.Burst.Latitude, Lon: up.Burst.Longitude},
		Landing: drift.Position{Lat: down.Landing.Latitude, Lon: down.Landing.Longitude},
	})
}

// enter reports the phase and opens its span. The returned func closes it.
func (o *Orchestrator) enter(ctx context.Context, p Phase) (context.Context, func(error)) {
	o.notify(p)
	o.log.Debug(ctx, "predict: phase", logging.String("phase", string(p)))
	ctx, span := observability.Tracer().Start(ctx, "predict."+string(p))
	start := time.Now()
	return ctx, func(err error) {
		metrics.PhaseDuration.WithLabelValues(string(p)).Observe(time.Since(start).Seconds())
		endSpan(span, err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (o *Orchestrator) notify(p Phase) {
	if o.observer != nil {
		o.observer(p)
	}
}

// EstimateDuration returns a rough flight time used to size the weather
// window: ascent distance over rate plus a coarse descent on the standard
// atmosphere. Each leg is capped at its simulator's safety bound.
func EstimateDuration(launch models.LaunchSpec, cfg Config) time.Duration {
	up, _ := ascent.EstimateDuration(launch, time.Minute, cfg.Ascent.MaxDuration)
	down := descent.EstimateDuration(launch.Balloon, launch.Balloon.BurstAltitude, launch.Ground(), 10*time.Second, cfg.Descent.MaxDuration)
	return up + down
}

// Window returns the forecast window for launch.
func Window(launch models.LaunchSpec, cfg Config) (time.Time, time.Time) {
	est := EstimateDuration(launch, cfg)
	padded := time.Duration(float64(est)*(1+cfg.WindowPadding)) + cfg.WindowMargin
	return launch.LaunchTime, launch.LaunchTime.Add(padded)
}

var errNoProvider = errors.New("no weather provider configured")
