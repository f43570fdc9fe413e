package predict

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lox/balloonpredict/internal/geo"
	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/montecarlo"
	"github.com/lox/balloonpredict/internal/weather"
)

// Samples extrapolated beyond the forecast data above this share lower
// otherwise good data to fair.
const extrapolatedLimit = 0.25

type preparedWeather struct {
	field   weather.Field
	quality models.QualityAssessment
}

// prepareWeather fetches the forecast window once and grades it. Missing or
// partial data never fails the prediction; the standard atmosphere with calm
// winds stands in where the grid has nothing.
func (o *Orchestrator) prepareWeather(ctx context.Context, launch models.LaunchSpec) (*preparedWeather, error) {
	start, end := Window(launch, o.cfg)
	q, err := weather.NewQuery(launch.Latitude, launch.Longitude, start, end, weather.WithRadius(o.cfg.WeatherRadiusDeg))
	if err != nil {
		return nil, err
	}

	grid, err := o.fetch(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("weather fetch: %w", ctx.Err())
		}
		o.log.Warn(ctx, "predict: weather fetch failed", logging.Err(err))
		return poorWeather(fmt.Sprintf("weather data unavailable (%v); using standard atmosphere with calm winds", err)), nil
	}
	if grid.Empty() {
		return poorWeather("no weather data for the flight window; using standard atmosphere with calm winds"), nil
	}

	cov := grid.Coverage(start, end)
	prep := &preparedWeather{
		field: weather.WithFallback(grid, weather.StandardAtmosphere()),
		quality: models.QualityAssessment{
			WeatherDataQuality: models.QualityGood,
			Coverage:           cov.Fraction,
		},
	}
	qa := &prep.quality

	switch {
	case cov.Full():
	case cov.Partial():
		qa.WeatherDataQuality = models.QualityFair
		qa.DegradedMode = true
		qa.Warnings = append(qa.Warnings, fmt.Sprintf(
			"forecast covers %.0f%% of the estimated flight window (%s to %s); winds outside it are extrapolated",
			cov.Fraction*100, cov.Start.Format("2006-01-02 15:04Z"), cov.End.Format("2006-01-02 15:04Z")))
	default:
		qa.WeatherDataQuality = models.QualityPoor
		qa.DegradedMode = true
		qa.Warnings = append(qa.Warnings, fmt.Sprintf(
			"forecast (%s to %s) does not overlap the flight window; winds are extrapolated",
			cov.Start.Format("2006-01-02 15:04Z"), cov.End.Format("2006-01-02 15:04Z")))
	}

	if !grid.Contains(launch.Latitude, launch.Longitude) {
		downgrade(qa, models.QualityFair)
		qa.Warnings = append(qa.Warnings, "launch site is outside the forecast grid")
	}

	o.log.Debug(ctx, "predict: weather prepared",
		logging.String("source", grid.Source),
		logging.Float("coverage", cov.Fraction),
		logging.String("quality", string(qa.WeatherDataQuality)),
	)
	return prep, nil
}

func (o *Orchestrator) fetch(ctx context.Context, q weather.Query) (*weather.Grid, error) {
	if o.provider == nil {
		return nil, errNoProvider
	}
	return o.provider.Fetch(ctx, q)
}

func poorWeather(warning string) *preparedWeather {
	return &preparedWeather{
		field: weather.StandardAtmosphere(),
		quality: models.QualityAssessment{
			WeatherDataQuality: models.QualityPoor,
			DegradedMode:       true,
			Warnings:           []string{warning},
		},
	}
}

// downgrade lowers the quality to q if it is currently better.
func downgrade(qa *models.QualityAssessment, q models.DataQuality) {
	rank := map[models.DataQuality]int{models.QualityGood: 0, models.QualityFair: 1, models.QualityPoor: 2}
	if rank[q] > rank[qa.WeatherDataQuality] {
		qa.WeatherDataQuality = q
		qa.DegradedMode = true
	}
}

// assessSamples folds the confidence of every sample taken during the
// flight into the assessment.
func assessSamples(qa *models.QualityAssessment, s weather.Stats) {
	qa.MeanConfidence = s.MeanConfidence()
	qa.MinConfidence = s.MinConfidence
	qa.ExtrapolatedSamples = s.Extrapolated
	if qa.WeatherDataQuality == models.QualityGood && s.ExtrapolatedFraction() > extrapolatedLimit {
		downgrade(qa, models.QualityFair)
		qa.Warnings = append(qa.Warnings, fmt.Sprintf(
			"%.0f%% of weather samples were extrapolated beyond the forecast data", s.ExtrapolatedFraction()*100))
	}
}

func analysis(mc *montecarlo.Result, launch models.LaunchSpec, m models.FlightMetrics, qa models.QualityAssessment) *models.UncertaintyAnalysis {
	factors := []string{
		fmt.Sprintf("forecast wind error of %.1f m/s RMS", mc.RMSWindError),
		fmt.Sprintf("flight duration of %s", m.Duration.Round(time.Second)),
	}
	if launch.Balloon.EffectiveAscentMode() == models.AscentBuoyancy {
		factors = append(factors, "ascent rate derived from balloon volume and lift")
	}
	if qa.WeatherDataQuality != models.QualityGood {
		factors = append(factors, fmt.Sprintf("%s weather data quality", qa.WeatherDataQuality))
	}
	if qa.ExtrapolatedSamples > 0 {
		factors = append(factors, fmt.Sprintf("%d weather samples extrapolated", qa.ExtrapolatedSamples))
	}
	return &models.UncertaintyAnalysis{
		LandingRadiusKm:     mc.LandingRadiusKm,
		BurstRadiusKm:       mc.BurstRadiusKm,
		ConfidenceLevel:     mc.ConfidenceLevel,
		Samples:             mc.Samples,
		RMSWindError:        mc.RMSWindError,
		Percentiles:         mc.Percentiles,
		MeanOffsetKm:        mc.MeanOffsetKm,
		ContributingFactors: factors,
	}
}

func flightMetrics(launch models.LaunchSpec, points []models.TrajectoryPoint, burst, landing models.Site) models.FlightMetrics {
	m := models.FlightMetrics{
		Duration:        landing.Time.Sub(launch.LaunchTime),
		AscentDuration:  burst.Time.Sub(launch.LaunchTime),
		DescentDuration: landing.Time.Sub(burst.Time),
		MaxAltitude:     burst.Altitude,
	}
	for i, p := range points {
		m.MaxAltitude = math.Max(m.MaxAltitude, p.Altitude)
		if i > 0 {
			prev := points[i-1]
			m.TotalDistanceKm += geo.DistanceKm(prev.Latitude, prev.Longitude, p.Latitude, p.Longitude)
		}
	}
	m.DirectDistanceKm = geo.DistanceKm(launch.Latitude, launch.Longitude, landing.Latitude, landing.Longitude)
	if m.DirectDistanceKm > 0 {
		m.BearingDeg = geo.BearingDeg(launch.Latitude, launch.Longitude, landing.Latitude, landing.Longitude)
	}
	if s := m.AscentDuration.Seconds(); s > 0 {
		m.AverageAscentRate = (burst.Altitude - launch.Altitude) / s
	}
	if s := m.DescentDuration.Seconds(); s > 0 {
		m.AverageDescentRate = (burst.Altitude - landing.Altitude) / s
	}
	return m
}
