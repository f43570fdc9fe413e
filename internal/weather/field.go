// Package weather interpolates wind and atmospheric conditions over time,
// altitude and horizontal position.
package weather

import (
	"errors"
	"fmt"
	"time"

	"github.com/lox/balloonpredict/internal/atmosphere"
	"github.com/lox/balloonpredict/internal/models"
)

// Field answers point queries for weather conditions. Implementations must
// be safe for concurrent use by Monte Carlo workers.
type Field interface {
	Sample(lat, lon, alt float64, t time.Time) (models.WeatherConditions, error)
}

// SampleQuery is a single position and time to sample.
type SampleQuery struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Time      time.Time
}

// BatchSample samples every query in order, failing on the first error.
func BatchSample(f Field, queries []SampleQuery) ([]models.WeatherConditions, error) {
	out := make([]models.WeatherConditions, len(queries))
	for i, q := range queries {
		wc, err := f.Sample(q.Latitude, q.Longitude, q.Altitude, q.Time)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = wc
	}
	return out, nil
}

// Constant is a horizontally and temporally uniform wind over the standard
// atmosphere.
type Constant struct {
	U, V       float64
	Confidence float64
}

// NewConstant returns a uniform field with full confidence.
func NewConstant(u, v float64) *Constant {
	return &Constant{U: u, V: v, Confidence: 1}
}

// StandardAtmosphere is the calm fallback used when no forecast data exists.
func StandardAtmosphere() *Constant {
	return &Constant{Confidence: fallbackConfidence}
}

func (c *Constant) Sample(lat, lon, alt float64, t time.Time) (models.WeatherConditions, error) {
	s := atmosphere.At(alt)
	return models.WeatherConditions{
		Time:        t,
		Altitude:    alt,
		WindU:       c.U,
		WindV:       c.V,
		Temperature: s.Temperature - atmosphere.ZeroCelsius,
		Pressure:    s.Pressure / 100,
		Confidence:  c.Confidence,
	}, nil
}

const (
	fallbackConfidence = 0.1
	fallbackPenalty    = 0.25
)

// WithFallback samples primary and, when it has no data, fallback instead.
// Fallback samples are marked extrapolated with reduced confidence.
func WithFallback(primary, fallback Field) Field {
	return &fallbackField{primary: primary, fallback: fallback}
}

type fallbackField struct {
	primary  Field
	fallback Field
}

func (f *fallbackField) Sample(lat, lon, alt float64, t time.Time) (models.WeatherConditions, error) {
	wc, err := f.primary.Sample(lat, lon, alt, t)
	if err == nil {
		return wc, nil
	}
	if !errors.Is(err, models.ErrDataUnavailable) {
		return models.WeatherConditions{}, err
	}
	wc, err = f.fallback.Sample(lat, lon, alt, t)
	if err != nil {
		return models.WeatherConditions{}, fmt.Errorf("fallback: %w", err)
	}
	wc.Confidence *= fallbackPenalty
	wc.Extrapolated = true
	return wc, nil
}
