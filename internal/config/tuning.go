// Package config loads engine tuning overrides from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lox/balloonpredict/internal/predict"
)

// DefaultConfigPath is where the example tuning file lives in the repo.
const DefaultConfigPath = "config/tuning.example.json"

// TuningConfig holds optional overrides for the prediction engine. Fields
// left out of the JSON keep the engine defaults, so partial files are safe.
// Durations are strings like "1s" or "30m".
type TuningConfig struct {
	// Integration
	AscentTimestep     *string `json:"ascent_timestep,omitempty"`
	AscentLogInterval  *int    `json:"ascent_log_interval,omitempty"`
	AscentMaxDuration  *string `json:"ascent_max_duration,omitempty"`
	DescentTimestep    *string `json:"descent_timestep,omitempty"`
	DescentLogInterval *int    `json:"descent_log_interval,omitempty"`
	DescentMaxDuration *string `json:"descent_max_duration,omitempty"`

	// Monte Carlo
	Samples         *int      `json:"samples,omitempty"`
	RMSWindError    *float64  `json:"rms_wind_error,omitempty"`
	ConfidenceLevel *float64  `json:"confidence_level,omitempty"`
	CorrelationTime *string   `json:"correlation_time,omitempty"`
	Seed            *uint64   `json:"seed,omitempty"`
	Workers         *int      `json:"workers,omitempty"`
	Percentiles     []float64 `json:"percentiles,omitempty"`

	// Orchestration
	SkipUncertainty    *bool    `json:"skip_uncertainty,omitempty"`
	UncertaintyTimeout *string  `json:"uncertainty_timeout,omitempty"`
	WindowPadding      *float64 `json:"window_padding,omitempty"`
	WindowMargin       *string  `json:"window_margin,omitempty"`
	WeatherRadiusDeg   *float64 `json:"weather_radius_deg,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that every duration parses and fractions are in range.
// Engine-level limits are checked again by predict.Config.Validate.
func (c *TuningConfig) Validate() error {
	durations := map[string]*string{
		"ascent_timestep":      c.AscentTimestep,
		"ascent_max_duration":  c.AscentMaxDuration,
		"descent_timestep":     c.DescentTimestep,
		"descent_max_duration": c.DescentMaxDuration,
		"correlation_time":     c.CorrelationTime,
		"uncertainty_timeout":  c.UncertaintyTimeout,
		"window_margin":        c.WindowMargin,
	}
	for name, v := range durations {
		if v == nil {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, *v)
		}
	}

	if c.ConfidenceLevel != nil && (*c.ConfidenceLevel <= 0 || *c.ConfidenceLevel >= 1) {
		return fmt.Errorf("confidence_level must be between 0 and 1, got %f", *c.ConfidenceLevel)
	}
	if c.RMSWindError != nil && *c.RMSWindError < 0 {
		return fmt.Errorf("rms_wind_error must not be negative, got %f", *c.RMSWindError)
	}
	for _, p := range c.Percentiles {
		if !(p > 0 && p <= 100) {
			return fmt.Errorf("percentiles must be in (0, 100], got %f", p)
		}
	}
	return nil
}

// Apply returns base with every set field overridden.
func (c *TuningConfig) Apply(base predict.Config) predict.Config {
	if c == nil {
		return base
	}
	cfg := base

	setDuration(&cfg.Ascent.Timestep, c.AscentTimestep)
	setInt(&cfg.Ascent.LogInterval, c.AscentLogInterval)
	setDuration(&cfg.Ascent.MaxDuration, c.AscentMaxDuration)
	setDuration(&cfg.Descent.Timestep, c.DescentTimestep)
	setInt(&cfg.Descent.LogInterval, c.DescentLogInterval)
	setDuration(&cfg.Descent.MaxDuration, c.DescentMaxDuration)

	setInt(&cfg.MonteCarlo.Samples, c.Samples)
	setFloat(&cfg.MonteCarlo.RMSWindError, c.RMSWindError)
	setFloat(&cfg.MonteCarlo.ConfidenceLevel, c.ConfidenceLevel)
	setDuration(&cfg.MonteCarlo.CorrelationTime, c.CorrelationTime)
	if c.Seed != nil {
		cfg.MonteCarlo.Seed = *c.Seed
	}
	setInt(&cfg.MonteCarlo.Workers, c.Workers)
	if len(c.Percentiles) > 0 {
		cfg.MonteCarlo.Percentiles = append([]float64(nil), c.Percentiles...)
	}

	if c.SkipUncertainty != nil {
		cfg.SkipUncertainty = *c.SkipUncertainty
	}
	setDuration(&cfg.UncertaintyTimeout, c.UncertaintyTimeout)
	setFloat(&cfg.WindowPadding, c.WindowPadding)
	setDuration(&cfg.WindowMargin, c.WindowMargin)
	setFloat(&cfg.WeatherRadiusDeg, c.WeatherRadiusDeg)
	return cfg
}

// Load reads path, if set, and applies it over the engine defaults.
func Load(path string) (predict.Config, error) {
	base := predict.DefaultConfig()
	if path == "" {
		return base, nil
	}
	tc, err := LoadTuningConfig(path)
	if err != nil {
		return base, err
	}
	return tc.Apply(base), nil
}

func setDuration(dst *time.Duration, v *string) {
	if v == nil {
		return
	}
	// Validate has already rejected unparseable values.
	if d, err := time.ParseDuration(*v); err == nil {
		*dst = d
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
