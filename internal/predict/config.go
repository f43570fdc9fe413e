package predict

import (
	"time"

	"github.com/lox/balloonpredict/internal/ascent"
	"github.com/lox/balloonpredict/internal/descent"
	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/montecarlo"
	"github.com/lox/balloonpredict/internal/weather"
)

const (
	DefaultWindowPadding      = 0.25
	DefaultWindowMargin       = 30 * time.Minute
	DefaultUncertaintyTimeout = 30 * time.Second
)

type Config struct {
	Ascent     ascent.Config     `json:"ascent"`
	Descent    descent.Config    `json:"descent"`
	MonteCarlo montecarlo.Config `json:"monteCarlo"`

	// SkipUncertainty disables the Monte Carlo phase.
	SkipUncertainty bool `json:"skipUncertainty"`
	// UncertaintyTimeout bounds the Monte Carlo phase. When it expires the
	// prediction is returned without uncertainty.
	UncertaintyTimeout time.Duration `json:"uncertaintyTimeout"`

	// The weather window is the estimated flight duration scaled by
	// 1+WindowPadding plus WindowMargin.
	WindowPadding    float64       `json:"windowPadding"`
	WindowMargin     time.Duration `json:"windowMargin"`
	WeatherRadiusDeg float64       `json:"weatherRadiusDeg"`
}

func DefaultConfig() Config {
	return Config{
		Ascent:             ascent.DefaultConfig(),
		Descent:            descent.DefaultConfig(),
		MonteCarlo:         montecarlo.DefaultConfig(),
		UncertaintyTimeout: DefaultUncertaintyTimeout,
		WindowPadding:      DefaultWindowPadding,
		WindowMargin:       DefaultWindowMargin,
		WeatherRadiusDeg:   weather.DefaultRadiusDeg,
	}
}

// Validate checks every setting. Monte Carlo settings are only checked when
// the phase is enabled; too few samples is reported as InsufficientSamples.
func (c Config) Validate() error {
	var violations []models.Violation
	if c.Ascent.Timestep < 0 {
		violations = append(violations, models.Violation{Field: "ascent.timestep", Message: "must be >= 0"})
	}
	if c.Ascent.MaxDuration < 0 {
		violations = append(violations, models.Violation{Field: "ascent.maxDuration", Message: "must be >= 0"})
	}
	if c.Descent.Timestep < 0 {
		violations = append(violations, models.Violation{Field: "descent.timestep", Message: "must be >= 0"})
	}
	if c.Descent.MaxDuration < 0 {
		violations = append(violations, models.Violation{Field: "descent.maxDuration", Message: "must be >= 0"})
	}
	if c.WindowPadding < 0 {
		violations = append(violations, models.Violation{Field: "windowPadding", Message: "must be >= 0"})
	}
	if c.WindowMargin < 0 {
		violations = append(violations, models.Violation{Field: "windowMargin", Message: "must be >= 0"})
	}
	if !(c.WeatherRadiusDeg >= 0 && c.WeatherRadiusDeg <= weather.MaxRadiusDeg) {
		violations = append(violations, models.Violation{Field: "weatherRadiusDeg", Message: "out of range"})
	}
	if len(violations) > 0 {
		return models.InvalidInput("predict config", violations)
	}
	if !c.SkipUncertainty {
		return c.MonteCarlo.Validate()
	}
	return nil
}
