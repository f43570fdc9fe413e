package ingest

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/lox/balloonpredict/internal/metrics"
	"github.com/lox/balloonpredict/internal/weather"
)

const (
	FlagNonFinite          = "non_finite"
	FlagLatitudeInvalid    = "latitude_invalid"
	FlagLongitudeInvalid   = "longitude_invalid"
	FlagAltitudeOutOfRange = "altitude_out_of_range"
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagConfidenceInvalid  = "confidence_invalid"
	FlagMissingTime        = "missing_time"
)

// Upper-air plausibility limits. Jet stream cores rarely exceed 100 m/s.
const (
	minAltitude  = -500.0
	maxAltitude  = 60000.0
	minTemp      = -120.0
	maxTemp      = 60.0
	maxWindSpeed = 150.0
	maxPressure  = 1100.0
)

// ValidatePoint returns the quality flags raised by p. A point with any flag
// is not fit to build a grid from.
func ValidatePoint(p weather.Point) []string {
	var flags []string

	for _, v := range []float64{p.Latitude, p.Longitude, p.Altitude, p.WindU, p.WindV, p.Temperature, p.Pressure, p.Humidity, p.Confidence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return []string{FlagNonFinite}
		}
	}

	if p.Time.IsZero() {
		flags = append(flags, FlagMissingTime)
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		flags = append(flags, FlagLatitudeInvalid)
	}
	// Query boxes may extend one radius past the antimeridian.
	if p.Longitude < -180-weather.MaxRadiusDeg || p.Longitude > 180+weather.MaxRadiusDeg {
		flags = append(flags, FlagLongitudeInvalid)
	}
	if p.Altitude < minAltitude || p.Altitude > maxAltitude {
		flags = append(flags, FlagAltitudeOutOfRange)
	}
	if p.Temperature < minTemp || p.Temperature > maxTemp {
		flags = append(flags, FlagTempOutOfRange)
	}
	if p.Humidity < 0 || p.Humidity > 100 {
		flags = append(flags, FlagHumidityInvalid)
	}
	if p.WindSpeed() > maxWindSpeed {
		flags = append(flags, FlagWindSpeedUnlikely)
	}
	if p.Pressure < 0 || p.Pressure > maxPressure {
		flags = append(flags, FlagPressureOutOfRange)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		flags = append(flags, FlagConfidenceInvalid)
	}

	return flags
}

// FilterPoints drops points that raise any flag, counting them against
// source, and returns the distinct flags raised.
func FilterPoints(source string, points []weather.Point) ([]weather.Point, []string) {
	kept := make([]weather.Point, 0, len(points))
	seen := map[string]bool{}
	var raised []string
	for _, p := range points {
		flags := ValidatePoint(p)
		if len(flags) == 0 {
			kept = append(kept, p)
			continue
		}
		metrics.WeatherPointsRejected.WithLabelValues(source, flags[0]).Inc()
		for _, f := range flags {
			if !seen[f] {
				seen[f] = true
				raised = append(raised, f)
			}
		}
	}
	metrics.WeatherPointsIngested.WithLabelValues(source).Add(float64(len(kept)))
	sort.Strings(raised)
	return kept, raised
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}

// WindComponents converts a meteorological wind (speed, direction blowing
// from in degrees) into eastward and northward components.
func WindComponents(speed, fromDeg float64) (u, v float64) {
	rad := fromDeg * math.Pi / 180
	return -speed * math.Sin(rad), -speed * math.Cos(rad)
}
