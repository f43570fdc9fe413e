package models

import (
	"encoding/json"
	"math"
	"time"
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

type AscentMode string

const (
	AscentConstant AscentMode = "constant"
	AscentBuoyancy AscentMode = "buoyancy" // rate derived from volume and lift
)

// DefaultDescentArea is the drag reference area used when a configuration
// does not set one (payload plus a small parachute).
const DefaultDescentArea = 1.0

type BalloonConfiguration struct {
	Volume          float64    `json:"volume"`          // m³ at launch
	BurstAltitude   float64    `json:"burstAltitude"`   // m
	AscentRate      float64    `json:"ascentRate"`      // m/s
	PayloadWeight   float64    `json:"payloadWeight"`   // kg
	DragCoefficient float64    `json:"dragCoefficient"` // dimensionless
	DescentArea     float64    `json:"descentArea,omitempty"`
	AscentMode      AscentMode `json:"ascentMode,omitempty"`
}

// EffectiveDescentArea returns the configured drag area or the default.
func (b BalloonConfiguration) EffectiveDescentArea() float64 {
	if b.DescentArea > 0 {
		return b.DescentArea
	}
	return DefaultDescentArea
}

func (b BalloonConfiguration) EffectiveAscentMode() AscentMode {
	if b.AscentMode == "" {
		return AscentConstant
	}
	return b.AscentMode
}

type LaunchSpec struct {
	Coordinates
	LaunchTime      time.Time            `json:"launchTime"`
	Balloon         BalloonConfiguration `json:"balloon"`
	GroundElevation *float64             `json:"groundElevation,omitempty"`
}

// Ground returns the elevation the descent terminates at.
func (l LaunchSpec) Ground() float64 {
	if l.GroundElevation != nil {
		return *l.GroundElevation
	}
	return 0
}

type WeatherConditions struct {
	Time         time.Time `json:"time"`
	Altitude     float64   `json:"altitude"`
	WindU        float64   `json:"windU"`       // m/s, positive east
	WindV        float64   `json:"windV"`       // m/s, positive north
	Temperature  float64   `json:"temperature"` // °C
	Pressure     float64   `json:"pressure"`    // hPa
	Humidity     float64   `json:"humidity"`    // %
	Confidence   float64   `json:"confidence"`  // 0-1
	Extrapolated bool      `json:"extrapolated,omitempty"`
}

func (w WeatherConditions) WindSpeed() float64 {
	return math.Hypot(w.WindU, w.WindV)
}

// WindDirection returns the meteorological direction the wind blows from,
// in degrees clockwise from north.
func (w WeatherConditions) WindDirection() float64 {
	if w.WindU == 0 && w.WindV == 0 {
		return 0
	}
	deg := math.Atan2(-w.WindU, -w.WindV) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

type Phase string

const (
	PhaseAscent  Phase = "ascent"
	PhaseBurst   Phase = "burst"
	PhaseDescent Phase = "descent"
	PhaseLanded  Phase = "landed"
)

// Order returns the position of the phase in a flight; phases never move
// backward along a trajectory.
func (p Phase) Order() int {
	switch p {
	case PhaseAscent:
		return 0
	case PhaseBurst:
		return 1
	case PhaseDescent:
		return 2
	case PhaseLanded:
		return 3
	}
	return -1
}

type TrajectoryPoint struct {
	Time             time.Time `json:"timestamp"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Altitude         float64   `json:"altitude"`
	VerticalVelocity float64   `json:"verticalVelocity"`
	WindSpeed        float64   `json:"windSpeed"`
	WindDirection    float64   `json:"windDirection"`
	Phase            Phase     `json:"phase"`
}

// Site is a burst or landing location.
type Site struct {
	Coordinates
	Time                time.Time `json:"time"`
	UncertaintyRadiusKm float64   `json:"uncertaintyRadius"`
	Confidence          float64   `json:"confidence"`
}

// FlightMetrics summarises a predicted flight. Durations are encoded in JSON
// as seconds (durationSeconds, ascentDurationSeconds, descentDurationSeconds).
type FlightMetrics struct {
	Duration           time.Duration `json:"-"`
	AscentDuration     time.Duration `json:"-"`
	DescentDuration    time.Duration `json:"-"`
	MaxAltitude        float64       `json:"maxAltitude"`
	TotalDistanceKm    float64       `json:"totalDistance"`
	DirectDistanceKm   float64       `json:"directDistance"`
	BearingDeg         float64       `json:"bearing"`
	AverageAscentRate  float64       `json:"averageAscentRate"`
	AverageDescentRate float64       `json:"averageDescentRate"`
}

type flightMetricsAlias FlightMetrics

type flightMetricsJSON struct {
	flightMetricsAlias
	DurationSeconds        float64 `json:"durationSeconds"`
	AscentDurationSeconds  float64 `json:"ascentDurationSeconds"`
	DescentDurationSeconds float64 `json:"descentDurationSeconds"`
}

func (m FlightMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(flightMetricsJSON{
		flightMetricsAlias:     flightMetricsAlias(m),
		DurationSeconds:        m.Duration.Seconds(),
		AscentDurationSeconds:  m.AscentDuration.Seconds(),
		DescentDurationSeconds: m.DescentDuration.Seconds(),
	})
}

func (m *FlightMetrics) UnmarshalJSON(data []byte) error {
	var v flightMetricsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = FlightMetrics(v.flightMetricsAlias)
	m.Duration = seconds(v.DurationSeconds)
	m.AscentDuration = seconds(v.AscentDurationSeconds)
	m.DescentDuration = seconds(v.DescentDurationSeconds)
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

type UncertaintyAnalysis struct {
	LandingRadiusKm     float64      `json:"landingRadius"`
	BurstRadiusKm       float64      `json:"burstRadius"`
	ConfidenceLevel     float64      `json:"confidenceLevel"`
	Samples             int          `json:"samples"`
	RMSWindError        float64      `json:"rmsWindError"`
	Percentiles         []Percentile `json:"percentiles,omitempty"`
	MeanOffsetKm        float64      `json:"meanOffset"`
	ContributingFactors []string     `json:"contributingFactors"`
}

// Percentile is one row of the landing distance distribution.
type Percentile struct {
	Percent    float64 `json:"percent"` // 0-100
	DistanceKm float64 `json:"distance"`
}

type DataQuality string

const (
	QualityGood DataQuality = "good"
	QualityFair DataQuality = "fair"
	QualityPoor DataQuality = "poor"
)

type QualityAssessment struct {
	WeatherDataQuality  DataQuality `json:"weatherDataQuality"`
	DegradedMode        bool        `json:"degradedMode"`
	Coverage            float64     `json:"coverage"`
	MeanConfidence      float64     `json:"meanConfidence"`
	MinConfidence       float64     `json:"minConfidence"`
	ExtrapolatedSamples int         `json:"extrapolatedSamples"`
	Warnings            []string    `json:"warnings"`
}

type PredictionResult struct {
	ID          string               `json:"id"`
	GeneratedAt time.Time            `json:"generatedAt"`
	Launch      LaunchSpec           `json:"launch"`
	Trajectory  []TrajectoryPoint    `json:"trajectory"`
	BurstSite   Site                 `json:"burstSite"`
	LandingSite Site                 `json:"landingSite"`
	Metrics     FlightMetrics        `json:"metrics"`
	Uncertainty *UncertaintyAnalysis `json:"uncertainty,omitempty"`
	Quality     QualityAssessment    `json:"quality"`
}
