// Package atmosphere implements the US Standard Atmosphere 1976 up to 60 km.
package atmosphere

import "math"

const (
	G0              = 9.80665   // standard gravity (m/s²)
	GasConstant     = 8.3144598 // universal gas constant (J/(mol·K))
	MolarMassAir    = 0.0289644 // kg/mol
	MolarMassHelium = 0.0040026 // kg/mol
	ZeroCelsius     = 273.15

	MinAltitude = -500.0
	MaxAltitude = 60000.0
)

// layer is one segment of the standard atmosphere with a constant lapse rate.
type layer struct {
	base     float64 // m
	lapse    float64 // K/m
	temp     float64 // K at base
	pressure float64 // Pa at base
}

var layers = []layer{
	{base: 0, lapse: -0.0065, temp: 288.15, pressure: 101325.0},
	{base: 11000, lapse: 0.0, temp: 216.65, pressure: 22632.06},
	{base: 20000, lapse: 0.001, temp: 216.65, pressure: 5474.889},
	{base: 32000, lapse: 0.0028, temp: 228.65, pressure: 868.0187},
	{base: 47000, lapse: 0.0, temp: 270.65, pressure: 110.9063},
	{base: 51000, lapse: -0.0028, temp: 270.65, pressure: 66.93887},
}

// State is the standard atmosphere at a single altitude.
type State struct {
	Altitude    float64 // m, after clamping
	Temperature float64 // K
	Pressure    float64 // Pa
	Density     float64 // kg/m³
}

// Clamp limits altitude to the range the model is valid for.
func Clamp(alt float64) float64 {
	if math.IsNaN(alt) {
		return 0
	}
	return math.Max(MinAltitude, math.Min(MaxAltitude, alt))
}

func layerFor(alt float64) layer {
	l := layers[0]
	for _, candidate := range layers[1:] {
		if alt < candidate.base {
			break
		}
		l = candidate
	}
	return l
}

// At returns temperature, pressure and density at alt. Out of range
// altitudes are clamped rather than rejected.
func At(alt float64) State {
	alt = Clamp(alt)
	l := layerFor(alt)
	dh := alt - l.base
	temp := l.temp + l.lapse*dh

	var p float64
	if l.lapse == 0 {
		p = l.pressure * math.Exp(-G0*MolarMassAir*dh/(GasConstant*l.temp))
	} else {
		p = l.pressure * math.Pow(l.temp/temp, G0*MolarMassAir/(GasConstant*l.lapse))
	}

	return State{
		Altitude:    alt,
		Temperature: temp,
		Pressure:    p,
		Density:     p * MolarMassAir / (GasConstant * temp),
	}
}

// Density returns air density in kg/m³.
func Density(alt float64) float64 { return At(alt).Density }

// Temperature returns air temperature in kelvin.
func Temperature(alt float64) float64 { return At(alt).Temperature }

// Pressure returns air pressure in pascals.
func Pressure(alt float64) float64 { return At(alt).Pressure }

// GasDensity returns the density of a gas of the given molar mass at ambient
// temperature and pressure.
func GasDensity(molarMass, alt float64) float64 {
	s := At(alt)
	return s.Pressure * molarMass / (GasConstant * s.Temperature)
}
