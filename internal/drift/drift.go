// Package drift converts wind vectors into horizontal displacement.
package drift

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lox/balloonpredict/internal/geo"
)

// minCosLat bounds the longitude divisor near the poles.
const minCosLat = 1e-6

const radToDeg = 180 / math.Pi

// Position is a horizontal location in degrees.
type Position struct {
	Lat float64
	Lon float64
}

// Segment is the drift input of one integration step, kept so the same
// flight can be re-integrated with perturbed winds.
type Segment struct {
	U  float64 // m/s east
	V  float64 // m/s north
	Dt float64 // s
}

// Displace returns the change in latitude and longitude (degrees) produced by
// wind (u east, v north, m/s) blowing for dt seconds at latitude lat.
func Displace(u, v, dt, lat float64) (dLat, dLon float64) {
	cosLat := math.Cos(lat * math.Pi / 180)
	if math.Abs(cosLat) < minCosLat {
		cosLat = math.Copysign(minCosLat, cosLat)
	}
	dLat = v * dt / geo.EarthRadius * radToDeg
	dLon = u * dt / (geo.EarthRadius * cosLat) * radToDeg
	return dLat, dLon
}

// Advance moves pos by the displacement of one step.
func Advance(pos Position, u, v, dt float64) Position {
	dLat, dLon := Displace(u, v, dt, pos.Lat)
	return Position{
		Lat: geo.ClampLat(pos.Lat + dLat),
		Lon: geo.NormalizeLon(pos.Lon + dLon),
	}
}

// Integrator advances positions, optionally perturbing the wind first.
type Integrator struct {
	perturber *Perturber
}

// New returns a deterministic integrator.
func New() *Integrator { return &Integrator{} }

// NewPerturbed returns an integrator that adds the perturber's error to
// every wind vector before integrating.
func NewPerturbed(p *Perturber) *Integrator { return &Integrator{perturber: p} }

func (in *Integrator) Step(pos Position, u, v, dt float64) Position {
	if in.perturber != nil {
		u, v = in.perturber.Perturb(u, v, dt)
	}
	return Advance(pos, u, v, dt)
}

// Perturber adds zero-mean Gaussian error with a standard deviation of the
// RMS wind error to u and v independently. A drawn error is held for
// correlation seconds of flight time; zero redraws it every step.
type Perturber struct {
	dist        distuv.Normal
	rms         float64
	correlation float64

	held    float64
	eu, ev  float64
	hasDraw bool
}

// NewPerturber returns a perturber drawing from src. Equal sources give equal
// error sequences, and the errors scale linearly with rms.
func NewPerturber(rms, correlation float64, src rand.Source) *Perturber {
	return &Perturber{
		dist:        distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		rms:         rms,
		correlation: correlation,
	}
}

// Perturb returns the wind with the current error applied and advances the
// perturber's clock by dt.
func (p *Perturber) Perturb(u, v, dt float64) (float64, float64) {
	if p.rms == 0 {
		return u, v
	}
	if !p.hasDraw || p.correlation <= 0 || p.held >= p.correlation {
		p.eu = p.rms * p.dist.Rand()
		p.ev = p.rms * p.dist.Rand()
		p.held = 0
		p.hasDraw = true
	}
	p.held += dt
	return u + p.eu, v + p.ev
}
