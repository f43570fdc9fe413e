package models

import (
	"fmt"
	"math"
)

func checkFinite(field string, v float64, out []Violation) []Violation {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return append(out, Violation{Field: field, Message: "must be a finite number"})
	}
	return out
}

// Validate checks coordinate ranges.
func (c Coordinates) Validate() []Violation {
	var out []Violation
	out = checkFinite("latitude", c.Latitude, out)
	out = checkFinite("longitude", c.Longitude, out)
	out = checkFinite("altitude", c.Altitude, out)
	if c.Latitude < -90 || c.Latitude > 90 {
		out = append(out, Violation{Field: "latitude", Message: fmt.Sprintf("%.4f outside [-90, 90]", c.Latitude)})
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		out = append(out, Violation{Field: "longitude", Message: fmt.Sprintf("%.4f outside [-180, 180]", c.Longitude)})
	}
	return out
}

// Validate checks the balloon fields that do not depend on the launch site.
func (b BalloonConfiguration) Validate() []Violation {
	var out []Violation
	if !(b.Volume > 0) {
		out = append(out, Violation{Field: "balloon.volume", Message: "must be > 0"})
	}
	if !(b.AscentRate > 0) {
		out = append(out, Violation{Field: "balloon.ascentRate", Message: "must be > 0"})
	}
	if !(b.PayloadWeight > 0) {
		out = append(out, Violation{Field: "balloon.payloadWeight", Message: "must be > 0"})
	}
	if !(b.DragCoefficient > 0) {
		out = append(out, Violation{Field: "balloon.dragCoefficient", Message: "must be > 0"})
	}
	if b.DescentArea < 0 {
		out = append(out, Violation{Field: "balloon.descentArea", Message: "must be >= 0"})
	}
	out = checkFinite("balloon.burstAltitude", b.BurstAltitude, out)
	switch b.EffectiveAscentMode() {
	case AscentConstant, AscentBuoyancy:
	default:
		out = append(out, Violation{Field: "balloon.ascentMode", Message: fmt.Sprintf("unknown mode %q", b.AscentMode)})
	}
	return out
}

// Validate returns every violated field of the launch specification.
func (l LaunchSpec) Validate() []Violation {
	out := l.Coordinates.Validate()
	out = append(out, l.Balloon.Validate()...)
	if l.LaunchTime.IsZero() {
		out = append(out, Violation{Field: "launchTime", Message: "required"})
	}
	if !(l.Balloon.BurstAltitude > l.Altitude) {
		out = append(out, Violation{
			Field:   "balloon.burstAltitude",
			Message: fmt.Sprintf("%.1f must be above launch altitude %.1f", l.Balloon.BurstAltitude, l.Altitude),
		})
	}
	if l.GroundElevation != nil {
		g := *l.GroundElevation
		out = checkFinite("groundElevation", g, out)
		if g >= l.Balloon.BurstAltitude {
			out = append(out, Violation{Field: "groundElevation", Message: "must be below burst altitude"})
		}
	}
	return out
}
