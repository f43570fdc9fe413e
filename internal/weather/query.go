package weather

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lox/balloonpredict/internal/models"
)

// DefaultPressureLevels spans the surface to roughly 31 km.
var DefaultPressureLevels = []int{1000, 975, 950, 925, 900, 850, 800, 700, 600, 500, 400, 300, 250, 200, 150, 100, 70, 50, 30, 20, 10}

const (
	DefaultRadiusDeg = 1.0
	MaxRadiusDeg     = 10.0
)

// Query describes the forecast data a prediction needs: a box around the
// launch site and a time window.
type Query struct {
	Latitude       float64
	Longitude      float64
	Start          time.Time
	End            time.Time
	RadiusDeg      float64
	PressureLevels []int
}

type QueryOption func(*Query)

func WithRadius(deg float64) QueryOption {
	return func(q *Query) { q.RadiusDeg = deg }
}

func WithPressureLevels(levels []int) QueryOption {
	return func(q *Query) { q.PressureLevels = append([]int(nil), levels...) }
}

// NewQuery validates a query and widens its window to whole hours, which is
// the resolution forecasts are published at.
func NewQuery(lat, lon float64, start, end time.Time, opts ...QueryOption) (Query, error) {
	q := Query{
		Latitude:       lat,
		Longitude:      lon,
		Start:          start.UTC().Truncate(time.Hour),
		End:            end.UTC(),
		RadiusDeg:      DefaultRadiusDeg,
		PressureLevels: DefaultPressureLevels,
	}
	if t := q.End.Truncate(time.Hour); !t.Equal(q.End) {
		q.End = t.Add(time.Hour)
	}
	for _, opt := range opts {
		opt(&q)
	}

	var violations []models.Violation
	violations = append(violations, models.Coordinates{Latitude: lat, Longitude: lon}.Validate()...)
	if start.IsZero() || end.IsZero() {
		violations = append(violations, models.Violation{Field: "window", Message: "start and end required"})
	} else if !end.After(start) {
		violations = append(violations, models.Violation{Field: "window", Message: "end must be after start"})
	}
	if q.RadiusDeg < 0 || q.RadiusDeg > MaxRadiusDeg || math.IsNaN(q.RadiusDeg) {
		violations = append(violations, models.Violation{Field: "radius", Message: fmt.Sprintf("must be within [0, %v]", MaxRadiusDeg)})
	}
	if len(q.PressureLevels) == 0 {
		violations = append(violations, models.Violation{Field: "pressureLevels", Message: "at least one level required"})
	}
	for _, l := range q.PressureLevels {
		if l <= 0 || l > 1100 {
			violations = append(violations, models.Violation{Field: "pressureLevels", Message: fmt.Sprintf("%d hPa out of range", l)})
			break
		}
	}
	if len(violations) > 0 {
		return Query{}, models.InvalidInput("weather query", violations)
	}
	return q, nil
}

// Corners returns the latitude/longitude pairs bounding the query box. A zero
// radius yields the single centre point.
func (q Query) Corners() [][2]float64 {
	if q.RadiusDeg == 0 {
		return [][2]float64{{q.Latitude, q.Longitude}}
	}
	lat0 := math.Max(-90, q.Latitude-q.RadiusDeg)
	lat1 := math.Min(90, q.Latitude+q.RadiusDeg)
	lon0 := q.Longitude - q.RadiusDeg
	lon1 := q.Longitude + q.RadiusDeg
	return [][2]float64{{lat0, lon0}, {lat0, lon1}, {lat1, lon0}, {lat1, lon1}}
}

// Key identifies the query for caching. Nearby launches within the same
// hour-aligned window share a key.
func (q Query) Key() string {
	levels := make([]string, len(q.PressureLevels))
	for i, l := range q.PressureLevels {
		levels[i] = strconv.Itoa(l)
	}
	return fmt.Sprintf("%.1f:%.1f:%d:%d:%.2f:%s",
		q.Latitude, q.Longitude, q.Start.Unix(), q.End.Unix(), q.RadiusDeg, strings.Join(levels, ","))
}

// Bounds is the region of stored data worth loading for a query.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	Start, End     time.Time
}

// Bounds widens the query box by its radius again, with a floor of half a
// degree, and the window by an hour either side, so the forecast nodes just
// outside the query still bracket it.
func (q Query) Bounds() Bounds {
	pad := math.Max(q.RadiusDeg, 0.5)
	return Bounds{
		MinLat: math.Max(-90, q.Latitude-q.RadiusDeg-pad),
		MaxLat: math.Min(90, q.Latitude+q.RadiusDeg+pad),
		MinLon: q.Longitude - q.RadiusDeg - pad,
		MaxLon: q.Longitude + q.RadiusDeg + pad,
		Start:  q.Start.Add(-time.Hour),
		End:    q.End.Add(time.Hour),
	}
}

// Align reports whether p falls inside b, shifting its longitude by a full
// turn when that is what brings it inside.
func (b Bounds) Align(p Point) (Point, bool) {
	if p.Latitude < b.MinLat || p.Latitude > b.MaxLat || p.Time.Before(b.Start) || p.Time.After(b.End) {
		return p, false
	}
	for _, lon := range []float64{p.Longitude, p.Longitude - 360, p.Longitude + 360} {
		if lon >= b.MinLon && lon <= b.MaxLon {
			p.Longitude = lon
			return p, true
		}
	}
	return p, false
}

// Select keeps the points inside q's bounds.
func Select(points []Point, q Query) []Point {
	b := q.Bounds()
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if ap, ok := b.Align(p); ok {
			out = append(out, ap)
		}
	}
	return out
}
