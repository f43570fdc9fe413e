package weather

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lox/balloonpredict/internal/geo"
	"github.com/lox/balloonpredict/internal/models"
)

// Confidence falls off with distance outside the data by these scales, and
// by up to interiorPenalty at the midpoint between two nodes.
const (
	timeScale       = 3 * time.Hour
	altitudeScale   = 2000.0 // m
	horizontalScale = 50.0   // km
	interiorPenalty = 0.1

	// Clamping below the lowest or above the highest level by less than this
	// is not reported as extrapolation.
	verticalTolerance = 500.0 // m

	// Each forecast time is treated as valid for this long either side when
	// computing coverage.
	timeNodeValidity = 30 * time.Minute
)

// Point is one forecast value at a location, time and altitude.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	models.WeatherConditions
}

// Level is one vertical level of a grid column.
type Level struct {
	Altitude    float64 `json:"alt"`
	U           float64 `json:"u"`
	V           float64 `json:"v"`
	Temperature float64 `json:"t"`
	Pressure    float64 `json:"p"`
	Humidity    float64 `json:"h"`
	Confidence  float64 `json:"c"`
}

// Grid is a prefetched time × latitude × longitude set of vertical profiles.
// A Grid is immutable once built and may be sampled concurrently.
type Grid struct {
	Source  string      `json:"source,omitempty"`
	Times   []time.Time `json:"times"`
	Lats    []float64   `json:"lats"`
	Lons    []float64   `json:"lons"`
	Columns [][]Level   `json:"columns"`

	// offsets holds each of Times in seconds after Times[0].
	offsets []float64
}

func (g *Grid) UnmarshalJSON(data []byte) error {
	type plain Grid
	if err := json.Unmarshal(data, (*plain)(g)); err != nil {
		return err
	}
	g.offsets = g.computeOffsets()
	return nil
}

// BuildGrid arranges points into a grid. Every (time, lat, lon) combination
// must have at least one level. Points without a confidence weight are given
// full confidence.
func BuildGrid(source string, points []Point) (*Grid, error) {
	g := &Grid{Source: source}
	if len(points) == 0 {
		return g, nil
	}

	times := map[int64]time.Time{}
	lats := map[float64]struct{}{}
	lons := map[float64]struct{}{}
	for _, p := range points {
		if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) || math.IsNaN(p.Altitude) {
			return nil, fmt.Errorf("build grid: non-finite coordinate at %s", p.Time)
		}
		times[p.Time.UnixNano()] = p.Time.UTC()
		lats[p.Latitude] = struct{}{}
		lons[p.Longitude] = struct{}{}
	}

	for _, t := range times {
		g.Times = append(g.Times, t)
	}
	sort.Slice(g.Times, func(i, j int) bool { return g.Times[i].Before(g.Times[j]) })
	for lat := range lats {
		g.Lats = append(g.Lats, lat)
	}
	sort.Float64s(g.Lats)
	for lon := range lons {
		g.Lons = append(g.Lons, lon)
	}
	sort.Float64s(g.Lons)

	timeIdx := make(map[int64]int, len(g.Times))
	for i, t := range g.Times {
		timeIdx[t.UnixNano()] = i
	}
	latIdx := indexOf(g.Lats)
	lonIdx := indexOf(g.Lons)

	g.Columns = make([][]Level, len(g.Times)*len(g.Lats)*len(g.Lons))
	for _, p := range points {
		ci := g.column(timeIdx[p.Time.UnixNano()], latIdx[p.Latitude], lonIdx[p.Longitude])
		conf := p.Confidence
		if conf <= 0 {
			conf = 1
		}
		g.Columns[ci] = append(g.Columns[ci], Level{
			Altitude:    p.Altitude,
			U:           p.WindU,
			V:           p.WindV,
			Temperature: p.Temperature,
			Pressure:    p.Pressure,
			Humidity:    p.Humidity,
			Confidence:  math.Min(conf, 1),
		})
	}

	for ti := range g.Times {
		for yi := range g.Lats {
			for xi := range g.Lons {
				col := g.Columns[g.column(ti, yi, xi)]
				if len(col) == 0 {
					return nil, fmt.Errorf("build grid: no levels at %s (%.4f, %.4f)",
						g.Times[ti].Format(time.RFC3339), g.Lats[yi], g.Lons[xi])
				}
				sort.SliceStable(col, func(i, j int) bool { return col[i].Altitude < col[j].Altitude })
			}
		}
	}
	g.offsets = g.computeOffsets()

	return g, nil
}

func indexOf(values []float64) map[float64]int {
	m := make(map[float64]int, len(values))
	for i, v := range values {
		m[v] = i
	}
	return m
}

func (g *Grid) column(ti, yi, xi int) int {
	return (ti*len(g.Lats)+yi)*len(g.Lons) + xi
}

// Empty reports whether the grid holds no data.
func (g *Grid) Empty() bool {
	return g == nil || len(g.Columns) == 0
}

// axisPos describes where a query falls along one axis.
type axisPos struct {
	i0, i1  int
	w       float64 // weight of i1
	factor  float64 // confidence multiplier
	outside bool
}

// bracket locates x among sorted nodes. dist converts a coordinate difference
// into the unit scale is expressed in.
func bracket(nodes []float64, x, scale float64, dist func(d float64) float64) axisPos {
	n := len(nodes)
	if n == 1 {
		d := dist(math.Abs(x - nodes[0]))
		return axisPos{factor: math.Exp(-d / scale), outside: d > scale}
	}
	if x <= nodes[0] {
		d := dist(nodes[0] - x)
		return axisPos{factor: math.Exp(-d / scale), outside: d > 0}
	}
	if x >= nodes[n-1] {
		d := dist(x - nodes[n-1])
		return axisPos{i0: n - 1, i1: n - 1, factor: math.Exp(-d / scale), outside: d > 0}
	}
	i := sort.SearchFloat64s(nodes, x)
	if nodes[i] == x {
		return axisPos{i0: i, i1: i, factor: 1}
	}
	i0 := i - 1
	w := (x - nodes[i0]) / (nodes[i] - nodes[i0])
	return axisPos{
		i0:     i0,
		i1:     i,
		w:      w,
		factor: 1 - interiorPenalty*2*math.Min(w, 1-w),
	}
}

func identity(d float64) float64 { return d }

// timeNodes returns the precomputed time offsets, computing them afresh for a
// grid that was not built by BuildGrid or decoded from JSON.
func (g *Grid) timeNodes() []float64 {
	if len(g.offsets) == len(g.Times) {
		return g.offsets
	}
	return g.computeOffsets()
}

func (g *Grid) computeOffsets() []float64 {
	nodes := make([]float64, len(g.Times))
	for i, t := range g.Times {
		nodes[i] = t.Sub(g.Times[0]).Seconds()
	}
	return nodes
}

// alignLon shifts lon by a full turn when that brings it inside the grid's
// longitude span, so grids near the antimeridian sample correctly.
func (g *Grid) alignLon(lon float64) float64 {
	lo, hi := g.Lons[0], g.Lons[len(g.Lons)-1]
	if lon >= lo && lon <= hi {
		return lon
	}
	for _, shifted := range []float64{lon + 360, lon - 360} {
		if shifted >= lo && shifted <= hi {
			return shifted
		}
	}
	return lon
}

// Sample interpolates the grid at the given position. Queries outside the
// data are clamped to the nearest edge and returned with reduced confidence
// and Extrapolated set.
func (g *Grid) Sample(lat, lon, alt float64, t time.Time) (models.WeatherConditions, error) {
	if g.Empty() {
		return models.WeatherConditions{}, models.Errorf(models.KindDataUnavailable, "weather sample", "grid has no data")
	}

	tx := t.Sub(g.Times[0]).Seconds()
	tp := bracket(g.timeNodes(), tx, timeScale.Seconds(), identity)
	yp := bracket(g.Lats, lat, horizontalScale, func(d float64) float64 {
		return d * geo.EarthRadiusKm * math.Pi / 180
	})
	cosLat := math.Max(math.Cos(lat*math.Pi/180), 1e-6)
	xp := bracket(g.Lons, g.alignLon(lon), horizontalScale, func(d float64) float64 {
		return d * geo.EarthRadiusKm * math.Pi / 180 * cosLat
	})

	var acc Level
	var vFactor float64
	vOutside := false
	for _, tc := range corners(tp) {
		for _, yc := range corners(yp) {
			for _, xc := range corners(xp) {
				w := tc.w * yc.w * xc.w
				if w == 0 {
					continue
				}
				lvl, f, out := interpolateColumn(g.Columns[g.column(tc.i, yc.i, xc.i)], alt)
				acc.U += w * lvl.U
				acc.V += w * lvl.V
				acc.Temperature += w * lvl.Temperature
				acc.Pressure += w * lvl.Pressure
				acc.Humidity += w * lvl.Humidity
				acc.Confidence += w * lvl.Confidence
				vFactor += w * f
				vOutside = vOutside || out
			}
		}
	}

	return models.WeatherConditions{
		Time:         t,
		Altitude:     alt,
		WindU:        acc.U,
		WindV:        acc.V,
		Temperature:  acc.Temperature,
		Pressure:     acc.Pressure,
		Humidity:     acc.Humidity,
		Confidence:   acc.Confidence * tp.factor * yp.factor * xp.factor * vFactor,
		Extrapolated: tp.outside || yp.outside || xp.outside || vOutside,
	}, nil
}

type corner struct {
	i int
	w float64
}

func corners(p axisPos) []corner {
	if p.i0 == p.i1 {
		return []corner{{i: p.i0, w: 1}}
	}
	return []corner{{i: p.i0, w: 1 - p.w}, {i: p.i1, w: p.w}}
}

// interpolateColumn linearly interpolates a profile at alt, clamping to the
// top or bottom level.
func interpolateColumn(col []Level, alt float64) (Level, float64, bool) {
	n := len(col)
	if alt <= col[0].Altitude {
		d := col[0].Altitude - alt
		return col[0], math.Exp(-d / altitudeScale), d > verticalTolerance
	}
	if alt >= col[n-1].Altitude {
		d := alt - col[n-1].Altitude
		return col[n-1], math.Exp(-d / altitudeScale), d > verticalTolerance
	}
	i := sort.Search(n, func(i int) bool { return col[i].Altitude >= alt })
	if col[i].Altitude == alt {
		return col[i], 1, false
	}
	a, b := col[i-1], col[i]
	w := (alt - a.Altitude) / (b.Altitude - a.Altitude)
	lerp := func(x, y float64) float64 { return x + (y-x)*w }
	return Level{
		Altitude:    alt,
		U:           lerp(a.U, b.U),
		V:           lerp(a.V, b.V),
		Temperature: lerp(a.Temperature, b.Temperature),
		Pressure:    lerp(a.Pressure, b.Pressure),
		Humidity:    lerp(a.Humidity, b.Humidity),
		Confidence:  lerp(a.Confidence, b.Confidence),
	}, 1 - interiorPenalty*2*math.Min(w, 1-w), false
}

// Coverage describes how much of a requested window a grid spans.
type Coverage struct {
	Fraction float64   `json:"fraction"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

func (c Coverage) Full() bool    { return c.Fraction >= 1 }
func (c Coverage) Partial() bool { return c.Fraction > 0 && c.Fraction < 1 }
func (c Coverage) None() bool    { return c.Fraction <= 0 }

// Coverage returns the fraction of [start, end] the grid's forecast times
// cover.
func (g *Grid) Coverage(start, end time.Time) Coverage {
	if g.Empty() {
		return Coverage{}
	}
	gs := g.Times[0].Add(-timeNodeValidity)
	ge := g.Times[len(g.Times)-1].Add(timeNodeValidity)
	c := Coverage{Start: gs, End: ge}

	if !end.After(start) {
		if !start.Before(gs) && !start.After(ge) {
			c.Fraction = 1
		}
		return c
	}

	lo := start
	if gs.After(lo) {
		lo = gs
	}
	hi := end
	if ge.Before(hi) {
		hi = ge
	}
	if hi.After(lo) {
		c.Fraction = math.Min(1, hi.Sub(lo).Seconds()/end.Sub(start).Seconds())
	}
	return c
}

// Contains reports whether the position lies within the grid's horizontal
// extent, or within the horizontal scale of a single-location grid.
func (g *Grid) Contains(lat, lon float64) bool {
	if g.Empty() {
		return false
	}
	lon = g.alignLon(lon)
	latIn := lat >= g.Lats[0] && lat <= g.Lats[len(g.Lats)-1]
	lonIn := lon >= g.Lons[0] && lon <= g.Lons[len(g.Lons)-1]
	if latIn && lonIn {
		return true
	}
	nearLat := math.Max(g.Lats[0], math.Min(g.Lats[len(g.Lats)-1], lat))
	nearLon := math.Max(g.Lons[0], math.Min(g.Lons[len(g.Lons)-1], lon))
	return geo.DistanceKm(lat, lon, nearLat, nearLon) <= horizontalScale
}

// Points flattens the grid back into points, in time, latitude, longitude,
// altitude order.
func (g *Grid) Points() []Point {
	if g.Empty() {
		return nil
	}
	var out []Point
	for ti, t := range g.Times {
		for yi, lat := range g.Lats {
			for xi, lon := range g.Lons {
				for _, l := range g.Columns[g.column(ti, yi, xi)] {
					out = append(out, Point{
						Latitude:  lat,
						Longitude: lon,
						WeatherConditions: models.WeatherConditions{
							Time:        t,
							Altitude:    l.Altitude,
							WindU:       l.U,
							WindV:       l.V,
							Temperature: l.Temperature,
							Pressure:    l.Pressure,
							Humidity:    l.Humidity,
							Confidence:  l.Confidence,
						},
					})
				}
			}
		}
	}
	return out
}

// CompleteTimes keeps only the points at times where every latitude and
// longitude seen across points has at least one level, so the result always
// builds into a grid.
func CompleteTimes(points []Point) []Point {
	lats := map[float64]struct{}{}
	lons := map[float64]struct{}{}
	type cell struct{ lat, lon float64 }
	cells := map[int64]map[cell]struct{}{}
	for _, p := range points {
		lats[p.Latitude] = struct{}{}
		lons[p.Longitude] = struct{}{}
		k := p.Time.UnixNano()
		if cells[k] == nil {
			cells[k] = map[cell]struct{}{}
		}
		cells[k][cell{p.Latitude, p.Longitude}] = struct{}{}
	}

	want := len(lats) * len(lons)
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if len(cells[p.Time.UnixNano()]) == want {
			out = append(out, p)
		}
	}
	return out
}
