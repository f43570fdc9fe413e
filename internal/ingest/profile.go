package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/weather"
)

// Columns of a profile CSV. confidence is optional; speed and direction may
// replace wind_u and wind_v.
var profileColumns = []string{"time", "latitude", "longitude", "altitude", "temperature", "pressure", "humidity"}

// ParseProfileCSV reads forecast points from a CSV file with a header row.
// Times are RFC 3339.
func ParseProfileCSV(r io.Reader) ([]weather.Point, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range profileColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}
	_, hasU := idx["wind_u"]
	_, hasV := idx["wind_v"]
	_, hasSpeed := idx["wind_speed"]
	_, hasDir := idx["wind_direction"]
	components := hasU && hasV
	if !components && !(hasSpeed && hasDir) {
		return nil, errors.New("need wind_u and wind_v or wind_speed and wind_direction columns")
	}

	var points []weather.Point
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := profileRow{rec: rec, idx: idx}
		t, err := time.Parse(time.RFC3339, row.str("time"))
		if err != nil {
			return nil, fmt.Errorf("line %d: time: %w", line, err)
		}
		p := weather.Point{
			Latitude:  row.float("latitude"),
			Longitude: row.float("longitude"),
			WeatherConditions: models.WeatherConditions{
				Time:        t.UTC(),
				Altitude:    row.float("altitude"),
				Temperature: row.float("temperature"),
				Pressure:    row.float("pressure"),
				Humidity:    row.float("humidity"),
				Confidence:  1,
			},
		}
		if components {
			p.WindU, p.WindV = row.float("wind_u"), row.float("wind_v")
		} else {
			p.WindU, p.WindV = WindComponents(row.float("wind_speed"), row.float("wind_direction"))
		}
		if _, ok := idx["confidence"]; ok && row.str("confidence") != "" {
			p.Confidence = row.float("confidence")
		}
		if row.err != nil {
			return nil, fmt.Errorf("line %d: %w", line, row.err)
		}
		points = append(points, p)
	}
	return points, nil
}

// profileRow keeps the first conversion error so a row can be read without
// checking every field.
type profileRow struct {
	rec []string
	idx map[string]int
	err error
}

func (r *profileRow) str(col string) string {
	i := r.idx[col]
	if i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func (r *profileRow) float(col string) float64 {
	v, err := strconv.ParseFloat(r.str(col), 64)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%s: %w", col, err)
	}
	return v
}

// ParseProfileJSON reads an array of forecast points.
func ParseProfileJSON(r io.Reader) ([]weather.Point, error) {
	var points []weather.Point
	if err := json.NewDecoder(r).Decode(&points); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	for i := range points {
		points[i].Time = points[i].Time.UTC()
		if points[i].Confidence == 0 {
			points[i].Confidence = 1
		}
	}
	return points, nil
}

// ParseProfile picks a parser from the file extension.
func ParseProfile(name string, r io.Reader) ([]weather.Point, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".json"):
		return ParseProfileJSON(r)
	case strings.HasSuffix(strings.ToLower(name), ".csv"):
		return ParseProfileCSV(r)
	}
	return nil, fmt.Errorf("unsupported profile format: %s", name)
}
