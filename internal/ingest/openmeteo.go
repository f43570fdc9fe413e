package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/lox/balloonpredict/internal/httputil"
	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/metrics"
	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/weather"
)

const (
	DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/gfs"
	OpenMeteoSource     = "open-meteo"

	defaultMaxElapsed = 2 * time.Minute
	maxConcurrentCols = 4
)

// OpenMeteo fetches GFS pressure-level forecasts from the Open-Meteo API.
// One request is made per corner of the query box.
type OpenMeteo struct {
	baseURL    string
	client     *http.Client
	log        logging.Logger
	maxElapsed time.Duration
}

type OpenMeteoOption func(*OpenMeteo)

func WithBaseURL(u string) OpenMeteoOption {
	return func(o *OpenMeteo) { o.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) OpenMeteoOption {
	return func(o *OpenMeteo) { o.client = c }
}

// WithMaxElapsed bounds how long a single column request is retried.
func WithMaxElapsed(d time.Duration) OpenMeteoOption {
	return func(o *OpenMeteo) { o.maxElapsed = d }
}

func WithLogger(l logging.Logger) OpenMeteoOption {
	return func(o *OpenMeteo) {
		if l != nil {
			o.log = l
		}
	}
}

func NewOpenMeteo(opts ...OpenMeteoOption) *OpenMeteo {
	o := &OpenMeteo{
		baseURL:    DefaultOpenMeteoURL,
		client:     httputil.NewClient(),
		log:        logging.Noop(),
		maxElapsed: defaultMaxElapsed,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OpenMeteo) Name() string { return OpenMeteoSource }

// Fetch downloads every corner column concurrently and assembles them into a
// grid. Implausible values are dropped, as are times missing any column.
func (o *OpenMeteo) Fetch(ctx context.Context, q weather.Query) (*weather.Grid, error) {
	corners := q.Corners()
	columns := make([][]weather.Point, len(corners))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCols)
	for i, c := range corners {
		g.Go(func() error {
			pts, err := o.fetchColumn(gctx, q, c[0], c[1])
			if err != nil {
				return fmt.Errorf("column (%.4f, %.4f): %w", c[0], c[1], err)
			}
			columns[i] = pts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []weather.Point
	for _, col := range columns {
		all = append(all, col...)
	}
	kept, flags := FilterPoints(o.Name(), all)
	if len(flags) > 0 {
		o.log.Warn(ctx, "open-meteo: dropped implausible points",
			logging.Int("dropped", len(all)-len(kept)),
			logging.String("flags", QualityFlagsToJSON(flags)),
		)
	}

	grid, err := weather.BuildGrid(o.Name(), weather.CompleteTimes(kept))
	if err != nil {
		return nil, &models.Error{Kind: models.KindDataUnavailable, Op: "open-meteo", Err: err}
	}
	o.log.Debug(ctx, "open-meteo: fetched grid",
		logging.Int("times", len(grid.Times)),
		logging.Int("columns", len(grid.Columns)),
	)
	return grid, nil
}

type openMeteoResponse struct {
	Error  bool                  `json:"error"`
	Reason string                `json:"reason"`
	Hourly map[string][]*float64 `json:"hourly"`
}

func (o *OpenMeteo) fetchColumn(ctx context.Context, q weather.Query, lat, lon float64) ([]weather.Point, error) {
	reqURL := o.columnURL(q, lat, lon)

	var body []byte
	operation := func() error {
		start := time.Now()
		status, b, err := httputil.Get(ctx, o.client, reqURL)
		metrics.WeatherAPILatency.WithLabelValues(o.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.WeatherAPICallsTotal.WithLabelValues(o.Name(), "error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("fetch: %w", err)
		}

		if status == http.StatusTooManyRequests || status >= 500 {
			metrics.WeatherAPICallsTotal.WithLabelValues(o.Name(), "retry").Inc()
			return fmt.Errorf("fetch: status %d", status)
		}
		if status != http.StatusOK {
			metrics.WeatherAPICallsTotal.WithLabelValues(o.Name(), "error").Inc()
			var r openMeteoResponse
			if json.Unmarshal(b, &r) == nil && r.Reason != "" {
				return backoff.Permanent(fmt.Errorf("fetch: status %d: %s", status, r.Reason))
			}
			return backoff.Permanent(fmt.Errorf("fetch: status %d: %s", status, truncateBody(b, 200)))
		}

		metrics.WeatherAPICallsTotal.WithLabelValues(o.Name(), "ok").Inc()
		body = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = o.maxElapsed
	notify := func(err error, wait time.Duration) {
		o.log.Warn(ctx, "open-meteo: retrying", logging.Err(err), logging.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &models.Error{Kind: models.KindDataUnavailable, Op: "open-meteo", Err: err}
	}

	return parseOpenMeteo(body, lat, lon, q.PressureLevels)
}

func (o *OpenMeteo) columnURL(q weather.Query, lat, lon float64) string {
	var hourly []string
	for _, l := range q.PressureLevels {
		for _, v := range []string{"temperature", "relative_humidity", "wind_speed", "wind_direction", "geopotential_height"} {
			hourly = append(hourly, fmt.Sprintf("%s_%dhPa", v, l))
		}
	}

	v := url.Values{}
	v.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	v.Set("longitude", strconv.FormatFloat(normalizeLon(lon), 'f', 4, 64))
	v.Set("hourly", strings.Join(hourly, ","))
	v.Set("start_hour", q.Start.UTC().Format("2006-01-02T15:04"))
	v.Set("end_hour", q.End.UTC().Format("2006-01-02T15:04"))
	v.Set("timezone", "GMT")
	v.Set("timeformat", "unixtime")
	v.Set("wind_speed_unit", "ms")
	return o.baseURL + "?" + v.Encode()
}

// parseOpenMeteo turns an hourly response into points at the requested
// coordinates. Levels with any missing variable are skipped.
func parseOpenMeteo(body []byte, lat, lon float64, levels []int) ([]weather.Point, error) {
	var r openMeteoResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if r.Error {
		return nil, fmt.Errorf("open-meteo: %s", r.Reason)
	}

	times := r.Hourly["time"]
	var points []weather.Point
	for i, ts := range times {
		if ts == nil {
			continue
		}
		t := time.Unix(int64(*ts), 0).UTC()
		for _, l := range levels {
			temp, ok1 := hourlyValue(r.Hourly, "temperature", l, i)
			rh, ok2 := hourlyValue(r.Hourly, "relative_humidity", l, i)
			speed, ok3 := hourlyValue(r.Hourly, "wind_speed", l, i)
			dir, ok4 := hourlyValue(r.Hourly, "wind_direction", l, i)
			height, ok5 := hourlyValue(r.Hourly, "geopotential_height", l, i)
			if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
				continue
			}
			u, v := WindComponents(speed, dir)
			points = append(points, weather.Point{
				Latitude:  lat,
				Longitude: lon,
				WeatherConditions: models.WeatherConditions{
					Time:        t,
					Altitude:    height,
					WindU:       u,
					WindV:       v,
					Temperature: temp,
					Pressure:    float64(l),
					Humidity:    rh,
					Confidence:  1,
				},
			})
		}
	}
	return points, nil
}

func hourlyValue(hourly map[string][]*float64, variable string, level, i int) (float64, bool) {
	series := hourly[fmt.Sprintf("%s_%dhPa", variable, level)]
	if i >= len(series) || series[i] == nil {
		return 0, false
	}
	return *series[i], true
}

func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func truncateBody(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
