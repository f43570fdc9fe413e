package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lox/balloonpredict/internal/api"
	"github.com/lox/balloonpredict/internal/ingest"
	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/store"
)

type ServeCmd struct {
	Addr           string        `help:"Listen address" default:":8080" env:"ADDR"`
	RequestTimeout time.Duration `help:"Per-request prediction timeout" default:"60s" env:"REQUEST_TIMEOUT"`

	Sites           []string      `help:"Sites kept fresh in the store, as name:lat:lon[:radius]" env:"REFRESH_SITES"`
	RefreshInterval time.Duration `help:"How often sites are refreshed" default:"${refresh_interval}" env:"REFRESH_INTERVAL"`
	Horizon         time.Duration `help:"Forecast horizon fetched per site" default:"${horizon}"`

	Weather  WeatherFlags  `embed:""`
	Briefing BriefingFlags `embed:""`
	Kafka    KafkaFlags    `embed:""`
}

func (c *ServeCmd) Run(rt *Runtime) error {
	ctx, log := rt.Ctx, rt.Log

	sites, err := parseSites(c.Sites)
	if err != nil {
		return err
	}

	var st *store.Store
	if c.Weather.Source == "store" || len(sites) > 0 {
		st, err = store.Open(ctx, c.Weather.DB, log)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	provider, err := c.Weather.provider(ctx, st, log)
	if err != nil {
		return err
	}

	opts := []api.Option{api.WithLogger(log)}
	if st != nil {
		opts = append(opts, api.WithStore(st))
	}
	briefer, err := c.Briefing.generator(log)
	if err != nil {
		return err
	}
	if briefer != nil {
		opts = append(opts, api.WithBriefer(briefer))
	}
	if pub := c.Kafka.publisher(); pub != nil {
		defer pub.Close()
		opts = append(opts, api.WithPublisher(pub))
	}

	if len(sites) > 0 {
		refresher := ingest.NewRefresher(st, c.Weather.openMeteo(log), sites, ingest.RefresherConfig{
			Interval: c.RefreshInterval,
			Horizon:  c.Horizon,
		}, log)
		go refresher.Run(ctx)
		log.Info(ctx, "refresher started", logging.Int("sites", len(sites)), logging.Duration("interval", c.RefreshInterval))
	}

	server := api.NewServer(provider, api.Config{
		Addr:           c.Addr,
		RequestTimeout: c.RequestTimeout,
		Predict:        rt.Config,
	}, opts...)
	return server.Run(ctx)
}

// parseSites reads name:lat:lon[:radius] entries.
func parseSites(values []string) ([]ingest.Site, error) {
	sites := make([]ingest.Site, 0, len(values))
	for _, v := range values {
		parts := strings.Split(v, ":")
		if len(parts) < 3 || len(parts) > 4 || parts[0] == "" {
			return nil, fmt.Errorf("site %q: want name:lat:lon[:radius]", v)
		}
		site := ingest.Site{Name: parts[0]}
		nums := make([]float64, len(parts)-1)
		for i, p := range parts[1:] {
			f, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("site %q: %w", v, err)
			}
			nums[i] = f
		}
		site.Latitude, site.Longitude = nums[0], nums[1]
		if len(nums) == 3 {
			site.RadiusDeg = nums[2]
		}
		if site.Latitude < -90 || site.Latitude > 90 || site.Longitude < -180 || site.Longitude > 180 {
			return nil, fmt.Errorf("site %q: coordinates out of range", v)
		}
		sites = append(sites, site)
	}
	return sites, nil
}
