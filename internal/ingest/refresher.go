package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/store"
	"github.com/lox/balloonpredict/internal/weather"
)

const (
	DefaultRefreshInterval = time.Hour
	DefaultHorizon         = 48 * time.Hour
	DefaultRetention       = 72 * time.Hour
)

// Site is a location whose forecast is kept fresh in the store.
type Site struct {
	Name      string
	Latitude  float64
	Longitude float64
	RadiusDeg float64
}

// Refresher periodically pulls forecasts for a set of sites into the store
// and prunes points that have gone stale.
type Refresher struct {
	store     *store.Store
	provider  weather.Provider
	sites     []Site
	interval  time.Duration
	horizon   time.Duration
	retention time.Duration
	log       logging.Logger
	now       func() time.Time
}

type RefresherConfig struct {
	Interval  time.Duration
	Horizon   time.Duration
	Retention time.Duration
}

func NewRefresher(st *store.Store, provider weather.Provider, sites []Site, cfg RefresherConfig, log logging.Logger) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefreshInterval
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Refresher{
		store:     st,
		provider:  provider,
		sites:     sites,
		interval:  cfg.Interval,
		horizon:   cfg.Horizon,
		retention: cfg.Retention,
		log:       log,
		now:       time.Now,
	}
}

// Run refreshes immediately and then on every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	r.RefreshAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info(ctx, "refresher: shutting down")
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every site and prunes old points. Failures are logged
// and recorded; one failing site does not stop the others.
func (r *Refresher) RefreshAll(ctx context.Context) {
	for _, site := range r.sites {
		if ctx.Err() != nil {
			return
		}
		if err := r.Refresh(ctx, site); err != nil {
			r.log.Error(ctx, "refresher: refresh failed", logging.String("site", site.Name), logging.Err(err))
		}
	}

	n, err := r.store.PruneBefore(ctx, r.now().Add(-r.retention))
	if err != nil {
		r.log.Warn(ctx, "refresher: prune failed", logging.Err(err))
	} else if n > 0 {
		r.log.Info(ctx, "refresher: pruned stale points", logging.Int("points", int(n)))
	}
}

// Refresh fetches the forecast horizon for one site and saves it.
func (r *Refresher) Refresh(ctx context.Context, site Site) error {
	now := r.now().UTC()
	radius := site.RadiusDeg
	if radius <= 0 {
		radius = weather.DefaultRadiusDeg
	}
	q, err := weather.NewQuery(site.Latitude, site.Longitude, now, now.Add(r.horizon), weather.WithRadius(radius))
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	run, err := r.store.StartIngestRun(ctx, r.provider.Name(), q.Key())
	if err != nil {
		r.log.Warn(ctx, "refresher: could not record run", logging.Err(err))
	}

	grid, err := r.provider.Fetch(ctx, q)
	if err == nil {
		pts := grid.Points()
		kept, flags := FilterPoints(r.provider.Name(), pts)
		if run != nil {
			run.RecordsFetched = sql.NullInt64{Int64: int64(len(pts)), Valid: true}
			if len(flags) > 0 {
				run.RejectedFlags = sql.NullString{String: QualityFlagsToJSON(flags), Valid: true}
			}
		}
		var stored int
		stored, err = r.store.SavePoints(ctx, r.provider.Name(), kept)
		if run != nil && err == nil {
			run.RecordsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
		}
		if err == nil {
			r.log.Info(ctx, "refresher: stored forecast",
				logging.String("site", site.Name),
				logging.String("source", r.provider.Name()),
				logging.Int("points", stored),
			)
		}
	}

	if run != nil {
		run.Success = err == nil
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if cerr := r.store.CompleteIngestRun(ctx, run); cerr != nil {
			r.log.Warn(ctx, "refresher: could not complete run", logging.Err(cerr))
		}
	}
	return err
}
