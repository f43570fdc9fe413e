package weather

import (
	"context"
	"fmt"

	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/metrics"
)

// Provider fetches a grid covering a query. Implementations may block on
// network or disk I/O.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, q Query) (*Grid, error)
}

// StaticProvider serves one prefetched grid for every query.
type StaticProvider struct {
	Grid *Grid
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) Fetch(ctx context.Context, q Query) (*Grid, error) {
	if p.Grid == nil {
		return &Grid{Source: "static"}, nil
	}
	return p.Grid, nil
}

// CachedProvider consults a cache before fetching from the wrapped provider.
type CachedProvider struct {
	provider Provider
	cache    Cache
	log      logging.Logger
}

func NewCachedProvider(p Provider, c Cache, log logging.Logger) *CachedProvider {
	if log == nil {
		log = logging.Noop()
	}
	return &CachedProvider{provider: p, cache: c, log: log}
}

func (p *CachedProvider) Name() string { return p.provider.Name() }

func (p *CachedProvider) Fetch(ctx context.Context, q Query) (*Grid, error) {
	key := p.provider.Name() + ":" + q.Key()
	if g, ok := p.cache.Get(ctx, key); ok {
		metrics.WeatherCacheRequests.WithLabelValues("hit").Inc()
		p.log.Debug(ctx, "weather cache: hit", logging.String("key", key))
		return g, nil
	}
	metrics.WeatherCacheRequests.WithLabelValues("miss").Inc()

	g, err := p.provider.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p.provider.Name(), err)
	}
	if !g.Empty() {
		if err := p.cache.Set(ctx, key, g); err != nil {
			p.log.Warn(ctx, "weather cache: store failed", logging.String("key", key), logging.Any("error", err))
		}
	}
	return g, nil
}
