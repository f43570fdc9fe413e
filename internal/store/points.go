package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/weather"
)

// SavePoints upserts forecast points for source. A later forecast for the
// same time and place replaces the earlier one.
func (s *Store) SavePoints(ctx context.Context, source string, points []weather.Point) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO weather_points (source, valid_at, latitude, longitude, altitude, wind_u, wind_v, temperature, pressure, humidity, confidence, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, valid_at, latitude, longitude, altitude) DO UPDATE SET
			wind_u = excluded.wind_u,
			wind_v = excluded.wind_v,
			temperature = excluded.temperature,
			pressure = excluded.pressure,
			humidity = excluded.humidity,
			confidence = excluded.confidence,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	fetched := s.now().UTC().Unix()
	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, source, p.Time.UTC().Unix(), p.Latitude, p.Longitude, p.Altitude,
			p.WindU, p.WindV, p.Temperature, p.Pressure, p.Humidity, p.Confidence, fetched); err != nil {
			return 0, fmt.Errorf("insert point: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(points), nil
}

// LoadPoints returns the points for source that fall inside q's bounds.
func (s *Store) LoadPoints(ctx context.Context, source string, q weather.Query) ([]weather.Point, error) {
	b := q.Bounds()
	rows, err := s.db.QueryContext(ctx, `
		SELECT valid_at, latitude, longitude, altitude, wind_u, wind_v, temperature, pressure, humidity, confidence
		FROM weather_points
		WHERE source = ? AND valid_at BETWEEN ? AND ? AND latitude BETWEEN ? AND ?
		ORDER BY valid_at, latitude, longitude, altitude
	`, source, b.Start.Unix(), b.End.Unix(), b.MinLat, b.MaxLat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []weather.Point
	for rows.Next() {
		var p weather.Point
		var validAt int64
		if err := rows.Scan(&validAt, &p.Latitude, &p.Longitude, &p.Altitude, &p.WindU, &p.WindV,
			&p.Temperature, &p.Pressure, &p.Humidity, &p.Confidence); err != nil {
			return nil, err
		}
		p.Time = time.Unix(validAt, 0).UTC()
		if ap, ok := b.Align(p); ok {
			points = append(points, ap)
		}
	}
	return points, rows.Err()
}

// LoadGrid builds a grid from the stored points for source. Times missing any
// column are left out; no stored data gives an empty grid.
func (s *Store) LoadGrid(ctx context.Context, source string, q weather.Query) (*weather.Grid, error) {
	points, err := s.LoadPoints(ctx, source, q)
	if err != nil {
		return nil, fmt.Errorf("load points: %w", err)
	}
	complete := weather.CompleteTimes(points)
	if dropped := len(points) - len(complete); dropped > 0 {
		s.log.Debug(ctx, "store: dropped incomplete forecast times", logging.Int("points", dropped))
	}
	grid, err := weather.BuildGrid(source, complete)
	if err != nil {
		return nil, &models.Error{Kind: models.KindDataUnavailable, Op: "store", Err: err}
	}
	return grid, nil
}

// PruneBefore deletes points valid before t.
func (s *Store) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM weather_points WHERE valid_at < ?", t.UTC().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Provider serves stored points for one source as a weather provider.
func (s *Store) Provider(source string) weather.Provider {
	return &gridProvider{store: s, source: source}
}

type gridProvider struct {
	store  *Store
	source string
}

func (p *gridProvider) Name() string { return "store:" + p.source }

func (p *gridProvider) Fetch(ctx context.Context, q weather.Query) (*weather.Grid, error) {
	return p.store.LoadGrid(ctx, p.source, q)
}
