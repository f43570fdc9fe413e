package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lox/balloonpredict/internal/logging"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Forecast points",
		SQL: `
CREATE TABLE IF NOT EXISTS weather_points (
    source TEXT NOT NULL,
    valid_at INTEGER NOT NULL,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    altitude REAL NOT NULL,
    wind_u REAL NOT NULL,
    wind_v REAL NOT NULL,
    temperature REAL NOT NULL,
    pressure REAL NOT NULL,
    humidity REAL NOT NULL,
    confidence REAL NOT NULL DEFAULT 1,
    fetched_at INTEGER NOT NULL,
    PRIMARY KEY (source, valid_at, latitude, longitude, altitude)
);

CREATE INDEX IF NOT EXISTS idx_weather_points_window ON weather_points(source, valid_at, latitude);
`,
	},
	{
		Version:     2,
		Description: "Ingest run auditing",
		SQL: `
CREATE TABLE IF NOT EXISTS ingest_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    source TEXT NOT NULL,
    query_key TEXT NOT NULL,
    records_fetched INTEGER,
    records_stored INTEGER,
    rejected_flags TEXT,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);
`,
	},
}

// Migrate applies every migration newer than the database's schema, each in
// its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at INTEGER
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	done, err := s.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}

	pending := 0
	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		pending++
	}
	if pending > 0 {
		s.log.Info(ctx, "store: schema migrated", logging.Int("applied", pending), logging.Int("version", migrations[len(migrations)-1].Version))
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) (err error) {
	s.log.Debug(ctx, "store: applying migration", logging.Int("version", m.Version), logging.String("description", m.Description))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Description, s.now().UTC().Unix(),
	); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}

func (s *Store) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make(map[int]bool, len(migrations))
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions[v] = true
	}
	return versions, rows.Err()
}

// MigrationVersion returns the newest applied migration, or 0 on a fresh
// database.
func (s *Store) MigrationVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}
