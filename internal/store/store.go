// Package store keeps ingested forecast points in SQLite so predictions can
// run without reaching a forecast API.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/balloonpredict/internal/logging"
)

type Store struct {
	db  *sql.DB
	log logging.Logger
	now func() time.Time
}

func New(db *sql.DB, log logging.Logger) *Store {
	if log == nil {
		log = logging.Noop()
	}
	return &Store{db: db, log: log, now: time.Now}
}

// Open opens the database at path, applies connection pragmas and runs any
// pending migrations.
func Open(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
	db.ExecContext(ctx, "PRAGMA busy_timeout=5000")

	s := New(db, log)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
