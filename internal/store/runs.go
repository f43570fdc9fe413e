package store

import (
	"context"
	"database/sql"
	"time"
)

// IngestRun records one forecast refresh for auditing.
type IngestRun struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     sql.NullTime
	Source         string
	QueryKey       string
	RecordsFetched sql.NullInt64
	RecordsStored  sql.NullInt64
	RejectedFlags  sql.NullString
	Success        bool
	ErrorMessage   sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(ctx context.Context, source, queryKey string) (*IngestRun, error) {
	run := &IngestRun{
		StartedAt: s.now().UTC(),
		Source:    source,
		QueryKey:  queryKey,
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (started_at, source, query_key, success)
		VALUES (?, ?, ?, FALSE)
	`, run.StartedAt.Unix(), run.Source, run.QueryKey)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(ctx context.Context, run *IngestRun) error {
	if run == nil {
		return nil
	}
	run.FinishedAt = sql.NullTime{Time: s.now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_runs SET
			finished_at = ?,
			records_fetched = ?,
			records_stored = ?,
			rejected_flags = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt.Time.Unix(), run.RecordsFetched, run.RecordsStored, run.RejectedFlags,
		run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecentIngestRuns returns the latest runs, newest first.
func (s *Store) RecentIngestRuns(ctx context.Context, limit int) ([]IngestRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, source, query_key, records_fetched, records_stored,
			   rejected_flags, success, error_message
		FROM ingest_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.ID, &started, &finished, &r.Source, &r.QueryKey, &r.RecordsFetched,
			&r.RecordsStored, &r.RejectedFlags, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0).UTC()
		if finished.Valid {
			r.FinishedAt = sql.NullTime{Time: time.Unix(finished.Int64, 0).UTC(), Valid: true}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
