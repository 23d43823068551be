package store

import (
	"database/sql"
	"time"
)

// IngestRun is the audit row for a single record run against the NWS API.
type IngestRun struct {
	ID                 int64
	StartedAt          time.Time
	FinishedAt         sql.NullTime
	Endpoint           string // "gridpoints", "observations"
	HTTPStatus         sql.NullInt64
	ResponseSizeBytes  sql.NullInt64
	RecordsParsed      sql.NullInt64
	RecordsStored      sql.NullInt64
	DiscardedAmbiguous sql.NullInt64
	DiscardedRecorded  sql.NullInt64
	Success            bool
	ErrorMessage       sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(endpoint string) (*IngestRun, error) {
	run := &IngestRun{
		StartedAt: time.Now().UTC(),
		Endpoint:  endpoint,
	}

	result, err := s.db.Exec(`
		INSERT INTO ingest_runs (started_at, endpoint, success)
		VALUES (?, ?, FALSE)
	`, run.StartedAt, run.Endpoint)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteIngestRun updates the ingest run with its results.
func (s *Store) CompleteIngestRun(run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE ingest_runs SET
			finished_at = ?,
			http_status = ?,
			response_size_bytes = ?,
			records_parsed = ?,
			records_stored = ?,
			discarded_ambiguous = ?,
			discarded_recorded = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes, run.RecordsParsed,
		run.RecordsStored, run.DiscardedAmbiguous, run.DiscardedRecorded,
		run.Success, run.ErrorMessage, run.ID)
	return err
}

// GetRecentIngestRuns returns the most recent ingest runs for an endpoint,
// newest first.
func (s *Store) GetRecentIngestRuns(endpoint string, limit int) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, endpoint, http_status,
		       response_size_bytes, records_parsed, records_stored,
		       discarded_ambiguous, discarded_recorded, success, error_message
		FROM ingest_runs
		WHERE endpoint = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, endpoint, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Endpoint,
			&r.HTTPStatus, &r.ResponseSizeBytes, &r.RecordsParsed, &r.RecordsStored,
			&r.DiscardedAmbiguous, &r.DiscardedRecorded, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
