package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Payload kinds for the raw archive.
const (
	PayloadForecast    = "forecast"
	PayloadObservation = "observation"
	PayloadMETAR       = "metar"
)

// RawPayload is an archived feed response, stored compressed so a record
// run can later be replayed or audited.
type RawPayload struct {
	ID            int64
	IngestRunID   sql.NullInt64
	FetchedAt     time.Time
	FetchDate     string // YYYY-MM-DD
	Kind          string
	PayloadHash   string
	SchemaVersion int
}

// StoreRawPayload archives a fetched payload, gzip-compressed and deduped
// by content hash. Returns the payload ID, 0 when the identical payload was
// already archived.
func (s *Store) StoreRawPayload(runID *int64, kind string, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)
	hashHex := hex.EncodeToString(hash[:])

	var ingestRunID sql.NullInt64
	if runID != nil {
		ingestRunID = sql.NullInt64{Int64: *runID, Valid: true}
	}

	now := time.Now().UTC()
	result, err := s.db.Exec(`
		INSERT INTO raw_payloads
		(ingest_run_id, fetched_at, fetch_date, kind, payload_compressed, payload_hash, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(payload_hash) DO NOTHING
	`, ingestRunID, now, now.Format("2006-01-02"), kind, buf.Bytes(), hashHex)
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetRawPayloadByDate returns the decompressed payload of the given kind
// most recently fetched on date (YYYY-MM-DD), or nil when none exists.
func (s *Store) GetRawPayloadByDate(kind, date string) ([]byte, error) {
	row := s.db.QueryRow(`
		SELECT payload_compressed FROM raw_payloads
		WHERE kind = ? AND fetch_date = ?
		ORDER BY fetched_at DESC LIMIT 1
	`, kind, date)
	return decompressRow(row)
}

// GetLatestRawPayload returns the most recently archived payload of the
// given kind and its fetch date, or nil when none exists.
func (s *Store) GetLatestRawPayload(kind string) ([]byte, string, error) {
	row := s.db.QueryRow(`
		SELECT payload_compressed, fetch_date FROM raw_payloads
		WHERE kind = ?
		ORDER BY fetched_at DESC LIMIT 1
	`, kind)

	var compressed []byte
	var date string
	if err := row.Scan(&compressed, &date); err == sql.ErrNoRows {
		return nil, "", nil
	} else if err != nil {
		return nil, "", err
	}

	payload, err := decompress(compressed)
	return payload, date, err
}

func decompressRow(row *sql.Row) ([]byte, error) {
	var compressed []byte
	if err := row.Scan(&compressed); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return decompress(compressed)
}

func decompress(compressed []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	payload, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	return payload, nil
}
