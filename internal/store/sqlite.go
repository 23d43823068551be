// Package store persists forecast and observation records to SQLite. It
// owns the "overwrite or insert by key" write semantics and the most-recent
// observation watermark the quantizer reads before each run.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ryanp54/forecastcheck/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const measurementColumns = `weather, all_weather, temperature, dewpoint, sky_cover, cloud_layers, precip_1hr, precip_6hr, precip_chance, wind_dir, wind_speed`

func measurementArgs(m models.Measurement) []any {
	return []any{
		m.Weather, m.AllWeather, m.Temperature, m.Dewpoint, m.SkyCover,
		m.CloudLayers, m.Precip1Hr, m.Precip6Hr, m.PrecipChance,
		m.WindDir, m.WindSpeed,
	}
}

func measurementDests(m *models.Measurement) []any {
	return []any{
		&m.Weather, &m.AllWeather, &m.Temperature, &m.Dewpoint, &m.SkyCover,
		&m.CloudLayers, &m.Precip1Hr, &m.Precip6Hr, &m.PrecipChance,
		&m.WindDir, &m.WindSpeed,
	}
}

// UpsertForecasts writes a forecast batch, overwriting any previous record
// for the same (valid_time, lead_days) key. Returns the number of rows
// written.
func (s *Store) UpsertForecasts(batch []models.Forecast) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin forecast batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO forecasts (valid_time, made_at, lead_days, ` + measurementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(valid_time, lead_days) DO UPDATE SET
			made_at = excluded.made_at,
			weather = excluded.weather,
			all_weather = excluded.all_weather,
			temperature = excluded.temperature,
			dewpoint = excluded.dewpoint,
			sky_cover = excluded.sky_cover,
			cloud_layers = excluded.cloud_layers,
			precip_1hr = excluded.precip_1hr,
			precip_6hr = excluded.precip_6hr,
			precip_chance = excluded.precip_chance,
			wind_dir = excluded.wind_dir,
			wind_speed = excluded.wind_speed
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare forecast upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, fc := range batch {
		args := append([]any{fc.ValidTime, fc.MadeAt, fc.LeadDays}, measurementArgs(fc.Predicted)...)
		if _, err := stmt.Exec(args...); err != nil {
			return written, fmt.Errorf("upsert forecast %s: %w", fc.ValidTime.Format(time.RFC3339), err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit forecast batch: %w", err)
	}
	return written, nil
}

// InsertObservations writes an observation batch. Instants already present
// are left untouched; the return value counts rows actually inserted.
func (s *Store) InsertObservations(batch []models.Observation) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin observation batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO observations (observed_at, ` + measurementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(observed_at) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare observation insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, obs := range batch {
		args := append([]any{obs.ObservedAt}, measurementArgs(obs.Observed)...)
		result, err := stmt.Exec(args...)
		if err != nil {
			return inserted, fmt.Errorf("insert observation %s: %w", obs.ObservedAt.Format(time.RFC3339), err)
		}
		if n, err := result.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit observation batch: %w", err)
	}
	return inserted, nil
}

// LatestObservationTime returns the watermark: the most recent recorded
// observation instant, invalid when nothing has been recorded yet.
func (s *Store) LatestObservationTime() (sql.NullTime, error) {
	var latest sql.NullTime
	err := s.db.QueryRow(`SELECT MAX(observed_at) FROM observations`).Scan(&latest)
	if err != nil {
		return sql.NullTime{}, err
	}
	return latest, nil
}

// ForecastFilter narrows a forecast query. Nil fields are not applied. The
// filter is an explicit enumerated mapping; there is deliberately no
// by-name attribute lookup.
type ForecastFilter struct {
	ValidTime *time.Time
	LeadDays  *int
	MadeAt    *time.Time
}

// GetForecasts returns matching forecasts ordered by valid time then lead
// days, capped at limit.
func (s *Store) GetForecasts(filter ForecastFilter, limit int) ([]models.Forecast, error) {
	query := `SELECT id, valid_time, made_at, lead_days, ` + measurementColumns + `, created_at FROM forecasts WHERE 1=1`
	var args []any

	if filter.ValidTime != nil {
		query += ` AND valid_time = ?`
		args = append(args, *filter.ValidTime)
	}
	if filter.LeadDays != nil {
		query += ` AND lead_days = ?`
		args = append(args, *filter.LeadDays)
	}
	if filter.MadeAt != nil {
		query += ` AND made_at = ?`
		args = append(args, *filter.MadeAt)
	}
	query += ` ORDER BY valid_time ASC, lead_days ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forecasts []models.Forecast
	for rows.Next() {
		var fc models.Forecast
		dests := append([]any{&fc.ID, &fc.ValidTime, &fc.MadeAt, &fc.LeadDays}, measurementDests(&fc.Predicted)...)
		dests = append(dests, &fc.CreatedAt)
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		forecasts = append(forecasts, fc)
	}
	return forecasts, rows.Err()
}

// GetForecastsBetween returns all forecasts whose valid time falls in
// [start, end], ordered by valid time then lead days. Used by accuracy
// scoring, which needs every lead day for each hour.
func (s *Store) GetForecastsBetween(start, end time.Time) ([]models.Forecast, error) {
	rows, err := s.db.Query(`
		SELECT id, valid_time, made_at, lead_days, `+measurementColumns+`, created_at
		FROM forecasts
		WHERE valid_time >= ? AND valid_time <= ?
		ORDER BY valid_time ASC, lead_days ASC
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forecasts []models.Forecast
	for rows.Next() {
		var fc models.Forecast
		dests := append([]any{&fc.ID, &fc.ValidTime, &fc.MadeAt, &fc.LeadDays}, measurementDests(&fc.Predicted)...)
		dests = append(dests, &fc.CreatedAt)
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		forecasts = append(forecasts, fc)
	}
	return forecasts, rows.Err()
}

// GetObservations returns observations in [start, end] ordered by time.
func (s *Store) GetObservations(start, end time.Time) ([]models.Observation, error) {
	rows, err := s.db.Query(`
		SELECT id, observed_at, `+measurementColumns+`, created_at
		FROM observations
		WHERE observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []models.Observation
	for rows.Next() {
		var obs models.Observation
		dests := append([]any{&obs.ID, &obs.ObservedAt}, measurementDests(&obs.Observed)...)
		dests = append(dests, &obs.CreatedAt)
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// InsertRecordError notes an operational failure such as a stale forecast
// or an observation run that produced nothing new.
func (s *Store) InsertRecordError(message string) error {
	_, err := s.db.Exec(`INSERT INTO record_errors (message, created_at) VALUES (?, ?)`,
		message, time.Now().UTC())
	return err
}

// GetRecentRecordErrors returns the most recent operational failures.
func (s *Store) GetRecentRecordErrors(limit int) ([]models.RecordError, error) {
	rows, err := s.db.Query(`
		SELECT id, message, created_at FROM record_errors
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var errs []models.RecordError
	for rows.Next() {
		var re models.RecordError
		if err := rows.Scan(&re.ID, &re.Message, &re.CreatedAt); err != nil {
			return nil, err
		}
		errs = append(errs, re)
	}
	return errs, rows.Err()
}
