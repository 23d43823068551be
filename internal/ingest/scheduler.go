package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ryanp54/forecastcheck/internal/metrics"
	"github.com/ryanp54/forecastcheck/internal/nws"
	"github.com/ryanp54/forecastcheck/internal/store"
)

var (
	// ErrStaleForecast reports a grid feed whose updateTime is more than a
	// day old; recording it would duplicate an earlier build.
	ErrStaleForecast = errors.New("forecast was not current")

	// ErrNothingRecorded reports an observation run that completed cleanly
	// but produced no new records after quantization and dedup.
	ErrNothingRecorded = errors.New("no new observations found")
)

// Scheduler drives periodic record runs. It owns all policy around the
// pure builders in internal/nws: fetch retries, staleness checks, raw
// payload archiving, audit rows, and metrics.
type Scheduler struct {
	store       *store.Store
	client      *Client
	metar       *METARClient
	gridpoint   string
	station     string
	fcInterval  time.Duration
	obsInterval time.Duration
}

func NewScheduler(st *store.Store, client *Client, metar *METARClient, gridpoint, station string) *Scheduler {
	return &Scheduler{
		store:       st,
		client:      client,
		metar:       metar,
		gridpoint:   gridpoint,
		station:     station,
		fcInterval:  6 * time.Hour,
		obsInterval: 1 * time.Hour,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.recordForecastLogged()
	s.recordObservationsLogged()

	fcTicker := time.NewTicker(s.fcInterval)
	obsTicker := time.NewTicker(s.obsInterval)
	defer fcTicker.Stop()
	defer obsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: shutting down")
			return
		case <-fcTicker.C:
			s.recordForecastLogged()
		case <-obsTicker.C:
			s.recordObservationsLogged()
		}
	}
}

func (s *Scheduler) recordForecastLogged() {
	if n, err := s.RecordForecast(); err != nil {
		log.Printf("scheduler: record forecast: %v", err)
	} else {
		log.Printf("scheduler: recorded %d hourly forecasts", n)
	}
}

func (s *Scheduler) recordObservationsLogged() {
	n, err := s.RecordObservations()
	switch {
	case errors.Is(err, ErrNothingRecorded):
		log.Println("scheduler: no new observations to record")
	case err != nil:
		log.Printf("scheduler: record observations: %v", err)
	default:
		log.Printf("scheduler: recorded %d observations", n)
	}
}

// RecordForecast fetches the current forecast grid, builds the hourly
// batch, and overwrites the stored records it covers. Returns the number
// of records written.
func (s *Scheduler) RecordForecast() (int, error) {
	run, err := s.store.StartIngestRun("gridpoints")
	if err != nil {
		log.Printf("scheduler: start ingest run: %v", err)
	}

	written, err := s.recordForecast(run)
	if run != nil {
		run.Success = err == nil
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if cerr := s.store.CompleteIngestRun(run); cerr != nil {
			log.Printf("scheduler: complete ingest run: %v", cerr)
		}
	}
	return written, err
}

func (s *Scheduler) recordForecast(run *store.IngestRun) (int, error) {
	feed, rawBody, result, err := s.client.FetchGridpoint(s.gridpoint)
	noteFetch(run, result)
	if len(rawBody) > 0 {
		s.archivePayload(run, store.PayloadForecast, rawBody)
	}
	if err != nil {
		return 0, err
	}

	made, err := nws.ParseInstant(feed.UpdateTime)
	if err != nil {
		return 0, fmt.Errorf("parse updateTime: %w", err)
	}
	if time.Since(made) > 24*time.Hour {
		s.noteRecordError("Forecast record fail: forecast was not current.")
		return 0, fmt.Errorf("%w: updated %s", ErrStaleForecast, made.Format(time.RFC3339))
	}

	forecasts, err := nws.BuildForecasts(feed)
	if err != nil {
		return 0, err
	}
	if run != nil {
		run.RecordsParsed = sql.NullInt64{Int64: int64(len(forecasts)), Valid: true}
	}

	written, err := s.store.UpsertForecasts(forecasts)
	if err != nil {
		return written, fmt.Errorf("store forecasts: %w", err)
	}
	if run != nil {
		run.RecordsStored = sql.NullInt64{Int64: int64(written), Valid: true}
	}
	metrics.ForecastsRecorded.Add(float64(written))
	return written, nil
}

// RecordObservations fetches recent station observations, quantizes them
// onto the hourly grid, and inserts the ones not yet recorded. The window
// trails a day behind now; the most recent day is left to settle before
// being recorded. Returns ErrNothingRecorded when the run produced no new
// records.
func (s *Scheduler) RecordObservations() (int, error) {
	run, err := s.store.StartIngestRun("observations")
	if err != nil {
		log.Printf("scheduler: start ingest run: %v", err)
	}

	inserted, err := s.recordObservations(run)
	if run != nil {
		run.Success = err == nil || errors.Is(err, ErrNothingRecorded)
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if cerr := s.store.CompleteIngestRun(run); cerr != nil {
			log.Printf("scheduler: complete ingest run: %v", cerr)
		}
	}
	return inserted, err
}

func (s *Scheduler) recordObservations(run *store.IngestRun) (int, error) {
	end := time.Now().UTC().AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -3)

	features, rawBody, result, err := s.client.FetchObservations(s.station, start, end)
	noteFetch(run, result)
	if len(rawBody) > 0 {
		s.archivePayload(run, store.PayloadObservation, rawBody)
	}
	if err != nil {
		return 0, err
	}

	watermark, err := s.store.LatestObservationTime()
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}
	var last time.Time
	if watermark.Valid {
		last = watermark.Time
	}

	records, stats, err := nws.BuildObservations(features, last)
	if err != nil {
		return 0, err
	}

	if run != nil {
		run.RecordsParsed = sql.NullInt64{Int64: int64(len(features)), Valid: true}
		run.DiscardedAmbiguous = sql.NullInt64{Int64: int64(stats.Ambiguous), Valid: true}
		run.DiscardedRecorded = sql.NullInt64{Int64: int64(stats.AlreadyRecorded), Valid: true}
	}
	metrics.ObservationsDiscarded.WithLabelValues("ambiguous").Add(float64(stats.Ambiguous))
	metrics.ObservationsDiscarded.WithLabelValues("already_recorded").Add(float64(stats.AlreadyRecorded))

	inserted, err := s.store.InsertObservations(records)
	if err != nil {
		return inserted, fmt.Errorf("store observations: %w", err)
	}
	if run != nil {
		run.RecordsStored = sql.NullInt64{Int64: int64(inserted), Valid: true}
	}
	metrics.ObservationsRecorded.Add(float64(inserted))

	if inserted == 0 {
		s.noteRecordError("Observation record fail: no new observations found.")
		s.probeStation(run)
		return 0, ErrNothingRecorded
	}
	return inserted, nil
}

// probeStation pulls the station's current METAR so the record error can
// be triaged: a fresh METAR with an empty API batch points at feed lag
// rather than a silent station.
func (s *Scheduler) probeStation(run *store.IngestRun) {
	if s.metar == nil {
		return
	}
	report, err := s.metar.FetchLatest()
	if err != nil {
		log.Printf("scheduler: metar probe: %v", err)
		return
	}
	log.Printf("scheduler: station %s latest METAR: %s", s.station, report)
	s.archivePayload(run, store.PayloadMETAR, []byte(report))
}

func (s *Scheduler) archivePayload(run *store.IngestRun, kind string, payload []byte) {
	var runID *int64
	if run != nil {
		runID = &run.ID
	}
	if _, err := s.store.StoreRawPayload(runID, kind, payload); err != nil {
		log.Printf("scheduler: archive %s payload: %v", kind, err)
	}
}

func noteFetch(run *store.IngestRun, result *FetchResult) {
	if run == nil || result == nil {
		return
	}
	if result.HTTPStatus != 0 {
		run.HTTPStatus = sql.NullInt64{Int64: int64(result.HTTPStatus), Valid: true}
	}
	run.ResponseSizeBytes = sql.NullInt64{Int64: int64(result.ResponseSize), Valid: true}
}

func (s *Scheduler) noteRecordError(message string) {
	metrics.RecordErrors.Inc()
	if err := s.store.InsertRecordError(message); err != nil {
		log.Printf("scheduler: record error note: %v", err)
	}
}
