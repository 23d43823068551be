package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ryanp54/forecastcheck/internal/analysis"
	"github.com/ryanp54/forecastcheck/internal/chart"
	"github.com/ryanp54/forecastcheck/internal/ingest"
	"github.com/ryanp54/forecastcheck/internal/store"
)

// maxForecastResults caps the filtered query at a week of hourly records
// times the full lead-day fan-out.
const maxForecastResults = 168

func (s *Server) handleRecordForecast(w http.ResponseWriter, r *http.Request) {
	n, err := s.scheduler.RecordForecast()
	if err != nil {
		log.Printf("api: record forecast failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"recorded": n})
}

func (s *Server) handleRecordObservations(w http.ResponseWriter, r *http.Request) {
	n, err := s.scheduler.RecordObservations()
	if err != nil {
		if !errors.Is(err, ingest.ErrNothingRecorded) {
			log.Printf("api: record observations failed: %v", err)
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"recorded": n})
}

// handleForecasts serves the filtered forecast query. Filters are an
// enumerated set of query parameters; anything else is ignored.
func (s *Server) handleForecasts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/forecasts/" {
		http.NotFound(w, r)
		return
	}

	var filter store.ForecastFilter
	q := r.URL.Query()

	if v := q.Get("valid_time"); v != "" {
		t, err := parseQueryTime(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("bad valid_time: %v", err), http.StatusBadRequest)
			return
		}
		filter.ValidTime = &t
	}
	if v := q.Get("made_at"); v != "" {
		t, err := parseQueryTime(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("bad made_at: %v", err), http.StatusBadRequest)
			return
		}
		filter.MadeAt = &t
	}
	if v := q.Get("lead_days"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("bad lead_days: %v", err), http.StatusBadRequest)
			return
		}
		filter.LeadDays = &d
	}

	forecasts, err := s.store.GetForecasts(filter, maxForecastResults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, forecastViews(forecasts))
}

// handleObservations serves recorded observations over a start/end range,
// defaulting to the trailing week.
func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/observations/" {
		http.NotFound(w, r)
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -7)

	q := r.URL.Query()
	if v := q.Get("start"); v != "" {
		t, err := parseQueryDate(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("bad start: %v", err), http.StatusBadRequest)
			return
		}
		start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := parseQueryDate(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("bad end: %v", err), http.StatusBadRequest)
			return
		}
		end = t
	}

	observations, err := s.store.GetObservations(start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, observationViews(observations))
}

// AnalyzeResponse is the accuracy report plus the optional narrative.
type AnalyzeResponse struct {
	*analysis.Report
	Narrative string `json:"narrative,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	report, err := s.scoreWindow(r)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	resp := AnalyzeResponse{Report: report}
	if s.narrator != nil && r.URL.Query().Get("narrative") == "true" {
		narrative, err := s.narrator.Summarize(r.Context(), report)
		if err != nil {
			log.Printf("api: narrative: %v", err)
		} else {
			resp.Narrative = narrative
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleAnalyzeChart(w http.ResponseWriter, r *http.Request) {
	report, err := s.scoreWindow(r)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	png, err := chart.RenderAccuracy(report)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// errBadParam marks errors caused by the request rather than the server.
var errBadParam = errors.New("bad parameter")

func errorStatus(err error) int {
	if errors.Is(err, errBadParam) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// scoreWindow runs accuracy scoring over the requested start/end window.
// Without parameters it covers the trailing week, ending a day ago so
// only settled observations are scored.
func (s *Server) scoreWindow(r *http.Request) (*analysis.Report, error) {
	end := time.Now().UTC().Truncate(time.Hour).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -7)

	q := r.URL.Query()
	if v := q.Get("start"); v != "" {
		t, err := parseQueryDate(v)
		if err != nil {
			return nil, fmt.Errorf("%w: start %q", errBadParam, v)
		}
		start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := parseQueryDate(v)
		if err != nil {
			return nil, fmt.Errorf("%w: end %q", errBadParam, v)
		}
		end = t
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start is not before end", errBadParam)
	}

	forecasts, err := s.store.GetForecastsBetween(start, end)
	if err != nil {
		return nil, fmt.Errorf("load forecasts: %w", err)
	}
	observations, err := s.store.GetObservations(start, end)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	return analysis.Score(forecasts, observations), nil
}

func (s *Server) handleRawForecasts(w http.ResponseWriter, r *http.Request) {
	s.serveRawPayload(w, r, "/rawForecasts/", store.PayloadForecast)
}

func (s *Server) handleRawObservations(w http.ResponseWriter, r *http.Request) {
	s.serveRawPayload(w, r, "/rawObservations/", store.PayloadObservation)
}

// serveRawPayload replays an archived feed response. The path suffix is
// a YYYY-MM-DD fetch date; an empty suffix serves the latest archive.
func (s *Server) serveRawPayload(w http.ResponseWriter, r *http.Request, prefix, kind string) {
	date := strings.TrimPrefix(r.URL.Path, prefix)

	var payload []byte
	var err error
	if date == "" {
		payload, _, err = s.store.GetLatestRawPayload(kind)
	} else {
		if _, perr := time.Parse("2006-01-02", date); perr != nil {
			http.Error(w, fmt.Sprintf("bad date: %q", date), http.StatusBadRequest)
			return
		}
		payload, err = s.store.GetRawPayloadByDate(kind, date)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if payload == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}

	latest, err := s.store.LatestObservationTime()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
		return
	}
	if latest.Valid {
		health["latest_observation"] = latest.Time
	}

	if recent, err := s.store.GetRecentRecordErrors(5); err != nil {
		log.Printf("api: health: recent errors: %v", err)
	} else if len(recent) > 0 {
		messages := make([]string, 0, len(recent))
		for _, re := range recent {
			messages = append(messages, re.Message)
		}
		health["recent_errors"] = messages
	}

	writeJSON(w, health)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

// parseQueryDate accepts a bare date or a full instant.
func parseQueryDate(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return parseQueryTime(v)
}

// parseQueryTime accepts RFC 3339 or the bare layout the feed itself
// uses for instants.
func parseQueryTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
