package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ryanp54/forecastcheck/internal/models"
	"github.com/ryanp54/forecastcheck/internal/store"
)

func setupTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return &Server{store: st, port: "0"}, st
}

func seedForecast(t *testing.T, st *store.Store, validTime time.Time, leadDays int, temp float64) {
	t.Helper()
	_, err := st.UpsertForecasts([]models.Forecast{{
		ValidTime: validTime,
		MadeAt:    validTime.AddDate(0, 0, -leadDays),
		LeadDays:  leadDays,
		Predicted: models.Measurement{
			Temperature: sql.NullFloat64{Float64: temp, Valid: true},
		},
	}})
	if err != nil {
		t.Fatalf("seed forecast: %v", err)
	}
}

func TestForecastsFilterQuery(t *testing.T) {
	srv, st := setupTestServer(t)
	base := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	seedForecast(t, st, base, 1, 20.0)
	seedForecast(t, st, base, 3, 22.0)
	seedForecast(t, st, base.Add(time.Hour), 1, 21.0)

	handler := srv.Handler()

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"no filter", "", 3},
		{"by valid time", "?valid_time=2019-06-01T12:00:00Z", 2},
		{"by lead days", "?lead_days=1", 2},
		{"combined", "?valid_time=2019-06-01T12:00:00Z&lead_days=3", 1},
		{"no match", "?lead_days=7", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/forecasts/"+tt.query, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
			}
			var got []ForecastView
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d forecasts, want %d", len(got), tt.want)
			}
		})
	}
}

func TestForecastsBadFilterValues(t *testing.T) {
	srv, _ := setupTestServer(t)
	handler := srv.Handler()

	for _, query := range []string{"?valid_time=notatime", "?lead_days=soon", "?made_at=2019-13-99"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/forecasts/"+query, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %q: status = %d, want 400", query, rec.Code)
		}
	}
}

func TestForecastsNullFieldsRenderAsJSONNull(t *testing.T) {
	srv, st := setupTestServer(t)
	seedForecast(t, st, time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC), 1, 20.0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/forecasts/", nil))

	var got []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d forecasts, want 1", len(got))
	}
	if got[0]["temperature"] == nil {
		t.Error("temperature should be set")
	}
	if v, present := got[0]["dewpoint"]; !present || v != nil {
		t.Errorf("dewpoint = %v, want explicit null", v)
	}
}

func TestObservationsRangeQuery(t *testing.T) {
	srv, st := setupTestServer(t)
	if _, err := st.InsertObservations([]models.Observation{
		{
			ObservedAt: time.Date(2019, 6, 1, 5, 0, 0, 0, time.UTC),
			Observed:   models.Measurement{Temperature: sql.NullFloat64{Float64: 18.0, Valid: true}},
		},
		{
			ObservedAt: time.Date(2019, 6, 3, 5, 0, 0, 0, time.UTC),
			Observed:   models.Measurement{Temperature: sql.NullFloat64{Float64: 21.0, Valid: true}},
		},
	}); err != nil {
		t.Fatalf("seed observations: %v", err)
	}
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec,
		httptest.NewRequest("GET", "/observations/?start=2019-06-01&end=2019-06-02", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var got []ObservationView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d observations, want 1 inside the range", len(got))
	}
	if got[0].Temperature == nil || *got[0].Temperature != 18.0 {
		t.Errorf("temperature = %v, want 18", got[0].Temperature)
	}

	t.Run("bad start", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/observations/?start=lately", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestRecordEndpointsAreCronOnly(t *testing.T) {
	srv, _ := setupTestServer(t)
	handler := srv.Handler()

	for _, path := range []string{"/forecasts/record", "/observations/record"} {
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = "203.0.113.9:4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s from outside: status = %d, want 403", path, rec.Code)
		}
	}
}

func TestRawPayloadRoutes(t *testing.T) {
	srv, st := setupTestServer(t)
	payload := []byte(`{"properties":{"updateTime":"2019-06-01T10:00:00+00:00/PT1H"}}`)
	if _, err := st.StoreRawPayload(nil, store.PayloadForecast, payload); err != nil {
		t.Fatalf("archive payload: %v", err)
	}
	handler := srv.Handler()

	today := time.Now().UTC().Format("2006-01-02")

	t.Run("by date", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/rawForecasts/"+today, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if rec.Body.String() != string(payload) {
			t.Errorf("body = %s, want original payload", rec.Body.String())
		}
	})

	t.Run("latest", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/rawForecasts/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("bad date", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/rawForecasts/june-first", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("missing date", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/rawObservations/2019-01-01", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestAnalyzeEndpoint(t *testing.T) {
	srv, st := setupTestServer(t)

	// Seed a pair inside the scoring window (it ends a day ago).
	validTime := time.Now().UTC().Truncate(time.Hour).AddDate(0, 0, -2)
	seedForecast(t, st, validTime, 1, 22.0)
	if _, err := st.InsertObservations([]models.Observation{{
		ObservedAt: validTime,
		Observed: models.Measurement{
			Temperature: sql.NullFloat64{Float64: 20.0, Valid: true},
		},
	}}); err != nil {
		t.Fatalf("seed observation: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/forecasts/analyze", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Pairs    int `json:"pairs"`
		LeadDays map[string]map[string]struct {
			Samples  int     `json:"samples"`
			MeanBias float64 `json:"mean_bias"`
		} `json:"lead_days"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Pairs != 1 {
		t.Errorf("pairs = %d, want 1", got.Pairs)
	}
	if stats := got.LeadDays["1"]["temperature"]; stats.MeanBias != 2.0 {
		t.Errorf("lead day 1 temperature bias = %v, want 2", stats.MeanBias)
	}
}

func TestAnalyzeBadWindow(t *testing.T) {
	srv, _ := setupTestServer(t)
	handler := srv.Handler()

	for _, query := range []string{
		"?start=whenever",
		"?end=whenever",
		"?start=2019-06-08&end=2019-06-01",
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/forecasts/analyze"+query, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %q: status = %d, want 400", query, rec.Code)
		}
	}
}

func TestAnalyzeExplicitWindow(t *testing.T) {
	srv, st := setupTestServer(t)
	validTime := time.Date(2019, 6, 3, 12, 0, 0, 0, time.UTC)
	seedForecast(t, st, validTime, 2, 18.0)
	if _, err := st.InsertObservations([]models.Observation{{
		ObservedAt: validTime,
		Observed: models.Measurement{
			Temperature: sql.NullFloat64{Float64: 19.0, Valid: true},
		},
	}}); err != nil {
		t.Fatalf("seed observation: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec,
		httptest.NewRequest("GET", "/forecasts/analyze?start=2019-06-01&end=2019-06-08", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Pairs int `json:"pairs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Pairs != 1 {
		t.Errorf("pairs = %d, want 1", got.Pairs)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, st := setupTestServer(t)
	if err := st.InsertRecordError("Observation record fail: no new observations found."); err != nil {
		t.Fatalf("seed record error: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "ok" {
		t.Errorf("status = %v, want ok", got["status"])
	}
	if _, ok := got["recent_errors"]; !ok {
		t.Error("recent_errors should be reported")
	}
}
