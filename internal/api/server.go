// Package api exposes the recorded data over HTTP: the record triggers
// the cron hits, the filtered forecast query, accuracy analysis, and the
// raw payload archive.
package api

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ryanp54/forecastcheck/internal/analysis"
	"github.com/ryanp54/forecastcheck/internal/ingest"
	"github.com/ryanp54/forecastcheck/internal/store"
)

type Server struct {
	store     *store.Store
	scheduler *ingest.Scheduler
	narrator  *analysis.Narrator
	port      string
}

func NewServer(st *store.Store, scheduler *ingest.Scheduler, port string) *Server {
	// Narration is optional; without an API key the analyze endpoint
	// just omits the summary text.
	var narrator *analysis.Narrator
	if n, err := analysis.NewNarrator(); err != nil {
		log.Printf("api: narrative disabled: %v", err)
	} else {
		narrator = n
	}

	return &Server{
		store:     st,
		scheduler: scheduler,
		narrator:  narrator,
		port:      port,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/forecasts/record", s.cronOnly(s.handleRecordForecast))
	mux.HandleFunc("/observations/record", s.cronOnly(s.handleRecordObservations))
	mux.HandleFunc("/forecasts/", s.handleForecasts)
	mux.HandleFunc("/observations/", s.handleObservations)
	mux.HandleFunc("/forecasts/analyze", s.handleAnalyze)
	mux.HandleFunc("/forecasts/analyze/chart.png", s.handleAnalyzeChart)
	mux.HandleFunc("/rawForecasts/", s.handleRawForecasts)
	mux.HandleFunc("/rawObservations/", s.handleRawObservations)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return allowCORS(mux)
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// cronOnly restricts record triggers to the scheduler's own cron hits
// and loopback callers, mirroring App Engine's X-Appengine-Cron guard.
func (s *Server) cronOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Appengine-Cron") != "true" && !isLoopback(r.RemoteAddr) {
			http.Error(w, "record triggers are cron-only", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
