package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NWSAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastcheck_nws_api_calls_total",
			Help: "Total NWS API calls",
		},
		[]string{"endpoint", "status"},
	)

	NWSAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecastcheck_nws_api_latency_seconds",
			Help:    "NWS API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ForecastsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastcheck_forecasts_recorded_total",
			Help: "Total hourly forecast records written",
		},
	)

	ObservationsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastcheck_observations_recorded_total",
			Help: "Total observation records written",
		},
	)

	ObservationsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastcheck_observations_discarded_total",
			Help: "Observations dropped during quantization",
		},
		[]string{"reason"}, // "ambiguous" or "already_recorded"
	)

	RecordErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastcheck_record_errors_total",
			Help: "Operational record failures (stale forecast, empty observation batch)",
		},
	)
)
