package api

import (
	"database/sql"
	"time"

	"github.com/ryanp54/forecastcheck/internal/models"
)

// MeasurementView renders a measurement with JSON nulls where the stored
// column is absent, instead of the sql.Null* wrapper structs.
type MeasurementView struct {
	Weather      *string  `json:"weather"`
	AllWeather   *string  `json:"all_weather"`
	Temperature  *float64 `json:"temperature"`
	Dewpoint     *float64 `json:"dewpoint"`
	SkyCover     *float64 `json:"sky_cover"`
	CloudLayers  *string  `json:"cloud_layers"`
	Precip1Hr    *float64 `json:"precip_1hr"`
	Precip6Hr    *float64 `json:"precip_6hr"`
	PrecipChance *float64 `json:"precip_chance"`
	WindDir      *float64 `json:"wind_dir"`
	WindSpeed    *float64 `json:"wind_speed"`
}

type ForecastView struct {
	ID        int64     `json:"id"`
	ValidTime time.Time `json:"valid_time"`
	MadeAt    time.Time `json:"made_at"`
	LeadDays  int       `json:"lead_days"`
	MeasurementView
}

type ObservationView struct {
	ID         int64     `json:"id"`
	ObservedAt time.Time `json:"observed_at"`
	MeasurementView
}

func measurementView(m models.Measurement) MeasurementView {
	return MeasurementView{
		Weather:      nullString(m.Weather),
		AllWeather:   nullString(m.AllWeather),
		Temperature:  nullFloat(m.Temperature),
		Dewpoint:     nullFloat(m.Dewpoint),
		SkyCover:     nullFloat(m.SkyCover),
		CloudLayers:  nullString(m.CloudLayers),
		Precip1Hr:    nullFloat(m.Precip1Hr),
		Precip6Hr:    nullFloat(m.Precip6Hr),
		PrecipChance: nullFloat(m.PrecipChance),
		WindDir:      nullFloat(m.WindDir),
		WindSpeed:    nullFloat(m.WindSpeed),
	}
}

func forecastViews(forecasts []models.Forecast) []ForecastView {
	views := make([]ForecastView, 0, len(forecasts))
	for _, fc := range forecasts {
		views = append(views, ForecastView{
			ID:              fc.ID,
			ValidTime:       fc.ValidTime,
			MadeAt:          fc.MadeAt,
			LeadDays:        fc.LeadDays,
			MeasurementView: measurementView(fc.Predicted),
		})
	}
	return views
}

func observationViews(observations []models.Observation) []ObservationView {
	views := make([]ObservationView, 0, len(observations))
	for _, obs := range observations {
		views = append(views, ObservationView{
			ID:              obs.ID,
			ObservedAt:      obs.ObservedAt,
			MeasurementView: measurementView(obs.Observed),
		})
	}
	return views
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
