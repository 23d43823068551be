package analysis

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/ryanp54/forecastcheck/internal/models"
)

func hour(t *testing.T, h int) time.Time {
	t.Helper()
	return time.Date(2019, 6, 1, h, 0, 0, 0, time.UTC)
}

func forecastAt(t *testing.T, h, leadDays int, temp float64) models.Forecast {
	t.Helper()
	return models.Forecast{
		ValidTime: hour(t, h),
		LeadDays:  leadDays,
		Predicted: models.Measurement{
			Temperature: sql.NullFloat64{Float64: temp, Valid: true},
		},
	}
}

func observationAt(t *testing.T, h int, temp float64) models.Observation {
	t.Helper()
	return models.Observation{
		ObservedAt: hour(t, h),
		Observed: models.Measurement{
			Temperature: sql.NullFloat64{Float64: temp, Valid: true},
		},
	}
}

func TestScorePairsByValidHour(t *testing.T) {
	forecasts := []models.Forecast{
		forecastAt(t, 0, 1, 22.0),
		forecastAt(t, 1, 1, 20.0),
		forecastAt(t, 2, 1, 18.0), // no observation for this hour
	}
	observations := []models.Observation{
		observationAt(t, 0, 20.0),
		observationAt(t, 1, 21.0),
	}

	report := Score(forecasts, observations)

	if report.Pairs != 2 {
		t.Fatalf("Pairs = %d, want 2", report.Pairs)
	}
	stats := report.LeadDays[1][FieldTemperature]
	if stats == nil {
		t.Fatal("no temperature stats for lead day 1")
	}
	if stats.Samples != 2 {
		t.Errorf("Samples = %d, want 2", stats.Samples)
	}
	// Errors are +2 and -1.
	if got := stats.MeanBias; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("MeanBias = %v, want 0.5", got)
	}
	if got := stats.MAE; math.Abs(got-1.5) > 1e-9 {
		t.Errorf("MAE = %v, want 1.5", got)
	}
}

func TestScoreSeparatesLeadDays(t *testing.T) {
	forecasts := []models.Forecast{
		forecastAt(t, 0, 1, 25.0),
		forecastAt(t, 0, 3, 15.0),
	}
	observations := []models.Observation{
		observationAt(t, 0, 20.0),
	}

	report := Score(forecasts, observations)

	if got := report.LeadDays[1][FieldTemperature].MeanBias; got != 5.0 {
		t.Errorf("day 1 MeanBias = %v, want 5", got)
	}
	if got := report.LeadDays[3][FieldTemperature].MeanBias; got != -5.0 {
		t.Errorf("day 3 MeanBias = %v, want -5", got)
	}
	if days := report.Days(); len(days) != 2 || days[0] != 1 || days[1] != 3 {
		t.Errorf("Days() = %v, want [1 3]", days)
	}
}

func TestScoreSkipsNullFields(t *testing.T) {
	forecasts := []models.Forecast{
		{
			ValidTime: hour(t, 0),
			LeadDays:  1,
			Predicted: models.Measurement{
				Temperature: sql.NullFloat64{Float64: 20, Valid: true},
				WindSpeed:   sql.NullFloat64{Float64: 10, Valid: true},
			},
		},
	}
	observations := []models.Observation{
		{
			ObservedAt: hour(t, 0),
			Observed: models.Measurement{
				Temperature: sql.NullFloat64{Float64: 19, Valid: true},
				// WindSpeed absent: sensor did not report.
			},
		},
	}

	report := Score(forecasts, observations)

	if report.LeadDays[1][FieldTemperature] == nil {
		t.Error("temperature should be scored")
	}
	if report.LeadDays[1][FieldWindSpeed] != nil {
		t.Error("wind speed should be skipped when the observation is null")
	}
}

func TestScoreEmptyInputs(t *testing.T) {
	report := Score(nil, nil)
	if report.Pairs != 0 {
		t.Errorf("Pairs = %d, want 0", report.Pairs)
	}
	if len(report.LeadDays) != 0 {
		t.Errorf("LeadDays = %v, want empty", report.LeadDays)
	}
}

func TestFieldErrorWindWraps(t *testing.T) {
	tests := []struct {
		name      string
		predicted float64
		observed  float64
		want      float64
	}{
		{"no wrap", 90, 80, 10},
		{"wrap positive", 350, 10, -20},
		{"wrap negative", 10, 350, 20},
		{"opposite", 0, 180, -180},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fieldError(FieldWindDir, tt.predicted, tt.observed)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("fieldError(%v, %v) = %v, want %v", tt.predicted, tt.observed, got, tt.want)
			}
		})
	}
}
