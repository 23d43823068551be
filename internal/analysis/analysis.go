// Package analysis scores recorded forecasts against the observations
// that later arrived for the same hours. Accuracy is reported per lead
// day so a one-day-out forecast is never averaged together with a
// seven-day guess.
package analysis

import (
	"database/sql"
	"math"
	"sort"
	"time"

	"github.com/ryanp54/forecastcheck/internal/models"
)

// Fields that can be scored numerically. Present weather and cloud
// layers are free text and are excluded.
const (
	FieldTemperature  = "temperature"
	FieldDewpoint     = "dewpoint"
	FieldWindDir      = "wind_dir"
	FieldWindSpeed    = "wind_speed"
	FieldPrecipChance = "precip_chance"
)

var scoredFields = []string{
	FieldTemperature,
	FieldDewpoint,
	FieldWindDir,
	FieldWindSpeed,
}

// FieldStats summarizes forecast error for one field at one lead day.
// MeanBias is signed (predicted minus observed); MAE is the mean
// absolute error.
type FieldStats struct {
	Samples  int     `json:"samples"`
	MeanBias float64 `json:"mean_bias"`
	MAE      float64 `json:"mae"`
}

// LeadDayStats maps field name to its accuracy stats for one lead day.
type LeadDayStats map[string]*FieldStats

// Report is the full accuracy picture for a scoring window.
type Report struct {
	Start    time.Time            `json:"start"`
	End      time.Time            `json:"end"`
	Pairs    int                  `json:"pairs"`
	LeadDays map[int]LeadDayStats `json:"lead_days"`
}

// accumulator gathers error terms before the final divide.
type accumulator struct {
	n       int
	sumBias float64
	sumAbs  float64
}

func (a *accumulator) add(err float64) {
	a.n++
	a.sumBias += err
	a.sumAbs += math.Abs(err)
}

// Score pairs each forecast with the observation recorded for its valid
// hour and aggregates signed and absolute errors per lead day and field.
// Forecasts with no matching observation are skipped.
func Score(forecasts []models.Forecast, observations []models.Observation) *Report {
	byHour := make(map[time.Time]*models.Observation, len(observations))
	for i := range observations {
		byHour[observations[i].ObservedAt.UTC()] = &observations[i]
	}

	report := &Report{LeadDays: make(map[int]LeadDayStats)}
	accs := make(map[int]map[string]*accumulator)

	for i := range forecasts {
		f := &forecasts[i]
		obs, ok := byHour[f.ValidTime.UTC()]
		if !ok {
			continue
		}
		report.Pairs++

		if report.Start.IsZero() || f.ValidTime.Before(report.Start) {
			report.Start = f.ValidTime
		}
		if f.ValidTime.After(report.End) {
			report.End = f.ValidTime
		}

		if accs[f.LeadDays] == nil {
			accs[f.LeadDays] = make(map[string]*accumulator)
		}
		for _, field := range scoredFields {
			pred, pok := fieldValue(&f.Predicted, field)
			got, ook := fieldValue(&obs.Observed, field)
			if !pok || !ook {
				continue
			}
			acc := accs[f.LeadDays][field]
			if acc == nil {
				acc = &accumulator{}
				accs[f.LeadDays][field] = acc
			}
			acc.add(fieldError(field, pred, got))
		}
	}

	for day, fields := range accs {
		stats := make(LeadDayStats, len(fields))
		for field, acc := range fields {
			stats[field] = &FieldStats{
				Samples:  acc.n,
				MeanBias: acc.sumBias / float64(acc.n),
				MAE:      acc.sumAbs / float64(acc.n),
			}
		}
		report.LeadDays[day] = stats
	}
	return report
}

// Days returns the lead days present in the report in ascending order.
func (r *Report) Days() []int {
	days := make([]int, 0, len(r.LeadDays))
	for day := range r.LeadDays {
		days = append(days, day)
	}
	sort.Ints(days)
	return days
}

func fieldValue(m *models.Measurement, field string) (float64, bool) {
	var v sql.NullFloat64
	switch field {
	case FieldTemperature:
		v = m.Temperature
	case FieldDewpoint:
		v = m.Dewpoint
	case FieldWindDir:
		v = m.WindDir
	case FieldWindSpeed:
		v = m.WindSpeed
	case FieldPrecipChance:
		v = m.PrecipChance
	}
	return v.Float64, v.Valid
}

// fieldError returns predicted minus observed. Wind direction wraps, so
// its error is the shortest angular distance, signed.
func fieldError(field string, predicted, observed float64) float64 {
	err := predicted - observed
	if field == FieldWindDir {
		err = math.Mod(err, 360)
		if err > 180 {
			err -= 360
		} else if err < -180 {
			err += 360
		}
	}
	return err
}
