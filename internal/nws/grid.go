package nws

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ryanp54/forecastcheck/internal/models"
)

// horizonDays bounds how far out hourly forecasts are recorded.
const horizonDays = 7

// GridFeed is the "properties" object of an NWS gridpoints response,
// reduced to the fields this service records.
type GridFeed struct {
	UpdateTime string `json:"updateTime"`
	ValidTimes string `json:"validTimes"`

	Temperature                GridProperty `json:"temperature"`
	Dewpoint                   GridProperty `json:"dewpoint"`
	SkyCover                   GridProperty `json:"skyCover"`
	QuantitativePrecipitation  GridProperty `json:"quantitativePrecipitation"`
	ProbabilityOfPrecipitation GridProperty `json:"probabilityOfPrecipitation"`
	WindDirection              GridProperty `json:"windDirection"`
	WindSpeed                  GridProperty `json:"windSpeed"`
}

// GridProperty holds one weather property's interval-keyed values.
type GridProperty struct {
	Values []GridValue `json:"values"`
}

// GridValue is one source interval: a duration-qualified start time plus
// the value that holds for every hour the interval covers.
type GridValue struct {
	ValidTime string   `json:"validTime"`
	Value     *float64 `json:"value"`
}

// gridProps enumerates the recorded properties in their declared feed
// order. The slice (not a map) matters: intervals are projected in this
// order and later writes win on overlapping hours, so enumeration order
// must be stable to keep builds reproducible.
var gridProps = []struct {
	name   string
	values func(*GridFeed) []GridValue
	set    func(*models.Measurement, *float64)
}{
	{"temperature",
		func(f *GridFeed) []GridValue { return f.Temperature.Values },
		func(m *models.Measurement, v *float64) { m.Temperature = nullFloat(v) }},
	{"dewpoint",
		func(f *GridFeed) []GridValue { return f.Dewpoint.Values },
		func(m *models.Measurement, v *float64) { m.Dewpoint = nullFloat(v) }},
	{"skyCover",
		func(f *GridFeed) []GridValue { return f.SkyCover.Values },
		func(m *models.Measurement, v *float64) { m.SkyCover = nullFloat(v) }},
	{"quantitativePrecipitation",
		func(f *GridFeed) []GridValue { return f.QuantitativePrecipitation.Values },
		func(m *models.Measurement, v *float64) { m.Precip6Hr = nullFloat(v) }},
	{"probabilityOfPrecipitation",
		func(f *GridFeed) []GridValue { return f.ProbabilityOfPrecipitation.Values },
		func(m *models.Measurement, v *float64) { m.PrecipChance = nullFloat(v) }},
	{"windDirection",
		func(f *GridFeed) []GridValue { return f.WindDirection.Values },
		func(m *models.Measurement, v *float64) { m.WindDir = nullFloat(v) }},
	{"windSpeed",
		func(f *GridFeed) []GridValue { return f.WindSpeed.Values },
		func(m *models.Measurement, v *float64) { m.WindSpeed = nullFloat(v) }},
}

// BuildForecasts converts a grid feed into one Forecast per hour of the
// forecast horizon. The horizon starts at the midnight of the feed's update
// day, or the following midnight when the feed was generated after 12:00
// UTC, and runs 7 days bounded by the feed's overall validity window.
//
// Hours no source interval covers keep their fields absent. Re-running on
// identical input produces an identical batch.
func BuildForecasts(feed *GridFeed) ([]models.Forecast, error) {
	made, err := ParseInstant(feed.UpdateTime)
	if err != nil {
		return nil, fmt.Errorf("parse updateTime: %w", err)
	}
	_, dataEnd, err := ParseIntervalSpec(feed.ValidTimes)
	if err != nil {
		return nil, fmt.Errorf("parse validTimes: %w", err)
	}

	startDay := time.Date(made.Year(), made.Month(), made.Day(), 0, 0, 0, 0, time.UTC)
	if made.Hour() > 12 {
		startDay = startDay.AddDate(0, 0, 1)
	}
	endT := startDay.AddDate(0, 0, horizonDays)
	if endT.After(dataEnd) {
		endT = dataEnd
	}

	hours := int(endT.Sub(startDay) / time.Hour)
	if hours <= 0 {
		return nil, nil
	}

	forecasts := make([]models.Forecast, hours)
	index := make(map[time.Time]int, hours)
	for i := range forecasts {
		valid := startDay.Add(time.Duration(i) * time.Hour)
		forecasts[i] = models.Forecast{
			ValidTime: valid,
			MadeAt:    made,
			LeadDays:  i/24 + 1,
		}
		index[valid] = i
	}

	for _, prop := range gridProps {
		for _, val := range prop.values(feed) {
			start, end, err := ParseIntervalSpec(val.ValidTime)
			if err != nil {
				return nil, fmt.Errorf("parse %s interval: %w", prop.name, err)
			}
			// Intervals reaching outside the skeleton are truncated, not
			// rejected.
			for t := start; t.Before(end); t = t.Add(time.Hour) {
				if i, ok := index[t]; ok {
					prop.set(&forecasts[i].Predicted, val.Value)
				}
			}
		}
	}

	return forecasts, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
