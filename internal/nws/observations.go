package nws

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ryanp54/forecastcheck/internal/models"
)

// ObservationFeature is one entry of the "features" list of an NWS station
// observations response.
type ObservationFeature struct {
	Properties ObservationProperties `json:"properties"`
}

// ObservationProperties carries the raw observation fields. NWS wraps
// scalar readings in {value} objects and reports missing readings as null.
type ObservationProperties struct {
	ID                      string              `json:"id"`
	TextDescription         *string             `json:"textDescription"`
	PresentWeather          []WeatherPhenomenon `json:"presentWeather"`
	Temperature             QuantValue          `json:"temperature"`
	Dewpoint                QuantValue          `json:"dewpoint"`
	CloudLayers             []CloudLayer        `json:"cloudLayers"`
	PrecipitationLastHour   QuantValue          `json:"precipitationLastHour"`
	PrecipitationLast6Hours QuantValue          `json:"precipitationLast6Hours"`
	WindDirection           QuantValue          `json:"windDirection"`
	WindSpeed               QuantValue          `json:"windSpeed"`
}

// QuantValue is NWS's quantitative value wrapper.
type QuantValue struct {
	Value *float64 `json:"value"`
}

// WeatherPhenomenon is one entry of a presentWeather list.
type WeatherPhenomenon struct {
	Weather string `json:"weather"`
}

// CloudLayer is one entry of a cloudLayers list.
type CloudLayer struct {
	Amount string `json:"amount"`
}

// ObsStats reports what a quantizer run kept and what it discarded, with
// the two discard reasons counted separately.
type ObsStats struct {
	Accepted        int
	Ambiguous       int
	AlreadyRecorded int
}

// QuantizeToHour snaps an observation time to the nearest hour boundary.
// Times 15 to 45 minutes past the hour sit in the dead zone between two
// boundaries and report ok=false; assigning them to either side would risk
// double-counting or mislabeling the observation.
func QuantizeToHour(t time.Time) (time.Time, bool) {
	switch m := t.Minute(); {
	case m > 45:
		return t.Truncate(time.Hour).Add(time.Hour), true
	case m < 15:
		return t.Truncate(time.Hour), true
	default:
		return time.Time{}, false
	}
}

// BuildObservations quantizes raw station observations onto the hourly grid
// and assembles a record for each newly seen hour. lastRecorded is the most
// recent instant already persisted (zero when nothing has been recorded);
// entries at or before it are dropped as already recorded. The watermark is
// a snapshot for the whole run and never advances mid-run.
//
// Two raw entries can land on the same hour boundary, e.g. a routine :53
// report and a special :10 report bracketing it. The batch holds one record
// per instant: the later entry replaces the earlier record and the earlier
// one counts as already recorded.
//
// A malformed entry timestamp fails the whole batch; ambiguous entries are
// counted and skipped.
func BuildObservations(features []ObservationFeature, lastRecorded time.Time) ([]models.Observation, ObsStats, error) {
	var records []models.Observation
	var stats ObsStats
	emitted := make(map[time.Time]int)

	for _, f := range features {
		segments := strings.Split(f.Properties.ID, "/")
		raw, err := ParseInstant(segments[len(segments)-1])
		if err != nil {
			return nil, ObsStats{}, fmt.Errorf("observation %q: %w", f.Properties.ID, err)
		}

		hour, ok := QuantizeToHour(raw)
		if !ok {
			stats.Ambiguous++
			continue
		}
		if !hour.After(lastRecorded) {
			stats.AlreadyRecorded++
			continue
		}
		if i, seen := emitted[hour]; seen {
			records[i].Observed = assembleObserved(f.Properties, hour)
			stats.AlreadyRecorded++
			continue
		}

		emitted[hour] = len(records)
		records = append(records, models.Observation{
			ObservedAt: hour,
			Observed:   assembleObserved(f.Properties, hour),
		})
		stats.Accepted++
	}

	return records, stats, nil
}

// assembleObserved applies the feed-specific field derivations: 1-hour
// precipitation coerces null to zero, 6-hour precipitation is only valid on
// the 6-hour reporting cycle (-1 otherwise), and multi-entry fields join in
// source order. Everything else passes through, absent included.
func assembleObserved(p ObservationProperties, hour time.Time) models.Measurement {
	m := models.Measurement{
		Weather:     nullString(p.TextDescription),
		AllWeather:  joinPhenomena(p.PresentWeather),
		Temperature: nullFloat(p.Temperature.Value),
		Dewpoint:    nullFloat(p.Dewpoint.Value),
		CloudLayers: joinLayers(p.CloudLayers),
		Precip1Hr:   zeroWhenNull(p.PrecipitationLastHour.Value),
		WindDir:     nullFloat(p.WindDirection.Value),
		WindSpeed:   nullFloat(p.WindSpeed.Value),
	}

	if hour.Hour()%6 == 0 {
		m.Precip6Hr = zeroWhenNull(p.PrecipitationLast6Hours.Value)
	} else {
		m.Precip6Hr = sql.NullFloat64{Float64: -1, Valid: true}
	}

	return m
}

func joinPhenomena(phenomena []WeatherPhenomenon) sql.NullString {
	parts := make([]string, 0, len(phenomena))
	for _, p := range phenomena {
		parts = append(parts, p.Weather)
	}
	return joined(parts)
}

func joinLayers(layers []CloudLayer) sql.NullString {
	parts := make([]string, 0, len(layers))
	for _, l := range layers {
		parts = append(parts, l.Amount)
	}
	return joined(parts)
}

// joined yields NULL, not an empty string, for an empty source list.
func joined(parts []string) sql.NullString {
	if len(parts) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.Join(parts, ", "), Valid: true}
}

func zeroWhenNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{Float64: 0, Valid: true}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
