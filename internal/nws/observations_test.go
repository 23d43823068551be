package nws

import (
	"testing"
	"time"
)

func sv(s string) *string { return &s }

func obsFeature(id string) ObservationFeature {
	return ObservationFeature{Properties: ObservationProperties{ID: id}}
}

func TestQuantizeToHour(t *testing.T) {
	tests := []struct {
		name   string
		minute int
		want   int // hour after quantizing, -1 for discarded
	}{
		{"on the hour", 0, 5},
		{"ten past rounds down", 10, 5},
		{"fourteen past rounds down", 14, 5},
		{"fifteen past is ambiguous", 15, -1},
		{"half past is ambiguous", 30, -1},
		{"quarter to is ambiguous", 45, -1},
		{"fifty past rounds up", 50, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := time.Date(2020, 1, 2, 5, tt.minute, 0, 0, time.UTC)
			got, ok := QuantizeToHour(in)
			if tt.want == -1 {
				if ok {
					t.Fatalf("QuantizeToHour(:%02d) ok, want discarded", tt.minute)
				}
				return
			}
			if !ok {
				t.Fatalf("QuantizeToHour(:%02d) discarded, want hour %d", tt.minute, tt.want)
			}
			want := time.Date(2020, 1, 2, tt.want, 0, 0, 0, time.UTC)
			if !got.Equal(want) {
				t.Errorf("QuantizeToHour(:%02d) = %v, want %v", tt.minute, got, want)
			}
		})
	}
}

func TestBuildObservations_Watermark(t *testing.T) {
	last := time.Date(2020, 1, 2, 5, 0, 0, 0, time.UTC)
	features := []ObservationFeature{
		obsFeature("station/KMLE/observations/2020-01-02T04:53:00+00:00"), // quantizes to 05:00, not after watermark
		obsFeature("station/KMLE/observations/2020-01-02T05:53:00+00:00"), // quantizes to 06:00, new
		obsFeature("station/KMLE/observations/2020-01-02T06:30:00+00:00"), // ambiguous
	}

	records, stats, err := BuildObservations(features, last)
	if err != nil {
		t.Fatalf("BuildObservations: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	want := time.Date(2020, 1, 2, 6, 0, 0, 0, time.UTC)
	if !records[0].ObservedAt.Equal(want) {
		t.Errorf("ObservedAt = %v, want %v", records[0].ObservedAt, want)
	}
	if stats.Accepted != 1 || stats.AlreadyRecorded != 1 || stats.Ambiguous != 1 {
		t.Errorf("stats = %+v, want 1 accepted, 1 already recorded, 1 ambiguous", stats)
	}
}

func TestBuildObservations_SameHourPairKeepsLast(t *testing.T) {
	early := obsFeature("station/KMLE/observations/2020-01-02T04:53:00+00:00") // rounds up to 05:00
	late := obsFeature("station/KMLE/observations/2020-01-02T05:10:00+00:00")  // rounds down to 05:00
	var earlyTemp, lateTemp float64 = 3.0, 4.5
	early.Properties.Temperature = QuantValue{Value: &earlyTemp}
	late.Properties.Temperature = QuantValue{Value: &lateTemp}

	records, stats, err := BuildObservations([]ObservationFeature{early, late}, time.Time{})
	if err != nil {
		t.Fatalf("BuildObservations: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1 record for the shared hour", len(records))
	}
	want := time.Date(2020, 1, 2, 5, 0, 0, 0, time.UTC)
	if !records[0].ObservedAt.Equal(want) {
		t.Errorf("ObservedAt = %v, want %v", records[0].ObservedAt, want)
	}
	if !records[0].Observed.Temperature.Valid || records[0].Observed.Temperature.Float64 != lateTemp {
		t.Errorf("Temperature = %+v, want %v from the later entry", records[0].Observed.Temperature, lateTemp)
	}
	if stats.Accepted != 1 || stats.AlreadyRecorded != 1 {
		t.Errorf("stats = %+v, want 1 accepted, 1 already recorded", stats)
	}
}

func TestBuildObservations_NoWatermark(t *testing.T) {
	features := []ObservationFeature{
		obsFeature("station/KMLE/observations/2020-01-02T05:03:00+00:00"),
	}

	records, _, err := BuildObservations(features, time.Time{})
	if err != nil {
		t.Fatalf("BuildObservations: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1 with zero watermark", len(records))
	}
}

func TestBuildObservations_MalformedIDFailsBatch(t *testing.T) {
	features := []ObservationFeature{
		obsFeature("station/KMLE/observations/2020-01-02T05:03:00+00:00"),
		obsFeature("station/KMLE/observations/banana"),
	}

	if _, _, err := BuildObservations(features, time.Time{}); err == nil {
		t.Error("BuildObservations with malformed id: want error")
	}
}

func TestAssembleObserved_PrecipDerivations(t *testing.T) {
	var qpf float64 = 2.5

	tests := []struct {
		name     string
		hour     int
		raw1hr   *float64
		raw6hr   *float64
		want1hr  float64
		want6hr  float64
	}{
		{"null 1hr coerces to zero", 6, nil, nil, 0, 0},
		{"reported 1hr passes through", 6, &qpf, &qpf, 2.5, 2.5},
		{"6hr off-cycle is not applicable", 7, nil, &qpf, 0, -1},
		{"6hr at hour 12 with null raw", 12, nil, nil, 0, 0},
		{"6hr at midnight with value", 0, nil, &qpf, 0, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ObservationProperties{
				PrecipitationLastHour:   QuantValue{Value: tt.raw1hr},
				PrecipitationLast6Hours: QuantValue{Value: tt.raw6hr},
			}
			hour := time.Date(2020, 1, 2, tt.hour, 0, 0, 0, time.UTC)
			m := assembleObserved(p, hour)

			if !m.Precip1Hr.Valid || m.Precip1Hr.Float64 != tt.want1hr {
				t.Errorf("Precip1Hr = %+v, want %v", m.Precip1Hr, tt.want1hr)
			}
			if !m.Precip6Hr.Valid || m.Precip6Hr.Float64 != tt.want6hr {
				t.Errorf("Precip6Hr = %+v, want %v", m.Precip6Hr, tt.want6hr)
			}
		})
	}
}

func TestAssembleObserved_JoinedFields(t *testing.T) {
	hour := time.Date(2020, 1, 2, 5, 0, 0, 0, time.UTC)

	p := ObservationProperties{
		TextDescription: sv("Light Rain"),
		PresentWeather: []WeatherPhenomenon{
			{Weather: "Rain"},
			{Weather: "Fog"},
		},
		CloudLayers: []CloudLayer{
			{Amount: "FEW"},
			{Amount: "OVC"},
		},
	}
	m := assembleObserved(p, hour)

	if !m.AllWeather.Valid || m.AllWeather.String != "Rain, Fog" {
		t.Errorf("AllWeather = %+v, want \"Rain, Fog\"", m.AllWeather)
	}
	if !m.CloudLayers.Valid || m.CloudLayers.String != "FEW, OVC" {
		t.Errorf("CloudLayers = %+v, want \"FEW, OVC\"", m.CloudLayers)
	}
	if !m.Weather.Valid || m.Weather.String != "Light Rain" {
		t.Errorf("Weather = %+v, want \"Light Rain\"", m.Weather)
	}

	empty := assembleObserved(ObservationProperties{}, hour)
	if empty.AllWeather.Valid {
		t.Errorf("AllWeather = %+v, want NULL for empty list", empty.AllWeather)
	}
	if empty.CloudLayers.Valid {
		t.Errorf("CloudLayers = %+v, want NULL for empty list", empty.CloudLayers)
	}
	if empty.Weather.Valid {
		t.Errorf("Weather = %+v, want NULL when unreported", empty.Weather)
	}
	if empty.Temperature.Valid {
		t.Errorf("Temperature = %+v, want absent", empty.Temperature)
	}
}
