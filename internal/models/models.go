package models

import (
	"database/sql"
	"time"
)

// Measurement is the bundle of optional weather fields shared by forecast
// and observation records. A field left invalid means the source feed did
// not report it for that hour, which is distinct from a reported zero.
type Measurement struct {
	Weather      sql.NullString  // free-text description, observations only
	AllWeather   sql.NullString  // simultaneous phenomena, joined with ", "
	Temperature  sql.NullFloat64 // degC
	Dewpoint     sql.NullFloat64 // degC
	SkyCover     sql.NullFloat64 // forecast cloud cover percent
	CloudLayers  sql.NullString  // observed layer amounts, joined with ", "
	Precip1Hr    sql.NullFloat64 // mm
	Precip6Hr    sql.NullFloat64 // mm; -1 on observations taken off the 6-hour cycle
	PrecipChance sql.NullFloat64 // percent
	WindDir      sql.NullFloat64 // degrees
	WindSpeed    sql.NullFloat64 // km/h
}

// Forecast is one hourly slot of a recorded forecast grid. ValidTime is
// always a calendar hour boundary in UTC and LeadDays is always >= 1.
type Forecast struct {
	ID        int64
	ValidTime time.Time
	MadeAt    time.Time
	LeadDays  int
	Predicted Measurement
	CreatedAt time.Time
}

// Observation is one station observation quantized to the top of the hour.
// ObservedAt doubles as the record's unique key.
type Observation struct {
	ID         int64
	ObservedAt time.Time
	Observed   Measurement
	CreatedAt  time.Time
}

// RecordError is an operational failure noted during a record run, such as
// a stale forecast or an observation run that produced nothing new.
type RecordError struct {
	ID        int64
	Message   string
	CreatedAt time.Time
}
