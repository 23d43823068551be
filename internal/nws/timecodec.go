// Package nws parses NWS gridpoint forecast and station observation feeds
// into hourly-aligned forecast and observation records. Everything here is
// pure computation; fetching and persistence live elsewhere.
package nws

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const instantLayout = "2006-01-02T15:04:05"

var (
	// ErrMalformedTimestamp reports a feed timestamp that does not match the
	// fixed YYYY-MM-DDTHH:MM:SS layout after noise stripping.
	ErrMalformedTimestamp = errors.New("malformed timestamp")

	// ErrMalformedDuration reports an interval duration that does not match
	// the restricted P<days>DT<hours>H grammar.
	ErrMalformedDuration = errors.New("malformed duration")
)

// ParseInstant parses an NWS timestamp into a UTC instant. Feed timestamps
// carry inconsistent trailing offsets and sub-second fractions, so anything
// from the first '+' or '.' onward is stripped before fixed-format parsing.
func ParseInstant(text string) (time.Time, error) {
	trimmed := text
	if i := strings.IndexAny(trimmed, "+."); i >= 0 {
		trimmed = trimmed[:i]
	}
	t, err := time.Parse(instantLayout, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, text)
	}
	return t, nil
}

// ParseIntervalSpec parses a duration-qualified NWS timestamp such as
// "2020-01-01T06:00:00+00:00/P1DT12H" into its start and end instants.
// Either duration component may be absent and defaults to zero.
func ParseIntervalSpec(text string) (time.Time, time.Time, error) {
	base, rest, found := strings.Cut(text, "+")
	if !found {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: no duration in %q", ErrMalformedDuration, text)
	}

	start, err := ParseInstant(base)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	d, err := parseGridDuration(rest)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.Add(d), nil
}

// parseGridDuration extracts the day and hour counts from the trailing
// "/P<days>DT<hours>H" portion of an interval spec.
func parseGridDuration(text string) (time.Duration, error) {
	_, spec, found := strings.Cut(text, "/P")
	if !found {
		return 0, fmt.Errorf("%w: %q", ErrMalformedDuration, text)
	}

	dayPart, hourPart, hasHours := strings.Cut(spec, "T")
	days, err := countOrZero(strings.TrimSuffix(dayPart, "D"))
	if err != nil {
		return 0, fmt.Errorf("%w: days in %q", ErrMalformedDuration, text)
	}

	hours := 0
	if hasHours {
		hours, err = countOrZero(strings.TrimSuffix(hourPart, "H"))
		if err != nil {
			return 0, fmt.Errorf("%w: hours in %q", ErrMalformedDuration, text)
		}
	}

	return time.Duration(days)*24*time.Hour + time.Duration(hours)*time.Hour, nil
}

func countOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
