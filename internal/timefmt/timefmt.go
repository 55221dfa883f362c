// Package timefmt handles the timestamp formats used across the pipeline.
//
// The upstream integration API speaks UTC ISO-8601; the historical tables
// store locale-formatted dd/mm/yyyy strings for backward read-compatibility
// with existing data. All conversion between the two happens here, so the
// rest of the code works with typed instants.
package timefmt

import (
	"time"
)

const (
	// DisplayLayout is the on-disk format of departure/arrival columns.
	DisplayLayout = "02/01/2006 15:04:05"

	// UpstreamLayout is the format the Grid/List endpoint returns.
	UpstreamLayout = "2006-01-02T15:04:05Z"

	// APIMilliLayout is the millisecond-precision format the position
	// history endpoint expects for its start/end filters.
	APIMilliLayout = "2006-01-02T15:04:05.000Z"

	// DateOnlyLayout is the format of DATE columns (data_registro,
	// data_execucao) at the SQL boundary.
	DateOnlyLayout = "2006-01-02"
)

// apiUTCOffset is the fixed correction applied to locally-formatted trip
// timestamps before they are sent to the position history endpoint, which
// expects UTC.
const apiUTCOffset = 3 * time.Hour

// Local is the fleet's operating timezone. Calendar dates ("today",
// "yesterday") are taken in this zone.
var Local *time.Location

func init() {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		loc = time.FixedZone("-03", -3*60*60)
	}
	Local = loc
}

// Today returns the current calendar date in the fleet's timezone,
// truncated to midnight.
func Today() time.Time {
	return DateOf(time.Now().In(Local))
}

// DateOf truncates t to its calendar date in the fleet's timezone.
func DateOf(t time.Time) time.Time {
	t = t.In(Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Local)
}

// MidnightUTC renders a calendar date as the midnight-UTC effective-date
// filter the Grid/List endpoint expects.
func MidnightUTC(d time.Time) string {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Format(UpstreamLayout)
}

// DayBoundsUTC renders the inclusive start/end filters covering one
// calendar date, millisecond precision.
func DayBoundsUTC(d time.Time) (string, string) {
	day := d.Format(DateOnlyLayout)
	return day + "T00:00:00.000Z", day + "T23:59:59.999Z"
}

// FormatUpstream reformats an upstream ISO timestamp to the display format.
// Unparseable input is passed through unchanged, never rejected.
func FormatUpstream(s string) string {
	t, err := time.Parse(UpstreamLayout, s)
	if err != nil {
		return s
	}
	return t.Format(DisplayLayout)
}

// NullifySentinel maps the upstream zero-date sentinel to nil. Both
// formatting variants the API has produced over time are recognised.
func NullifySentinel(s string) *string {
	if s == "" || s == "01/01/0001 00:00:00" || s == "01/01/1 00:00:00" {
		return nil
	}
	return &s
}

// NormalizeUpstream converts an upstream ISO timestamp to the nullable
// display form stored in the schedule tables.
func NormalizeUpstream(s string) *string {
	if s == "" {
		return nil
	}
	return NullifySentinel(FormatUpstream(s))
}

// ParseDisplay parses an on-disk display timestamp.
func ParseDisplay(s string) (time.Time, error) {
	return time.ParseInLocation(DisplayLayout, s, Local)
}

// APIWindow converts a locally-formatted departure/arrival pair into the
// UTC start/end filters for a position history request. The fixed +3h
// offset matches the upstream contract for local trip timestamps.
func APIWindow(departure, arrival string) (string, string, error) {
	dep, err := ParseDisplay(departure)
	if err != nil {
		return "", "", err
	}
	arr, err := ParseDisplay(arrival)
	if err != nil {
		return "", "", err
	}
	start := dep.Add(apiUTCOffset)
	end := arr.Add(apiUTCOffset)
	return start.Format(APIMilliLayout), end.Format(APIMilliLayout), nil
}
