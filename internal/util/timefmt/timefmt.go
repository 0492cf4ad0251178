package timefmt

import "time"

// LUT is the "last updated time" layout used everywhere a timestamp is
// persisted or put on the wire: history records, user records, session
// summaries.
const LUT = "2006-01-02 15:04:05"

// DateOnly is the day-granularity layout used by the document-store event
// sweep.
const DateOnly = "2006-01-02"

// Format formats a time.Time to the standard LUT representation.
func Format(t time.Time) string {
	return t.Format(LUT)
}

// Now returns the current time in the standard LUT representation.
func Now() string {
	return Format(time.Now())
}

// Parse parses a LUT string back into a time.Time in the local zone.
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(LUT, s, time.Local)
}
