package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, YYYY-MM-DD and unix seconds.
// Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// FromUnixMilli converts epoch milliseconds (possibly fractional) to UTC.
func FromUnixMilli(ms float64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}

// DayKey is the UTC calendar day of t, e.g. "2024-10-10".
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// StartOfDay truncates t to UTC midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextDays returns n consecutive UTC midnights starting the day after t.
func NextDays(t time.Time, n int) []time.Time {
	base := StartOfDay(t)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.AddDate(0, 0, i+1)
	}
	return out
}
