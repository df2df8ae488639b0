package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeDateOnly(t *testing.T) {
	got, ok := ParseTime("2024-10-10")
	if !ok {
		t.Fatalf("expected ok")
	}
	if DayKey(got) != "2024-10-10" {
		t.Fatalf("unexpected day %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestFromUnixMilli(t *testing.T) {
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if got := FromUnixMilli(float64(want.UnixMilli())); !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNextDays(t *testing.T) {
	last := time.Date(2024, 2, 27, 15, 30, 0, 0, time.UTC)
	days := NextDays(last, 3)
	want := []string{"2024-02-28", "2024-02-29", "2024-03-01"}
	for i, d := range days {
		if DayKey(d) != want[i] {
			t.Fatalf("day %d: got %s want %s", i, DayKey(d), want[i])
		}
		if d.Hour() != 0 || d.Minute() != 0 {
			t.Fatalf("day %d not at midnight: %v", i, d)
		}
	}
}
