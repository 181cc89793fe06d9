package timetable

import (
	"testing"
	"time"
)

func TestNormalizeDateKey(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"2025.09.01":          "2025.09.01",
		"2025-09-01":          "2025.09.01",
		"2025/09/01":          "2025.09.01",
		"2025-09-01T08:30:00": "2025.09.01",
		"01.09.2025":          "2025.09.01",
		"2025.02.30":          "",
		"Monday":              "",
		"":                    "",
	}
	for in, want := range tests {
		if got := NormalizeDateKey(in); got != want {
			t.Fatalf("NormalizeDateKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDaysAndWeekBounds(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Skipf("tzdata: %v", err)
	}
	start := time.Date(2025, 9, 3, 15, 0, 0, 0, loc)
	mon, sun := WeekBounds(start)
	if DateKey(mon) != "2025.09.01" || DateKey(sun) != "2025.09.07" {
		t.Fatalf("WeekBounds = %s..%s", DateKey(mon), DateKey(sun))
	}
	days := Days(mon, sun)
	if len(days) != 7 || DateKey(days[6]) != "2025.09.07" {
		t.Fatalf("Days = %v", days)
	}
	if d := Days(sun, mon); d != nil {
		t.Fatalf("Days(reversed) = %v, want nil", d)
	}

	sunday := time.Date(2025, 9, 7, 10, 0, 0, 0, loc)
	if mon2, _ := WeekBounds(sunday); DateKey(mon2) != "2025.09.01" {
		t.Fatalf("WeekBounds(sunday) monday = %s", DateKey(mon2))
	}
}
