package timetable

import (
	"testing"
	"time"
)

func TestBellScheduleAssign(t *testing.T) {
	t.Parallel()

	b := DefaultBells()
	tests := []struct {
		rng  string
		slot int
		ok   bool
	}{
		{"08:30-10:00", 1, true},
		{"08:45-10:15", 1, true},
		{"09:10-10:40", 0, false},
		{"10:10-11:40", 2, true},
		{"10:10:00-11:40:00", 2, true},
		{"14:20-15:50", 4, true},
		{"20:40-22:10", 8, true},
		{"07:00-08:00", 0, false},
	}
	for _, tt := range tests {
		slot, ok := b.Assign(ParseTimeRange(tt.rng))
		if slot != tt.slot || ok != tt.ok {
			t.Fatalf("Assign(%s) = %d,%v, want %d,%v", tt.rng, slot, ok, tt.slot, tt.ok)
		}
	}
	if _, ok := b.Assign(TimeRange{Raw: "??"}); ok {
		t.Fatalf("Assign(invalid) ok = true")
	}
}

func TestBellScheduleCustom(t *testing.T) {
	t.Parallel()

	b, err := NewBellSchedule([]string{"09:00", "09:40"}, 20*time.Minute)
	if err != nil {
		t.Fatalf("NewBellSchedule: %v", err)
	}
	// 09:20 is 20 minutes from both starts; the earlier slot wins.
	if slot, ok := b.Assign(ParseTimeRange("09:20-10:00")); slot != 1 || !ok {
		t.Fatalf("Assign tie = %d,%v, want 1,true", slot, ok)
	}
	if _, err := NewBellSchedule([]string{"10:00", "09:00"}, 0); err == nil {
		t.Fatalf("decreasing starts accepted")
	}
	if _, err := NewBellSchedule([]string{"25:00"}, 0); err == nil {
		t.Fatalf("bad clock accepted")
	}
	if DefaultBells().Len() != 8 {
		t.Fatalf("default bells = %d, want 8", DefaultBells().Len())
	}
}
