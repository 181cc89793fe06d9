package timetable

import (
	"errors"
	"fmt"
	"time"
)

// DefaultBellStarts is the nominal start of each class slot.
var DefaultBellStarts = []string{"08:30", "10:10", "11:50", "14:00", "15:40", "17:20", "19:00", "20:40"}

const DefaultSlotTolerance = 25 * time.Minute

// BellSchedule numbers class slots by their nominal start times. It is immutable.
type BellSchedule struct {
	starts    []int
	tolerance int
}

// NewBellSchedule parses "HH:MM" starts. An empty list selects the defaults,
// a non-positive tolerance selects DefaultSlotTolerance.
func NewBellSchedule(starts []string, tolerance time.Duration) (*BellSchedule, error) {
	if len(starts) == 0 {
		starts = DefaultBellStarts
	}
	if tolerance <= 0 {
		tolerance = DefaultSlotTolerance
	}
	b := &BellSchedule{tolerance: int(tolerance / time.Minute), starts: make([]int, 0, len(starts))}
	for i, s := range starts {
		m, err := ParseClock(s)
		if err != nil {
			return nil, fmt.Errorf("bell %d: %w", i+1, err)
		}
		if i > 0 && m <= b.starts[i-1] {
			return nil, errors.New("bell starts must be strictly increasing")
		}
		b.starts = append(b.starts, m)
	}
	return b, nil
}

// DefaultBells never fails.
func DefaultBells() *BellSchedule {
	b, _ := NewBellSchedule(nil, 0)
	return b
}

// Assign returns the 1-based slot whose start is nearest to r's start, provided
// the distance is within tolerance. Ties go to the earlier slot.
func (b *BellSchedule) Assign(r TimeRange) (int, bool) {
	if b == nil || !r.Valid {
		return 0, false
	}
	best, bestDiff := 0, -1
	for i, s := range b.starts {
		d := r.Start - s
		if d < 0 {
			d = -d
		}
		if bestDiff < 0 || d < bestDiff {
			best, bestDiff = i+1, d
		}
	}
	if bestDiff < 0 || bestDiff > b.tolerance {
		return 0, false
	}
	return best, true
}

func (b *BellSchedule) Len() int { return len(b.starts) }
