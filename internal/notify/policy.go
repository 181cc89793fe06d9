package notify

import "time"

// SkipPolicy decides whether a firing delivers nothing for its target date.
type SkipPolicy interface {
	Skip(target time.Time) bool
	String() string
}

// SkipWeekday skips targets falling on one weekday, the source's
// non-instructional day.
type SkipWeekday time.Weekday

// SkipSunday is the default policy.
const SkipSunday = SkipWeekday(time.Sunday)

func (w SkipWeekday) Skip(target time.Time) bool { return target.Weekday() == time.Weekday(w) }
func (w SkipWeekday) String() string             { return "skip " + time.Weekday(w).String() }

// NeverSkip delivers every day.
type NeverSkip struct{}

func (NeverSkip) Skip(time.Time) bool { return false }
func (NeverSkip) String() string      { return "never skip" }
