package timetable

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Kind is the normalized lesson category.
type Kind string

const (
	KindLecture      Kind = "lecture"
	KindSeminar      Kind = "seminar"
	KindPractical    Kind = "practical"
	KindLab          Kind = "lab"
	KindColloquium   Kind = "colloquium"
	KindConsultation Kind = "consultation"
	KindCredit       Kind = "credit"
	KindExam         Kind = "exam"
	KindUnknown      Kind = "unknown"
)

// TimeRange is a clock range in minutes of day. Raw keeps the source text when
// it could not be parsed; such a range takes no part in slot math.
type TimeRange struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Valid bool   `json:"valid"`
	Raw   string `json:"raw,omitempty"`
}

var rangeRe = regexp.MustCompile(`^\s*(\d{1,2})[:.](\d{2})(?::\d{2})?\s*[-–—]\s*(\d{1,2})[:.](\d{2})(?::\d{2})?\s*$`)

// ParseTimeRange accepts "HH:MM-HH:MM" with ':' or '.' and any dash.
// Trailing seconds ("08:30:00") are ignored.
func ParseTimeRange(s string) TimeRange {
	m := rangeRe.FindStringSubmatch(s)
	if m == nil {
		return TimeRange{Raw: s}
	}
	start, ok1 := clock(m[1], m[2])
	end, ok2 := clock(m[3], m[4])
	if !ok1 || !ok2 || end < start {
		return TimeRange{Raw: s}
	}
	return TimeRange{Start: start, End: end, Valid: true}
}

// RangeOf joins separate begin/end values.
func RangeOf(begin, end string) TimeRange {
	if begin == "" || end == "" {
		return TimeRange{}
	}
	return ParseTimeRange(begin + "-" + end)
}

func clock(h, m string) (int, bool) {
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hh > 23 || mm > 59 {
		return 0, false
	}
	return hh*60 + mm, true
}

// ParseClock parses "HH:MM" into minutes of day.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// String is the canonical slot key: "08:30-10:00" for a valid range, the raw text otherwise.
func (r TimeRange) String() string {
	if !r.Valid {
		return r.Raw
	}
	return FormatClock(r.Start) + "-" + FormatClock(r.End)
}

func (r TimeRange) IsZero() bool { return !r.Valid && r.Raw == "" }

// Lesson is a detached, immutable snapshot of one class occurrence.
type Lesson struct {
	Date          string    `json:"date"` // YYYY.MM.DD
	Time          TimeRange `json:"time"`
	Title         string    `json:"title"`
	Kind          Kind      `json:"kind"`
	KindLabel     string    `json:"kind_label,omitempty"`
	Instructor    string    `json:"instructor,omitempty"`
	Groups        string    `json:"groups,omitempty"`
	Room          string    `json:"room,omitempty"`
	Online        bool      `json:"online"`
	OnlineLink    string    `json:"online_link,omitempty"`
	DeclaredBreak int       `json:"declared_break,omitempty"`
}
