package timetable

import (
	"regexp"
	"time"

	"github.com/teambition/rrule-go"
)

// DateKeyLayout is the canonical date form used as a map key and on the wire.
const DateKeyLayout = "2006.01.02"

var (
	ymdRe = regexp.MustCompile(`^(\d{4})[.\-/](\d{2})[.\-/](\d{2})`)
	dmyRe = regexp.MustCompile(`^(\d{2})[.\-/](\d{2})[.\-/](\d{4})$`)
)

// NormalizeDateKey returns "YYYY.MM.DD" for YYYY-MM-DD style input (any of . - /
// separators, optional trailing time) and for DD.MM.YYYY, or "" if s is not a date.
func NormalizeDateKey(s string) string {
	if m := ymdRe.FindStringSubmatch(s); m != nil {
		return validKey(m[1], m[2], m[3])
	}
	if m := dmyRe.FindStringSubmatch(s); m != nil {
		return validKey(m[3], m[2], m[1])
	}
	return ""
}

func validKey(y, m, d string) string {
	k := y + "." + m + "." + d
	if _, err := time.Parse(DateKeyLayout, k); err != nil {
		return ""
	}
	return k
}

func DateKey(t time.Time) string { return t.Format(DateKeyLayout) }

// ParseDateKey parses a canonical key in loc.
func ParseDateKey(k string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateKeyLayout, k, loc)
}

// Midnight truncates t to the start of its calendar day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Days enumerates the calendar days from start to end inclusive.
func Days(start, end time.Time) []time.Time {
	start, end = Midnight(start), Midnight(end)
	if end.Before(start) {
		return nil
	}
	r, err := rrule.NewRRule(rrule.ROption{Freq: rrule.DAILY, Dtstart: start, Until: end})
	if err != nil {
		return nil
	}
	return r.All()
}

// WeekBounds returns Monday and Sunday of t's week.
func WeekBounds(t time.Time) (time.Time, time.Time) {
	d := Midnight(t)
	offset := (int(d.Weekday()) + 6) % 7
	mon := d.AddDate(0, 0, -offset)
	return mon, mon.AddDate(0, 0, 6)
}
