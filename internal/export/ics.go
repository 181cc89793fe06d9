// Package export renders fetched timetables as iCalendar files.
package export

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"timetablebot/internal/timetable"
)

const productID = "-//timetablebot//RU"

// Calendar builds one VCALENDAR holding every lesson of days that has a
// parseable time. Lessons without one cannot be placed and are counted in skipped.
func Calendar(e timetable.Entity, days []timetable.Day, loc *time.Location, stamp time.Time) (data []byte, events, skipped int) {
	if loc == nil {
		loc = time.Local
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("Расписание: " + e.Label())
	cal.SetXWRTimezone(loc.String())

	for _, d := range days {
		for _, l := range d.Lessons {
			if !l.Time.Valid {
				skipped++
				continue
			}
			date, err := timetable.ParseDateKey(l.Date, loc)
			if err != nil {
				skipped++
				continue
			}
			ev := cal.AddEvent(uid(e, l))
			ev.SetDtStampTime(stamp.UTC())
			ev.SetStartAt(date.Add(time.Duration(l.Time.Start) * time.Minute))
			ev.SetEndAt(date.Add(time.Duration(l.Time.End) * time.Minute))
			ev.SetSummary(summary(l))
			if loc := location(l); loc != "" {
				ev.SetLocation(loc)
			}
			if desc := description(e, l); desc != "" {
				ev.SetDescription(desc)
			}
			if l.OnlineLink != "" {
				ev.SetURL(l.OnlineLink)
			}
			events++
		}
	}
	return []byte(cal.Serialize()), events, skipped
}

// FileName is a safe attachment name for e's calendar starting at start.
func FileName(e timetable.Entity, start time.Time) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, e.Label())
	return fmt.Sprintf("%s_%s.ics", name, start.Format("2006-01-02"))
}

func uid(e timetable.Entity, l timetable.Lesson) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%d|%s|%s", e.Kind, e.ID, l.Date, l.Time.Start, l.Title, l.Room)
	return fmt.Sprintf("%x@timetablebot", h.Sum64())
}

func summary(l timetable.Lesson) string {
	title := strings.TrimSpace(l.Title)
	if title == "" {
		title = "Без названия"
	}
	if l.KindLabel != "" {
		title += " (" + l.KindLabel + ")"
	}
	return title
}

func location(l timetable.Lesson) string {
	switch {
	case l.Room != "":
		return l.Room
	case l.Online:
		return "онлайн"
	}
	return ""
}

func description(e timetable.Entity, l timetable.Lesson) string {
	var parts []string
	if e.Kind == timetable.EntityInstructor {
		if l.Groups != "" {
			parts = append(parts, "Группы: "+l.Groups)
		}
	} else if l.Instructor != "" {
		parts = append(parts, "Преподаватель: "+l.Instructor)
	}
	if l.OnlineLink != "" {
		parts = append(parts, "Ссылка: "+l.OnlineLink)
	}
	return strings.Join(parts, "\n")
}
