package timetable

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
)

const NoLessons = "Нет занятий"

var weekdayAccusative = [...]string{
	time.Sunday:    "воскресенье",
	time.Monday:    "понедельник",
	time.Tuesday:   "вторник",
	time.Wednesday: "среду",
	time.Thursday:  "четверг",
	time.Friday:    "пятницу",
	time.Saturday:  "субботу",
}

// Formatter renders one day. The zero value uses the default bell schedule.
type Formatter struct {
	Bells *BellSchedule
}

// slot is the lessons sharing one time-range string, in input order.
type slot struct {
	key     string
	rng     TimeRange
	lessons []Lesson
}

// Header renders the bold first line of a day block.
func Header(dateKey, label string) string {
	label = html.EscapeString(strings.TrimSpace(label))
	d, err := time.Parse(DateKeyLayout, dateKey)
	if err != nil {
		return fmt.Sprintf("<b>Расписание для %s на %s:</b>", label, html.EscapeString(dateKey))
	}
	return fmt.Sprintf("<b>Расписание для %s на %s (%s):</b>", label, weekdayAccusative[d.Weekday()], d.Format("2006-01-02"))
}

// FormatDay renders lessons of one (date, entity) pair as HTML text.
// kind selects who is shown on the first line: the instructor for a group,
// the groups for an instructor.
func (f Formatter) FormatDay(dateKey, label string, kind EntityKind, lessons []Lesson) string {
	header := Header(dateKey, label)
	if len(lessons) == 0 {
		return header + "\n\n" + NoLessons
	}
	bells := f.Bells
	if bells == nil {
		bells = DefaultBells()
	}

	slots := groupSlots(lessons)
	lines := []string{header}
	for i, s := range slots {
		lines = append(lines, "")
		for _, l := range s.lessons {
			lines = append(lines, firstLine(bells, l, kind), secondLine(l))
		}
		if i+1 < len(slots) {
			if brk := breakBetween(s, slots[i+1]); brk > 0 {
				lines = append(lines, fmt.Sprintf("Перерыв %d %s.", brk, minutesWord(brk)))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// groupSlots groups by identical range string and sorts by start minute.
// Unparseable ranges sort last and keep their input order.
func groupSlots(lessons []Lesson) []*slot {
	idx := map[string]*slot{}
	var out []*slot
	for _, l := range lessons {
		k := l.Time.String()
		s, ok := idx[k]
		if !ok {
			s = &slot{key: k, rng: l.Time}
			idx[k] = s
			out = append(out, s)
		}
		s.lessons = append(s.lessons, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].rng, out[j].rng
		if a.Valid != b.Valid {
			return a.Valid
		}
		if !a.Valid {
			return false
		}
		return a.Start < b.Start
	})
	return out
}

// breakBetween is max(declared break in cur, gap to next start). Unparseable
// ranges on either side yield no break.
func breakBetween(cur, next *slot) int {
	if !cur.rng.Valid || !next.rng.Valid {
		return 0
	}
	declared, latestEnd := 0, cur.rng.End
	for _, l := range cur.lessons {
		if l.DeclaredBreak > declared {
			declared = l.DeclaredBreak
		}
		if l.Time.End > latestEnd {
			latestEnd = l.Time.End
		}
	}
	return max(declared, next.rng.Start-latestEnd)
}

func firstLine(bells *BellSchedule, l Lesson, kind EntityKind) string {
	var b strings.Builder
	switch {
	case l.Time.Valid:
		if n, ok := bells.Assign(l.Time); ok {
			fmt.Fprintf(&b, "%d. ", n)
		} else {
			b.WriteString("• ")
		}
		b.WriteString(l.Time.String() + ".")
	case l.Time.Raw != "":
		b.WriteString(html.EscapeString(l.Time.Raw) + ".")
	default:
		b.WriteString("Время не указано.")
	}

	who := l.Instructor
	if kind == EntityInstructor {
		who = l.Groups
	}
	if who != "" {
		b.WriteString(" " + html.EscapeString(who))
	}
	if l.Room != "" {
		b.WriteString(" — " + html.EscapeString(l.Room) + ".")
	}
	if l.Online {
		if l.OnlineLink != "" {
			fmt.Fprintf(&b, ` <a href="%s">онлайн</a>`, html.EscapeString(l.OnlineLink))
		} else {
			b.WriteString(" (онлайн)")
		}
	}
	return b.String()
}

func secondLine(l Lesson) string {
	s := html.EscapeString(l.Title)
	if s == "" {
		s = "Без названия"
	}
	if l.KindLabel != "" {
		s += " (" + html.EscapeString(l.KindLabel) + ")"
	}
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

func minutesWord(n int) string {
	n = n % 100
	if n >= 11 && n <= 14 {
		return "минут"
	}
	switch n % 10 {
	case 1:
		return "минута"
	case 2, 3, 4:
		return "минуты"
	default:
		return "минут"
	}
}
