package timetable

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	logx "timetablebot/pkg/logx"
)

// FailedDay replaces the lesson list of a day whose fetch failed.
const FailedDay = "Не удалось получить расписание на этот день. Попробуйте позже."

// Fetcher is the upstream timetable capability.
type Fetcher interface {
	Timetable(ctx context.Context, kind EntityKind, id string, start, end time.Time) (Payload, error)
}

// Entity identifies what a timetable is for.
type Entity struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
	Name string     `json:"name"`
}

func (e Entity) Label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

// Day is one formatted day of a range. Err is set when the day could not be fetched.
type Day struct {
	Date    time.Time
	Key     string
	Lessons []Lesson
	Text    string
	Err     error
}

// Aggregator fetches and formats date ranges. Bells may be swapped at runtime.
type Aggregator struct {
	fetch Fetcher
	log   logx.Logger
	bells atomic.Pointer[BellSchedule]
}

func NewAggregator(f Fetcher, bells *BellSchedule, log logx.Logger) *Aggregator {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Aggregator{fetch: f, log: log.With(logx.String("comp", "timetable"))}
	a.SetBells(bells)
	return a
}

func (a *Aggregator) SetBells(b *BellSchedule) {
	if b == nil {
		b = DefaultBells()
	}
	a.bells.Store(b)
}

func (a *Aggregator) formatter() Formatter { return Formatter{Bells: a.bells.Load()} }

// FormatDay fetches and renders one day.
func (a *Aggregator) FormatDay(ctx context.Context, e Entity, date time.Time) (string, error) {
	days, err := a.FormatRange(ctx, e, date, date)
	if err != nil {
		return "", err
	}
	if len(days) == 0 {
		return "", errors.New("timetable: empty range")
	}
	if days[0].Err != nil {
		return "", days[0].Err
	}
	return days[0].Text, nil
}

// FormatRange renders every day from start to end inclusive. It issues one bulk
// fetch, then one point fetch for each day the bulk response lacks. A failed bulk
// fetch fails the whole range; a failed point fetch marks only its own day.
func (a *Aggregator) FormatRange(ctx context.Context, e Entity, start, end time.Time) ([]Day, error) {
	days := Days(start, end)
	if len(days) == 0 {
		return nil, fmt.Errorf("timetable: invalid range %s..%s", DateKey(start), DateKey(end))
	}
	single := len(days) == 1
	fallback := ""
	if single {
		fallback = DateKey(days[0])
	}

	payload, err := a.fetch.Timetable(ctx, e.Kind, e.ID, days[0], days[len(days)-1])
	if err != nil {
		return nil, err
	}
	byDate, skipped := payload.Lessons(e.Kind, fallback)
	if skipped > 0 {
		a.log.Debug("records skipped", logx.String("entity", e.ID), logx.Int("skipped", skipped))
	}

	f := a.formatter()
	out := make([]Day, 0, len(days))
	for _, d := range days {
		key := DateKey(d)
		day := Day{Date: d, Key: key}
		lessons, ok := byDate[key]
		// for a single day the bulk fetch already was the point fetch
		if !ok && !single {
			lessons, day.Err = a.pointFetch(ctx, e, d)
		}
		if day.Err != nil {
			day.Text = Header(key, e.Label()) + "\n\n" + FailedDay
		} else {
			day.Lessons = lessons
			day.Text = f.FormatDay(key, e.Label(), e.Kind, lessons)
		}
		out = append(out, day)
	}
	return out, nil
}

func (a *Aggregator) pointFetch(ctx context.Context, e Entity, d time.Time) ([]Lesson, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := a.fetch.Timetable(ctx, e.Kind, e.ID, d, d)
	if err != nil {
		a.log.Warn("point fetch failed", logx.String("entity", e.ID), logx.String("date", DateKey(d)), logx.Err(err))
		return nil, err
	}
	key := DateKey(d)
	byDate, _ := p.Lessons(e.Kind, key)
	return byDate[key], nil
}
