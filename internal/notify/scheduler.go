// Package notify keeps per-owner delivery timers in line with the favorites
// store and delivers each owner's timetables when a timer fires.
//
// Timers are a projection of favorites: for every owner with at least one
// favorite and every time in its notify set there is one daily timer and,
// while that time is still ahead today, one one-shot timer. Nothing about an
// owner is captured at schedule time; a firing re-reads the store.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"timetablebot/internal/eventbus"
	"timetablebot/internal/favorites"
	"timetablebot/internal/homework"
	"timetablebot/internal/task/scheduler"
	"timetablebot/internal/timetable"
	kit "timetablebot/internal/transport"
	"timetablebot/internal/upstream"
	logx "timetablebot/pkg/logx"
)

const namePrefix = "notify_"

// Timers is the trigger service timers are registered with.
type Timers interface {
	AddDaily(name, hhmm string, timeout time.Duration, job scheduler.Job) error
	AddOnce(name string, at time.Time, timeout time.Duration, job scheduler.Job) error
	Remove(name string) bool
	Names(prefix string) []string
	Location() *time.Location
}

type Favorites interface {
	Get(ctx context.Context, owner string) (favorites.Entry, error)
	All(ctx context.Context) (map[string]favorites.Entry, error)
}

type DayFormatter interface {
	FormatDay(ctx context.Context, e timetable.Entity, date time.Time) (string, error)
}

type Homework interface {
	ForDate(ctx context.Context, group string, date time.Time) ([]homework.Entry, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error
}

type Options struct {
	// Timeout bounds one firing. Default 2m.
	Timeout time.Duration
	Skip    SkipPolicy
	Now     func() time.Time
}

type Scheduler struct {
	timers   Timers
	fav      Favorites
	days     DayFormatter
	hw       Homework
	out      Deliverer
	log      logx.Logger
	bus      eventbus.Bus
	now      func() time.Time
	resyncMu sync.Mutex

	mu      sync.Mutex
	timeout time.Duration
	skip    SkipPolicy

	// (owner, time, date) already delivered; once and daily may both fire
	firedMu sync.Mutex
	fired   map[string]time.Time
}

func New(timers Timers, fav Favorites, days DayFormatter, hw Homework, out Deliverer, opts Options, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Scheduler{
		timers: timers,
		fav:    fav,
		days:   days,
		hw:     hw,
		out:    out,
		log:    log.With(logx.String("comp", "notify")),
		bus:    bus,
		now:    opts.Now,
		fired:  map[string]time.Time{},
	}
	s.Apply(opts.Timeout, opts.Skip)
	return s
}

// Apply swaps the run timeout and skip policy; nil policy means SkipSunday.
func (s *Scheduler) Apply(timeout time.Duration, skip SkipPolicy) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if skip == nil {
		skip = SkipSunday
	}
	s.mu.Lock()
	s.timeout, s.skip = timeout, skip
	s.mu.Unlock()
}

func (s *Scheduler) settings() (time.Duration, SkipPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout, s.skip
}

// TimerName is the trigger name for one (owner, time) facet.
func TimerName(owner, hhmm string, kind scheduler.Kind) string {
	return namePrefix + owner + "_" + hhmm + "_" + string(kind)
}

func ownerPrefix(owner string) string { return namePrefix + owner + "_" }

// Resync rebuilds every owner's timers from the store and drops timers of
// owners that no longer want any. It returns the number of timers live.
func (s *Scheduler) Resync(ctx context.Context) (int, error) {
	all, err := s.fav.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify: resync: %w", err)
	}
	s.resyncMu.Lock()
	defer s.resyncMu.Unlock()

	desired := map[string]bool{}
	for owner, e := range all {
		for _, name := range s.desiredNames(owner, e) {
			desired[name] = true
		}
	}
	removed := 0
	for _, name := range s.timers.Names(namePrefix) {
		if !desired[name] {
			s.timers.Remove(name)
			removed++
		}
	}
	n := 0
	for owner, e := range all {
		n += s.install(owner, e)
	}
	s.log.Info("timers resynced", logx.Int("owners", len(all)), logx.Int("live", n), logx.Int("cancelled", removed))
	return n, nil
}

// ResyncOwner reconciles one owner's timers after an edit.
func (s *Scheduler) ResyncOwner(ctx context.Context, owner string) (int, error) {
	owner = favorites.NormalizeOwner(owner)
	e, err := s.fav.Get(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("notify: resync %s: %w", owner, err)
	}
	s.resyncMu.Lock()
	defer s.resyncMu.Unlock()

	desired := map[string]bool{}
	for _, name := range s.desiredNames(owner, e) {
		desired[name] = true
	}
	for _, name := range s.timers.Names(ownerPrefix(owner)) {
		if !desired[name] {
			s.timers.Remove(name)
		}
	}
	n := s.install(owner, e)
	s.log.Debug("owner timers resynced", logx.String("owner", owner), logx.Int("live", n))
	return n, nil
}

// desiredNames lists the timers e needs right now.
func (s *Scheduler) desiredNames(owner string, e favorites.Entry) []string {
	if e.Inert() {
		return nil
	}
	now := s.now().In(s.timers.Location())
	var out []string
	for _, hhmm := range e.NotifyTimes {
		out = append(out, TimerName(owner, hhmm, scheduler.KindDaily))
		if at, ok := todayAt(now, hhmm); ok && at.After(now) {
			out = append(out, TimerName(owner, hhmm, scheduler.KindOnce))
		}
	}
	return out
}

// install (re)creates e's timers; re-adding a name replaces the old trigger.
// Call with resyncMu held.
func (s *Scheduler) install(owner string, e favorites.Entry) int {
	if e.Inert() {
		return 0
	}
	timeout, _ := s.settings()
	now := s.now().In(s.timers.Location())
	n := 0
	for _, hhmm := range e.NotifyTimes {
		hhmm := hhmm
		job := func(ctx context.Context) error { return s.Fire(ctx, owner, hhmm) }
		if err := s.timers.AddDaily(TimerName(owner, hhmm, scheduler.KindDaily), hhmm, timeout, job); err != nil {
			s.log.Warn("daily timer rejected", logx.String("owner", owner), logx.String("time", hhmm), logx.Err(err))
			continue
		}
		n++
		at, ok := todayAt(now, hhmm)
		if !ok || !at.After(now) {
			continue
		}
		if err := s.timers.AddOnce(TimerName(owner, hhmm, scheduler.KindOnce), at, timeout, job); err != nil {
			s.log.Warn("one-shot timer rejected", logx.String("owner", owner), logx.String("time", hhmm), logx.Err(err))
			continue
		}
		n++
	}
	return n
}

func todayAt(now time.Time, hhmm string) (time.Time, bool) {
	h, m, err := scheduler.ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, false
	}
	y, mo, d := now.Date()
	return time.Date(y, mo, d, h, m, 0, 0, now.Location()), true
}

// FailureNotice is the inline text sent in place of a favorite's timetable.
func FailureNotice(name string, err error) string {
	return fmt.Sprintf("⚠️ Не удалось получить расписание для %s: %s", name, reason(err))
}

func reason(err error) string {
	switch {
	case errors.Is(err, upstream.ErrUnavailable):
		return "источник временно недоступен"
	case errors.Is(err, context.DeadlineExceeded):
		return "превышено время ожидания"
	default:
		return strings.TrimSpace(err.Error())
	}
}
