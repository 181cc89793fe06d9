package notify

import (
	"context"
	"errors"
	"strconv"
	"time"

	"timetablebot/internal/eventbus"
	"timetablebot/internal/favorites"
	"timetablebot/internal/homework"
	"timetablebot/internal/timetable"
	kit "timetablebot/internal/transport"
	logx "timetablebot/pkg/logx"
)

// Delivery is published on the bus once per firing.
type Delivery struct {
	Owner    string    `json:"owner"`
	Time     string    `json:"time"`
	Target   string    `json:"target"`
	Messages int       `json:"messages"`
	Failed   int       `json:"failed"`
	Skipped  string    `json:"skipped,omitempty"`
	At       time.Time `json:"at"`
}

var htmlOpts = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

// Fire delivers owner's favorites for the slot hhmm. It reads the store
// fresh, so edits since the timer was created are honored. A fetch failure
// for one favorite becomes an inline notice and never stops the others.
func (s *Scheduler) Fire(ctx context.Context, owner, hhmm string) error {
	loc := s.timers.Location()
	now := s.now().In(loc)
	today := timetable.Midnight(now)

	if !s.claim(owner, hhmm, today) {
		s.log.Debug("already delivered today", logx.String("owner", owner), logx.String("time", hhmm))
		return nil
	}

	e, err := s.fav.Get(ctx, owner)
	if err != nil {
		s.release(owner, hhmm, today)
		return err
	}
	if e.Inert() || !e.HasTime(hhmm) {
		// stale trigger; the store no longer asks for it
		s.log.Info("stale timer dropped", logx.String("owner", owner), logx.String("time", hhmm))
		if _, err := s.ResyncOwner(ctx, owner); err != nil {
			s.log.Warn("resync after stale timer failed", logx.String("owner", owner), logx.Err(err))
		}
		return nil
	}

	target := today.AddDate(0, 0, e.Day().Offset())
	ev := Delivery{Owner: owner, Time: hhmm, Target: target.Format("2006-01-02"), At: now}
	_, skip := s.settings()
	if skip.Skip(target) {
		ev.Skipped = skip.String()
		s.log.Debug("delivery skipped", logx.String("owner", owner), logx.String("target", ev.Target), logx.String("policy", ev.Skipped))
		s.publish(eventbus.NotifySkipped, ev)
		return nil
	}

	chatID, err := strconv.ParseInt(owner, 10, 64)
	if err != nil {
		return errors.New("notify: owner is not a chat id: " + owner)
	}
	to := kit.ChatTarget{ChatID: chatID}

	var sendErrs []error
	for _, fav := range e.Favorites() {
		text, err := s.days.FormatDay(ctx, fav, target)
		if err != nil {
			ev.Failed++
			s.log.Warn("timetable fetch failed", logx.String("owner", owner), logx.String("entity", fav.ID), logx.Err(err))
			text = FailureNotice(fav.Label(), err)
		}
		if err := s.out.Deliver(ctx, to, text, htmlOpts); err != nil {
			sendErrs = append(sendErrs, err)
			continue
		}
		ev.Messages++
		if fav.Kind == timetable.EntityGroup {
			ev.Messages += s.sendHomework(ctx, to, fav, target)
		}
	}
	s.publish(eventbus.NotifyDelivered, ev)
	s.log.Info("notification delivered",
		logx.String("owner", owner),
		logx.String("time", hhmm),
		logx.String("target", ev.Target),
		logx.Int("messages", ev.Messages),
		logx.Int("failed", ev.Failed),
	)
	return errors.Join(sendErrs...)
}

// sendHomework is best-effort: errors are logged, never surfaced.
func (s *Scheduler) sendHomework(ctx context.Context, to kit.ChatTarget, fav timetable.Entity, date time.Time) int {
	if s.hw == nil {
		return 0
	}
	entries, err := s.hw.ForDate(ctx, fav.Label(), date)
	if err != nil {
		s.log.Warn("homework lookup failed", logx.String("group", fav.Label()), logx.Err(err))
		return 0
	}
	text := homework.FormatDue(fav.Label(), date, entries)
	if text == "" {
		return 0
	}
	if err := s.out.Deliver(ctx, to, text, htmlOpts); err != nil {
		s.log.Warn("homework send failed", logx.String("group", fav.Label()), logx.Err(err))
		return 0
	}
	return 1
}

func firedKey(owner, hhmm string, day time.Time) string {
	return owner + "|" + hhmm + "|" + day.Format("2006-01-02")
}

// claim marks (owner, hhmm, day) delivered; false if it already was.
func (s *Scheduler) claim(owner, hhmm string, day time.Time) bool {
	key := firedKey(owner, hhmm, day)
	s.firedMu.Lock()
	defer s.firedMu.Unlock()
	if _, ok := s.fired[key]; ok {
		return false
	}
	for k, d := range s.fired {
		if day.Sub(d) > 48*time.Hour {
			delete(s.fired, k)
		}
	}
	s.fired[key] = day
	return true
}

func (s *Scheduler) release(owner, hhmm string, day time.Time) {
	s.firedMu.Lock()
	delete(s.fired, firedKey(owner, hhmm, day))
	s.firedMu.Unlock()
}

func (s *Scheduler) publish(typ string, d Delivery) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: d.At, Data: d})
	}
}

var _ Favorites = (*favorites.Store)(nil)
