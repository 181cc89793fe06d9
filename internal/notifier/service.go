// Package notifier is the outbox every bot-initiated message goes through:
// a shared token bucket, a per-send timeout, short-window duplicate
// suppression and a small history for /status.
//
// Delivery is synchronous and attempted once. Callers that need ordering
// (a timetable followed by its homework) get it by calling in order.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"timetablebot/internal/eventbus"
	kit "timetablebot/internal/transport"
	logx "timetablebot/pkg/logx"
)

// ErrDuplicate is returned when the same text went to the same chat within
// the dedup window.
var ErrDuplicate = errors.New("notifier: duplicate suppressed")

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	sender  kit.Sender
	log     logx.Logger
	bus     eventbus.Bus

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log.With(logx.String("comp", "notifier")), bus: bus, dedup: map[string]time.Time{}}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}
	s.mu.Lock()
	s.cfg = cfg
	// burst = rate per sec so short spikes don't block too hard
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// SetSender swaps the transport; used when the adapter is built after the notifier.
func (s *Service) SetSender(sender kit.Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

// Deliver sends text to the chat once, waiting for a rate-limit token first.
func (s *Service) Deliver(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	if text == "" {
		return nil
	}
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		return errors.New("notifier: no transport")
	}

	key := dedupKey(to, text)
	if cfg.DedupWindow > 0 && !s.dedupAllow(key, cfg.DedupWindow) {
		s.publish(eventbus.OutboxDeduped, Event{ChatID: to.ChatID, Key: key, At: time.Now()})
		return ErrDuplicate
	}

	if err := lim.Wait(ctx); err != nil {
		s.forget(key)
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	_, err := sender.SendText(callCtx, to, text, opt)
	cancel()

	now := time.Now()
	item := HistoryItem{At: now, ChatID: to.ChatID, Text: text}
	if err != nil {
		s.forget(key)
		item.Error = err.Error()
		s.log.Warn("send failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
		s.publish(eventbus.OutboxFailed, Event{ChatID: to.ChatID, Key: key, At: now, Error: item.Error})
	} else {
		s.publish(eventbus.OutboxSent, Event{ChatID: to.ChatID, Key: key, At: now})
	}
	s.appendHistory(item, cfg.HistorySize)
	if err != nil {
		return fmt.Errorf("notifier: deliver to %d: %w", to.ChatID, err)
	}
	return nil
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem, size int) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, ev Event) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
	}
}

func dedupKey(to kit.ChatTarget, text string) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d:%d|", to.ChatID, to.ThreadID)
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum64())
}

const dedupMaxEntries = 4096

func (s *Service) dedupAllow(key string, window time.Duration) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)
	if len(s.dedup) > dedupMaxEntries {
		for k, until := range s.dedup {
			if !now.Before(until) {
				delete(s.dedup, k)
			}
		}
	}
	return true
}

// forget lets a failed send be attempted again by a later caller.
func (s *Service) forget(key string) {
	s.dmu.Lock()
	delete(s.dedup, key)
	s.dmu.Unlock()
}
