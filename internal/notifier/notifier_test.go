package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timetablebot/internal/eventbus"
	kit "timetablebot/internal/transport"
	logx "timetablebot/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func TestDeliverDedupsWithinWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := &fakeSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	s := New(Config{DedupWindow: time.Minute}, f, logx.Nop(), bus)

	to := kit.ChatTarget{ChatID: 42}
	if err := s.Deliver(ctx, to, "hello", nil); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := s.Deliver(ctx, to, "hello", nil); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second Deliver = %v, want ErrDuplicate", err)
	}
	if err := s.Deliver(ctx, kit.ChatTarget{ChatID: 7}, "hello", nil); err != nil {
		t.Fatalf("other chat: %v", err)
	}
	if len(f.sent) != 2 {
		t.Fatalf("sent = %v", f.sent)
	}
	if e := <-events; e.Type != "outbox.sent" {
		t.Fatalf("first event = %s", e.Type)
	}
	if e := <-events; e.Type != "outbox.deduped" {
		t.Fatalf("second event = %s", e.Type)
	}
}

func TestDeliverFailureIsNotRetriedButNotSuppressed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := &fakeSender{err: errors.New("blocked by user")}
	s := New(Config{DedupWindow: time.Minute}, f, logx.Nop(), nil)

	to := kit.ChatTarget{ChatID: 42}
	if err := s.Deliver(ctx, to, "x", nil); err == nil {
		t.Fatalf("Deliver succeeded against failing sender")
	}
	f.mu.Lock()
	f.err = nil
	f.mu.Unlock()
	if err := s.Deliver(ctx, to, "x", nil); err != nil {
		t.Fatalf("Deliver after failure: %v", err)
	}
	h := s.Snapshot()
	if len(h) != 2 || h[0].Error == "" || h[1].Error != "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestDeliverHonorsContext(t *testing.T) {
	t.Parallel()
	f := &fakeSender{}
	s := New(Config{RatePerSec: 1}, f, logx.Nop(), nil)
	ctx := context.Background()
	_ = s.Deliver(ctx, kit.ChatTarget{ChatID: 1}, "a", nil)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Deliver(cctx, kit.ChatTarget{ChatID: 1}, "b", nil); err == nil {
		t.Fatalf("Deliver with canceled ctx = nil")
	}
	if err := s.Deliver(ctx, kit.ChatTarget{ChatID: 1}, "", nil); err != nil {
		t.Fatalf("empty text = %v", err)
	}
}
