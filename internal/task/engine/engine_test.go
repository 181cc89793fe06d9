package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"timetablebot/internal/eventbus"
	logx "timetablebot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) (*Service, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	cfg.Enabled = true
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, bus
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTaskRunsOnceWithoutRetry(t *testing.T) {
	t.Parallel()
	s, bus := startEngine(t, Config{Workers: 1})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	var calls atomic.Int32
	err := s.Enqueue(Task{Name: "boom", Run: func(context.Context) error {
		calls.Add(1)
		return errors.New("upstream down")
	}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, "history", func() bool { return len(s.Snapshot().History) == 1 })
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if h := s.Snapshot().History[0]; h.Error != "upstream down" || h.ID == "" {
		t.Fatalf("history = %+v", h)
	}
	seen := map[string]bool{}
	for len(events) > 0 {
		seen[(<-events).Type] = true
	}
	if !seen["task.started"] || !seen["task.failed"] {
		t.Fatalf("events = %v", seen)
	}
}

func TestOverlapSkip(t *testing.T) {
	t.Parallel()
	s, _ := startEngine(t, Config{Workers: 2})

	release := make(chan struct{})
	started := make(chan struct{})
	err := s.Enqueue(Task{Name: "notify", Key: "owner:42", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started
	err = s.Enqueue(Task{Name: "notify again", Key: "owner:42", Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Enqueue = %v, want ErrOverlapSkip", err)
	}
	err = s.Enqueue(Task{Name: "other", Key: "owner:7", Overlap: OverlapAllow, Run: func(context.Context) error { return nil }})
	if err != nil {
		t.Fatalf("other owner: %v", err)
	}
	close(release)
	waitFor(t, "gate release", func() bool {
		return s.Enqueue(Task{Name: "notify", Key: "owner:42", Run: func(context.Context) error { return nil }}) == nil
	})
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()
	s, _ := startEngine(t, Config{Workers: 1})

	_ = s.Enqueue(Task{Name: "panics", Run: func(context.Context) error { panic("bad") }})
	waitFor(t, "history", func() bool { return len(s.Snapshot().History) == 1 })
	if got := s.Snapshot().History[0].Error; got != "panic: bad" {
		t.Fatalf("Error = %q", got)
	}
	ok := make(chan struct{})
	_ = s.Enqueue(Task{Name: "after", Run: func(context.Context) error { close(ok); return nil }})
	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not survive panic")
	}
}

func TestTimeoutApplied(t *testing.T) {
	t.Parallel()
	s, _ := startEngine(t, Config{Workers: 1, DefaultTimeout: 20 * time.Millisecond})

	_ = s.Enqueue(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	waitFor(t, "history", func() bool { return len(s.Snapshot().History) == 1 })
	if got := s.Snapshot().History[0].Error; got != context.DeadlineExceeded.Error() {
		t.Fatalf("Error = %q", got)
	}
}

func TestQueueFullAndDisabled(t *testing.T) {
	t.Parallel()
	s, _ := startEngine(t, Config{Workers: 1, QueueSize: 1})

	block := make(chan struct{})
	defer close(block)
	run := func(context.Context) error { <-block; return nil }
	started := make(chan struct{})
	_ = s.Enqueue(Task{Name: "a", Overlap: OverlapAllow, Run: func(ctx context.Context) error { close(started); return run(ctx) }})
	<-started
	if err := s.Enqueue(Task{Name: "b", Overlap: OverlapAllow, Run: run}); err != nil {
		t.Fatalf("b: %v", err)
	}
	if err := s.Enqueue(Task{Name: "c", Overlap: OverlapAllow, Run: run}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("c = %v, want ErrQueueFull", err)
	}
	if s.Snapshot().DroppedQueueFull != 1 {
		t.Fatalf("DroppedQueueFull = %d", s.Snapshot().DroppedQueueFull)
	}

	off := New(Config{}, logx.Nop(), nil)
	if err := off.Enqueue(Task{Name: "x", Run: run}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled Enqueue = %v", err)
	}
}
