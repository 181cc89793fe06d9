package notify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"timetablebot/internal/favorites"
	"timetablebot/internal/homework"
	"timetablebot/internal/storage"
	"timetablebot/internal/task/scheduler"
	"timetablebot/internal/timetable"
	kit "timetablebot/internal/transport"
	"timetablebot/internal/upstream"
	logx "timetablebot/pkg/logx"
)

var msk = mustLoc("Europe/Moscow")

func mustLoc(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type timer struct {
	kind scheduler.Kind
	hhmm string
	at   time.Time
	job  scheduler.Job
}

type fakeTimers struct {
	mu sync.Mutex
	m  map[string]timer
}

func (f *fakeTimers) AddDaily(name, hhmm string, _ time.Duration, job scheduler.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[name] = timer{kind: scheduler.KindDaily, hhmm: hhmm, job: job}
	return nil
}

func (f *fakeTimers) AddOnce(name string, at time.Time, _ time.Duration, job scheduler.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[name] = timer{kind: scheduler.KindOnce, at: at, job: job}
	return nil
}

func (f *fakeTimers) Remove(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.m[name]
	delete(f.m, name)
	return ok
}

func (f *fakeTimers) Names(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (f *fakeTimers) Location() *time.Location { return msk }

func (f *fakeTimers) get(name string) (timer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.m[name]
	return t, ok
}

type fakeDays struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeDays) FormatDay(_ context.Context, e timetable.Entity, date time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, e.ID+"@"+date.Format("2006-01-02"))
	if f.err != nil {
		return "", f.err
	}
	return "timetable " + e.Label() + " " + date.Format("02.01"), nil
}

type fakeHomework struct {
	entries []homework.Entry
	err     error
}

func (f fakeHomework) ForDate(context.Context, string, time.Time) ([]homework.Entry, error) {
	return f.entries, f.err
}

type fakeOut struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeOut) Deliver(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fmt.Sprintf("%d:%s", to.ChatID, text))
	return nil
}

type fixture struct {
	fav    *favorites.Store
	timers *fakeTimers
	days   *fakeDays
	out    *fakeOut
	sched  *Scheduler
	now    *time.Time
}

func newFixture(t *testing.T, now time.Time, hw Homework) *fixture {
	t.Helper()
	repo, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "favorites.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	fx := &fixture{
		timers: &fakeTimers{m: map[string]timer{}},
		days:   &fakeDays{},
		out:    &fakeOut{},
		now:    &now,
	}
	clock := func() time.Time { return *fx.now }
	fx.fav = favorites.New(repo, favorites.Options{DefaultTime: "19:00", DefaultDay: favorites.Tomorrow, Now: clock}, logx.Nop())
	if hw == nil {
		hw = fakeHomework{}
	}
	fx.sched = New(fx.timers, fx.fav, fx.days, hw, fx.out, Options{Now: clock}, logx.Nop(), nil)
	return fx
}

func (fx *fixture) fire(t *testing.T, name string) {
	t.Helper()
	tm, ok := fx.timers.get(name)
	if !ok {
		t.Fatalf("timer %s not registered; have %v", name, fx.timers.Names(""))
	}
	if err := tm.job(context.Background()); err != nil {
		t.Fatalf("%s: %v", name, err)
	}
}

func TestResyncOwnerReconciles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t, time.Date(2025, 9, 1, 15, 0, 0, 0, msk), nil)

	if _, _, err := fx.fav.Add(ctx, "42", timetable.EntityGroup, "G1", "БИ25-1"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	n, err := fx.sched.ResyncOwner(ctx, "42")
	if err != nil || n != 2 {
		t.Fatalf("ResyncOwner = %d, %v; want 2", n, err)
	}
	want := []string{"notify_42_19:00_daily", "notify_42_19:00_once"}
	if got := fx.timers.Names("notify_42_"); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("timers = %v, want %v", got, want)
	}
	if once, _ := fx.timers.get("notify_42_19:00_once"); !once.at.Equal(time.Date(2025, 9, 1, 19, 0, 0, 0, msk)) {
		t.Fatalf("once at = %v", once.at)
	}

	// repeated resync never duplicates
	_, _ = fx.sched.ResyncOwner(ctx, "42")
	if got := fx.timers.Names("notify_42_"); len(got) != 2 {
		t.Fatalf("after second resync timers = %v", got)
	}

	if _, _, err := fx.fav.ToggleNotifyTime(ctx, "42", "19:00"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	n, _ = fx.sched.ResyncOwner(ctx, "42")
	if got := fx.timers.Names("notify_42_"); n != 0 || len(got) != 0 {
		t.Fatalf("after removing 19:00 timers = %v", got)
	}
}

func TestResyncAfterTimePassedCreatesOnlyDaily(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t, time.Date(2025, 9, 1, 20, 0, 0, 0, msk), nil)
	_, _, _ = fx.fav.Add(ctx, "42", timetable.EntityGroup, "G1", "БИ25-1")

	if _, err := fx.sched.Resync(ctx); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if got := fx.timers.Names(""); len(got) != 1 || got[0] != "notify_42_19:00_daily" {
		t.Fatalf("timers = %v", got)
	}
}

func TestResyncDropsInertAndVanishedOwners(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t, time.Date(2025, 9, 1, 9, 0, 0, 0, msk), nil)

	// timers left from a previous run for an owner the store no longer has
	_ = fx.timers.AddDaily("notify_99_08:00_daily", "08:00", 0, nil)
	// an owner with times but no favorites stays inert
	_, _, _ = fx.fav.ToggleNotifyTime(ctx, "7", "08:00")
	_, _, _ = fx.fav.Add(ctx, "42", timetable.EntityInstructor, "P1", "Иванов И.И.")

	n, err := fx.sched.Resync(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Resync = %d, %v", n, err)
	}
	if got := fx.timers.Names(""); strings.Join(got, ",") != "notify_42_19:00_daily,notify_42_19:00_once" {
		t.Fatalf("timers = %v", got)
	}
}

func TestEndToEndDelivery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t, time.Date(2025, 9, 1, 15, 0, 0, 0, msk), nil)

	_, _, _ = fx.fav.Add(ctx, "42", timetable.EntityGroup, "G1", "БИ25-1")
	_, _ = fx.sched.ResyncOwner(ctx, "42")

	*fx.now = time.Date(2025, 9, 1, 19, 0, 0, 0, msk)
	fx.fire(t, "notify_42_19:00_once")
	if len(fx.days.calls) != 1 || fx.days.calls[0] != "G1@2025-09-02" {
		t.Fatalf("fetches = %v, want tomorrow for G1", fx.days.calls)
	}
	if len(fx.out.sent) != 1 || fx.out.sent[0] != "42:timetable БИ25-1 02.09" {
		t.Fatalf("sent = %v", fx.out.sent)
	}

	// the daily facet firing at the same minute does not deliver twice
	fx.fire(t, "notify_42_19:00_daily")
	if len(fx.out.sent) != 1 {
		t.Fatalf("sent after daily = %v", fx.out.sent)
	}

	// next day the daily timer delivers again
	*fx.now = time.Date(2025, 9, 2, 19, 0, 0, 0, msk)
	fx.fire(t, "notify_42_19:00_daily")
	if len(fx.out.sent) != 2 {
		t.Fatalf("sent next day = %v", fx.out.sent)
	}
}

func TestFetchFailureSendsOneNotice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t, time.Date(2025, 9, 1, 15, 0, 0, 0, msk), nil)
	fx.days.err = fmt.Errorf("%w: GET schedule: connection refused", upstream.ErrUnavailable)

	_, _, _ = fx.fav.Add(ctx, "42", timetable.EntityGroup, "G1", "БИ25-1")
	_, _, _ = fx.fav.Add(ctx, "42", timetable.EntityInstructor, "P1", "Иванов И.И.")
	_, _ = fx.sched.ResyncOwner(ctx, "42")
	*fx.now = time.Date(2025, 9, 1, 19, 0, 0, 0, msk)
	fx.fire(t, "notify_42_19:00_once")

	want := []string{
		"42:⚠️ Не удалось получить расписание для БИ25-1: источник временно недоступен",
		"42:⚠️ Не удалось получить расписание для Иванов И.И.: источник временно недоступен",
	}
	if strings.Join(fx.out.sent, "\n") != strings.Join(want, "\n") {
		t.Fatalf("sent =\n%s\nwant\n%s", strings.Join(fx.out.sent, "\n"), strings.Join(want, "\n"))
	}
}

func TestSkipPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// Saturday evening; tomorrow is Sunday
	sat := time.Date(2025, 9, 6, 19, 0, 0, 0, msk)
	fx := newFixture(t, sat, nil)
	_, _, _ = fx.fav.Add(ctx, "42", timetable.EntityGroup, "G1", "БИ25-1")
	_, _ = fx.sched.ResyncOwner(ctx, "42")

	fx.fire(t, "notify_42_19:00_daily")
	if len(fx.out.sent) != 0 || len(fx.days.calls) != 0 {
		t.Fatalf("Sunday target delivered: %v", fx.out.sent)
	}

	// same owner asking for today (Saturday) is not skipped
	_, _ = fx.fav.SetDeliveryDay(ctx, "42", favorites.Today)
	*fx.now = sat.Add(time.Hour)
	fx.sched.release("42", "19:00", timetable.Midnight(sat))
	fx.fire(t, "notify_42_19:00_daily")
	if len(fx.out.sent) != 1 {
		t.Fatalf("Saturday target not delivered: %v", fx.out.sent)
	}

	fx2 := newFixture(t, sat, nil)
	fx2.sched.Apply(0, NeverSkip{})
	_, _, _ = fx2.fav.Add(ctx, "42", timetable.EntityGroup, "G1", "БИ25-1")
	_, _ = fx2.sched.ResyncOwner(ctx, "42")
	fx2.fire(t, "notify_42_19:00_daily")
	if len(fx2.out.sent) != 1 {
		t.Fatalf("NeverSkip did not deliver: %v", fx2.out.sent)
	}
}

func TestHomeworkIsBestEffort(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 9, 1, 19, 0, 0, 0, msk)

	hw := fakeHomework{entries: []homework.Entry{{Subject: "Математика", Deadline: "02.09.2025", Task: "№1", Attachment: "-"}}}
	fx := newFixture(t, now, hw)
	_, _, _ = fx.fav.Add(ctx, "42", timetable.EntityGroup, "G1", "БИ25-1")
	_, _ = fx.sched.ResyncOwner(ctx, "42")
	fx.fire(t, "notify_42_19:00_daily")
	if len(fx.out.sent) != 2 || !strings.Contains(fx.out.sent[1], "Математика") {
		t.Fatalf("sent = %v, want timetable then homework", fx.out.sent)
	}

	broken := newFixture(t, now, fakeHomework{err: errors.New("disk on fire")})
	_, _, _ = broken.fav.Add(ctx, "42", timetable.EntityGroup, "G1", "БИ25-1")
	_, _ = broken.sched.ResyncOwner(ctx, "42")
	broken.fire(t, "notify_42_19:00_daily")
	if len(broken.out.sent) != 1 {
		t.Fatalf("homework failure changed delivery: %v", broken.out.sent)
	}
}

func TestFireReadsFavoritesFresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t, time.Date(2025, 9, 1, 15, 0, 0, 0, msk), nil)
	_, _, _ = fx.fav.Add(ctx, "42", timetable.EntityGroup, "G1", "БИ25-1")
	_, _ = fx.sched.ResyncOwner(ctx, "42")

	// edits after scheduling are seen at fire time
	_, _, _ = fx.fav.Add(ctx, "42", timetable.EntityGroup, "G2", "БИ25-2")
	_, _, _ = fx.fav.Remove(ctx, "42", timetable.EntityGroup, "G1")
	*fx.now = time.Date(2025, 9, 1, 19, 0, 0, 0, msk)
	fx.fire(t, "notify_42_19:00_once")
	if len(fx.days.calls) != 1 || !strings.HasPrefix(fx.days.calls[0], "G2@") {
		t.Fatalf("fetches = %v, want only G2", fx.days.calls)
	}

	// a timer whose owner went inert delivers nothing and cleans itself up
	_, _, _ = fx.fav.Remove(ctx, "42", timetable.EntityGroup, "G2")
	*fx.now = time.Date(2025, 9, 2, 19, 0, 0, 0, msk)
	fx.fire(t, "notify_42_19:00_daily")
	if len(fx.out.sent) != 1 {
		t.Fatalf("inert owner got %v", fx.out.sent)
	}
	if got := fx.timers.Names("notify_42_"); len(got) != 0 {
		t.Fatalf("stale timers left: %v", got)
	}
}

func TestTimerName(t *testing.T) {
	t.Parallel()
	if got := TimerName("42", "19:00", scheduler.KindOnce); got != "notify_42_19:00_once" {
		t.Fatalf("TimerName = %q", got)
	}
	if SkipSunday.Skip(time.Date(2025, 9, 7, 0, 0, 0, 0, msk)) != true {
		t.Fatalf("2025-09-07 is a Sunday")
	}
}
