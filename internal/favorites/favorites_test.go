package favorites

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"timetablebot/internal/storage"
	"timetablebot/internal/timetable"
	logx "timetablebot/pkg/logx"
)

type countingRepo struct {
	storage.Repository
	updates atomic.Int32
}

func (c *countingRepo) Update(ctx context.Context, fn func(storage.Records) error) error {
	c.updates.Add(1)
	return c.Repository.Update(ctx, fn)
}

func newStore(t *testing.T, seed map[string]string) (*Store, *countingRepo) {
	t.Helper()
	repo, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "favorites.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	if len(seed) > 0 {
		err := repo.Update(context.Background(), func(m storage.Records) error {
			for k, v := range seed {
				m[k] = json.RawMessage(v)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	cr := &countingRepo{Repository: repo}
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	s := New(cr, Options{DefaultTime: "19:00", DefaultDay: Tomorrow, Now: func() time.Time { return now }}, logx.Nop())
	return s, cr
}

func TestAddAppliesDefaultsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newStore(t, nil)

	e, added, err := s.Add(ctx, "42", timetable.EntityGroup, "G1", "БИ25-1")
	if err != nil || !added {
		t.Fatalf("Add = %v, %v; want added", added, err)
	}
	if e.Day() != Tomorrow || len(e.NotifyTimes) != 1 || e.NotifyTimes[0] != "19:00" || !e.DefaultsApplied {
		t.Fatalf("defaults not applied: %+v", e)
	}

	// user turns notifications off, then adds another favorite
	if _, err := s.ClearNotifyTimes(ctx, "42"); err != nil {
		t.Fatalf("ClearNotifyTimes: %v", err)
	}
	e, _, err = s.Add(ctx, "42", timetable.EntityInstructor, "P7", "Иванов И.И.")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(e.NotifyTimes) != 0 {
		t.Fatalf("NotifyTimes = %v, want none after explicit clear", e.NotifyTimes)
	}
	if got := e.Favorites(); len(got) != 2 || got[0].ID != "G1" || got[1].Kind != timetable.EntityInstructor {
		t.Fatalf("Favorites = %+v", got)
	}
}

func TestAddIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newStore(t, nil)

	for i := 0; i < 3; i++ {
		if _, _, err := s.Add(ctx, "42", timetable.EntityGroup, "G1", "БИ25-1"); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	e, err := s.Get(ctx, "42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(e.Groups) != 1 {
		t.Fatalf("Groups = %v, want one", e.Groups)
	}
	_, added, _ := s.Add(ctx, "42", timetable.EntityGroup, "G1", "x")
	if added {
		t.Fatalf("second Add reported added")
	}
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, repo := newStore(t, nil)

	if _, _, err := s.Add(ctx, "42", timetable.EntityGroup, "G1", "БИ25-1"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, removed, err := s.Remove(ctx, "42", timetable.EntityGroup, "nope")
	if err != nil || removed {
		t.Fatalf("Remove(nope) = %v, %v; want false, nil", removed, err)
	}
	e, removed, err := s.Remove(ctx, "42", timetable.EntityGroup, "G1")
	if err != nil || !removed {
		t.Fatalf("Remove(G1) = %v, %v", removed, err)
	}
	if !e.Inert() {
		t.Fatalf("entry should be inert: %+v", e)
	}
	if repo.updates.Load() != 3 {
		t.Fatalf("updates = %d, want 3", repo.updates.Load())
	}
}

func TestGetUpgradesLegacyOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, repo := newStore(t, map[string]string{
		"42": `{"group":{"id":123,"name":"БИ25-1"},"day":"today","notify_times":true}`,
	})

	e, err := s.Get(ctx, "42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(e.Groups) != 1 || e.Groups[0].ID != "123" || e.Groups[0].Name != "БИ25-1" {
		t.Fatalf("Groups = %+v", e.Groups)
	}
	if e.Day() != Today || len(e.NotifyTimes) != 1 || e.NotifyTimes[0] != "19:00" {
		t.Fatalf("prefs = %s %v", e.Day(), e.NotifyTimes)
	}
	if repo.updates.Load() != 1 {
		t.Fatalf("updates after first Get = %d, want 1", repo.updates.Load())
	}
	if _, err := s.Get(ctx, "42"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if repo.updates.Load() != 1 {
		t.Fatalf("second Get wrote again")
	}
}

func TestLegacyGroupWithoutNotifyGetsDefaultTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newStore(t, map[string]string{
		"1": `{"group":"G1","group_name":"БИ25-1"}`,
		"2": `{"group":"G2","notify":false}`,
		"3": `{"group":"G3","notify_times":[]}`,
		"4": `{"group_id":4,"notify_times":null}`,
	})

	tests := []struct {
		owner string
		want  int
	}{
		{"1", 1},
		{"2", 0},
		{"3", 0},
		{"4", 1},
	}
	for _, tc := range tests {
		e, err := s.Get(ctx, tc.owner)
		if err != nil {
			t.Fatalf("Get(%s): %v", tc.owner, err)
		}
		if len(e.NotifyTimes) != tc.want || !e.DefaultsApplied {
			t.Fatalf("Get(%s) = %+v, want %d notify times", tc.owner, e, tc.want)
		}
		if tc.want == 1 && e.NotifyTimes[0] != "19:00" {
			t.Fatalf("Get(%s) NotifyTimes = %v, want [19:00]", tc.owner, e.NotifyTimes)
		}
	}
}

func TestSetDefaultsWhileAdding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newStore(t, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				s.SetDefaults("08:00", Today)
			} else {
				s.SetDefaults("19:00", Tomorrow)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, _, err := s.Add(ctx, fmt.Sprint(100+i), timetable.EntityGroup, "G1", "A"); err != nil {
				t.Errorf("Add: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	s.SetDefaults(" 07:05 ", Today)
	s.SetDefaults("bad", "someday")
	if tm, day := s.Defaults(); tm != "07:05" || day != Today {
		t.Fatalf("Defaults = %s %s, want 07:05 today", tm, day)
	}
	e, _, err := s.Add(ctx, "999", timetable.EntityGroup, "G1", "A")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if e.Day() != Today || len(e.NotifyTimes) != 1 || e.NotifyTimes[0] != "07:05" {
		t.Fatalf("entry = %+v, want new defaults", e)
	}
}

func TestGetMergesOwnerAliases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newStore(t, map[string]string{
		"42":   `{"groups":[{"id":"G1","name":"A"}],"instructors":[],"delivery_day":"tomorrow","notify_times":["19:00"],"prefs_updated_at":"2025-01-01T00:00:00Z"}`,
		"u:42": `{"groups":[{"id":"G2","name":"B"},{"id":"G1","name":"A"}],"instructors":[],"delivery_day":"today","notify_times":["07:00"],"prefs_updated_at":"2025-06-01T00:00:00Z"}`,
	})

	e, err := s.Get(ctx, "u:42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(e.Groups) != 2 || e.Groups[0].ID != "G1" || e.Groups[1].ID != "G2" {
		t.Fatalf("Groups = %+v", e.Groups)
	}
	if e.Day() != Today || len(e.NotifyTimes) != 1 || e.NotifyTimes[0] != "07:00" {
		t.Fatalf("newest prefs not kept: %s %v", e.Day(), e.NotifyTimes)
	}
	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("All = %v, want one owner", all)
	}
}

func TestToggleNotifyTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newStore(t, nil)

	_, on, err := s.ToggleNotifyTime(ctx, "42", "7:30")
	if err != nil || !on {
		t.Fatalf("toggle on = %v, %v", on, err)
	}
	e, on, err := s.ToggleNotifyTime(ctx, "42", "06:00")
	if err != nil || !on {
		t.Fatalf("toggle on = %v, %v", on, err)
	}
	if len(e.NotifyTimes) != 2 || e.NotifyTimes[0] != "06:00" || e.NotifyTimes[1] != "07:30" {
		t.Fatalf("NotifyTimes = %v", e.NotifyTimes)
	}
	e, on, _ = s.ToggleNotifyTime(ctx, "42", "07:30")
	if on || len(e.NotifyTimes) != 1 {
		t.Fatalf("toggle off = %v, %v", on, e.NotifyTimes)
	}
	if _, _, err := s.ToggleNotifyTime(ctx, "42", "25:00"); err == nil {
		t.Fatalf("bad time accepted")
	}
	if e.PrefsUpdatedAt.IsZero() {
		t.Fatalf("PrefsUpdatedAt not set")
	}
}

func TestSetDeliveryDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newStore(t, nil)

	e, err := s.SetDeliveryDay(ctx, "42", Today)
	if err != nil || e.Day() != Today {
		t.Fatalf("SetDeliveryDay = %v, %v", e.Day(), err)
	}
	if _, err := s.SetDeliveryDay(ctx, "42", "someday"); err == nil {
		t.Fatalf("unknown day accepted")
	}
}

func TestCorruptEntryFailsOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newStore(t, map[string]string{"42": `[1,2,3]`})

	e, err := s.Get(ctx, "42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !e.Inert() {
		t.Fatalf("corrupt entry = %+v, want empty", e)
	}
	if _, _, err := s.Add(ctx, "42", timetable.EntityGroup, "G1", "A"); err != nil {
		t.Fatalf("Add over corrupt entry: %v", err)
	}
}

func TestMigrate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newStore(t, map[string]string{
		"user:7": `{"group_id":5,"group_name":"X","notify":true}`,
		"8":      `{"groups":[],"instructors":[],"notify_times":[]}`,
	})

	n, err := s.Migrate(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Migrate = %d, %v; want 1", n, err)
	}
	n, _ = s.Migrate(ctx)
	if n != 0 {
		t.Fatalf("second Migrate rewrote %d", n)
	}
	e, _ := s.Get(ctx, "7")
	if len(e.Groups) != 1 || e.Groups[0].Name != "X" || len(e.NotifyTimes) != 1 || !e.DefaultsApplied {
		t.Fatalf("migrated = %+v", e)
	}
}

func TestNormalizeOwner(t *testing.T) {
	t.Parallel()
	cases := map[string]string{"u:42": "42", "user:42": "42", " 42 ": "42", "c:-100": "-100", "u:": "u:"}
	for in, want := range cases {
		if got := NormalizeOwner(in); got != want {
			t.Fatalf("NormalizeOwner(%q) = %q, want %q", in, got, want)
		}
	}
}
