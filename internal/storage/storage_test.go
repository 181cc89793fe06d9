package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	logx "timetablebot/pkg/logx"
)

func openBoth(t *testing.T) map[string]Repository {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Repository{}
	for _, drv := range []string{"file", "sqlite"} {
		r, err := Open(Config{Driver: drv, Path: filepath.Join(dir, drv, "store.db")}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s): %v", drv, err)
		}
		t.Cleanup(func() { _ = r.Close() })
		out[drv] = r
	}
	return out
}

func TestRepositoryUpdateAndSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, r := range openBoth(t) {
		err := r.Update(ctx, func(m Records) error {
			m["a"] = json.RawMessage(`{"n":1}`)
			m["b"] = json.RawMessage(`"x"`)
			return nil
		})
		if err != nil {
			t.Fatalf("%s: Update: %v", name, err)
		}
		err = r.Update(ctx, func(m Records) error {
			delete(m, "b")
			m["a"] = json.RawMessage(`{"n":2}`)
			return nil
		})
		if err != nil {
			t.Fatalf("%s: Update: %v", name, err)
		}
		snap, err := r.Snapshot(ctx)
		if err != nil {
			t.Fatalf("%s: Snapshot: %v", name, err)
		}
		if len(snap) != 1 || string(snap["a"]) != `{"n":2}` {
			t.Fatalf("%s: snapshot = %v, want only a={\"n\":2}", name, snap)
		}
	}
}

func TestRepositoryUpdateErrorDiscards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	boom := errors.New("boom")

	for name, r := range openBoth(t) {
		err := r.Update(ctx, func(m Records) error {
			m["k"] = json.RawMessage(`1`)
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("%s: Update err = %v, want boom", name, err)
		}
		snap, _ := r.Snapshot(ctx)
		if len(snap) != 0 {
			t.Fatalf("%s: snapshot after failed update = %v, want empty", name, snap)
		}
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, r := range openBoth(t) {
		_ = r.Update(ctx, func(m Records) error { m["k"] = json.RawMessage(`1`); return nil })
		snap, _ := r.Snapshot(ctx)
		snap["k"] = json.RawMessage(`2`)
		again, _ := r.Snapshot(ctx)
		if string(again["k"]) != "1" {
			t.Fatalf("%s: snapshot mutation leaked: %s", name, again["k"])
		}
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, r := range openBoth(t) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = r.Update(ctx, func(m Records) error {
					var n int
					_ = json.Unmarshal(m["n"], &n)
					b, _ := json.Marshal(n + 1)
					m["n"] = b
					return nil
				})
			}()
		}
		wg.Wait()
		snap, _ := r.Snapshot(ctx)
		if string(snap["n"]) != "20" {
			t.Fatalf("%s: n = %s, want 20", name, snap["n"])
		}
	}
}

func TestFileRepoPersistsAndReopens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "favorites.json")

	r, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = r.Update(ctx, func(m Records) error { m["42"] = json.RawMessage(`{"groups":[]}`); return nil })
	_ = r.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "\n  \"42\"") {
		t.Fatalf("file is not indented JSON: %s", b)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}

	r2, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()
	snap, _ := r2.Snapshot(ctx)
	if _, ok := snap["42"]; !ok {
		t.Fatalf("reopened snapshot = %v, want key 42", snap)
	}
}

func TestFileRepoCorruptFailsOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "favorites.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open on corrupt file: %v", err)
	}
	defer r.Close()
	snap, err := r.Snapshot(ctx)
	if err != nil || len(snap) != 0 {
		t.Fatalf("Snapshot = %v, %v, want empty", snap, err)
	}
	matches, _ := filepath.Glob(path + ".corrupt-*")
	if len(matches) != 1 {
		t.Fatalf("corrupt backups = %v, want one", matches)
	}
}

func TestClosedRepository(t *testing.T) {
	t.Parallel()

	r, err := Open(Config{Path: filepath.Join(t.TempDir(), "x.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = r.Close()
	if _, err := r.Snapshot(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Snapshot after Close = %v, want ErrClosed", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "etcd", Path: "x"}, logx.Nop()); err == nil {
		t.Fatalf("Open(etcd) = nil error")
	}
}
