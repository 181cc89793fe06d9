package homework

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"timetablebot/internal/storage"
	logx "timetablebot/pkg/logx"
)

func newStore(t *testing.T) (*Store, storage.Repository) {
	t.Helper()
	repo, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "hw.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	s := New(repo, logx.Nop())
	n := 0
	s.now = func() time.Time {
		n++
		return time.Date(2025, 9, 1, 10, n, 0, 0, time.UTC)
	}
	return s, repo
}

func TestAddValidates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newStore(t)

	cases := []struct {
		name string
		in   Entry
		want error
	}{
		{"no group", Entry{Subject: "Математика", Task: "№1", Deadline: "25.09.2025"}, ErrMissingField},
		{"bad deadline", Entry{Group: "БИ25-1", Subject: "Математика", Task: "№1", Deadline: "завтра"}, ErrBadDeadline},
		{"nonexistent date", Entry{Group: "БИ25-1", Subject: "Математика", Task: "№1", Deadline: "31.02.2025"}, ErrBadDeadline},
	}
	for _, tc := range cases {
		if _, err := s.Add(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: Add err = %v, want %v", tc.name, err, tc.want)
		}
	}

	e, err := s.Add(ctx, Entry{Group: " БИ25-1 ", Subject: "Математика", Task: "№1", Deadline: "5.9.2025", Attachment: "Нет"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if e.ID == "" || e.Group != "БИ25-1" || e.Attachment != NoAttachment || e.Deadline != "05.09.2025" {
		t.Fatalf("Add = %+v", e)
	}
}

func TestForGroupAndForDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, repo := newStore(t)

	add := func(group, subj, dl string) {
		t.Helper()
		if _, err := s.Add(ctx, Entry{Group: group, Subject: subj, Task: "t", Deadline: dl}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	add("БИ25-1", "Физика", "10.09.2025")
	add("БИ25-1", "Математика", "02.09.2025")
	add("би25-1", "История", "02.09.2025")
	add("ПИ25-2", "Химия", "02.09.2025")
	_ = repo.Update(ctx, func(m storage.Records) error {
		m["broken"] = json.RawMessage(`"nope"`)
		return nil
	})

	got, err := s.ForGroup(ctx, "БИ25-1")
	if err != nil {
		t.Fatalf("ForGroup: %v", err)
	}
	var subjects []string
	for _, e := range got {
		subjects = append(subjects, e.Subject)
	}
	if strings.Join(subjects, ",") != "Математика,История,Физика" {
		t.Fatalf("ForGroup order = %v", subjects)
	}

	due, err := s.ForDate(ctx, "БИ25-1", time.Date(2025, 9, 2, 19, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ForDate: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("ForDate = %d entries, want 2", len(due))
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		{Subject: "Матан <1>", Deadline: "02.09.2025", Task: "№1-5", Attachment: "https://ex.org/a?b=1&c=2"},
		{Subject: "История", Deadline: "02.09.2025", Task: "эссе", Attachment: NoAttachment},
	}
	got := FormatList("БИ25-1", entries)
	want := "📖 Домашка для <b>БИ25-1</b>:\n" +
		"\n#1\n📘 <b>Матан &lt;1&gt;</b>\n📅 Дедлайн: 02.09.2025\n✏️ №1-5\n📎 <a href=\"https://ex.org/a?b=1&amp;c=2\">https://ex.org/a?b=1&amp;c=2</a>\n" +
		"\n#2\n📘 <b>История</b>\n📅 Дедлайн: 02.09.2025\n✏️ эссе\n📎 -"
	if got != want {
		t.Fatalf("FormatList =\n%s\nwant\n%s", got, want)
	}
	if FormatList("X", nil) != Empty {
		t.Fatalf("empty list text")
	}
	if FormatDue("X", time.Now(), nil) != "" {
		t.Fatalf("FormatDue(nil) should be empty")
	}
	due := FormatDue("БИ25-1", time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC), entries[1:])
	if !strings.HasPrefix(due, "📚 Домашка для <b>БИ25-1</b> на 02.09.2025:\n\n📘 <b>История</b>") {
		t.Fatalf("FormatDue = %q", due)
	}
}
