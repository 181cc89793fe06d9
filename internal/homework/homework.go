// Package homework stores assignments per study group and renders them for
// chat replies and scheduled notifications.
package homework

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"timetablebot/internal/storage"
	logx "timetablebot/pkg/logx"
	"timetablebot/pkg/tgui"
)

// DeadlineLayout is how deadlines are typed by users and shown back.
const DeadlineLayout = "02.01.2006"

// NoAttachment is stored when the user answers "нет".
const NoAttachment = "-"

var (
	ErrMissingField = errors.New("homework: group, subject and task are required")
	ErrBadDeadline  = errors.New("homework: deadline must be DD.MM.YYYY")
)

type Entry struct {
	ID         string    `json:"id"`
	Group      string    `json:"group"`
	Subject    string    `json:"subject"`
	Deadline   string    `json:"deadline"`
	Task       string    `json:"task"`
	Attachment string    `json:"attachment"`
	CreatedBy  int64     `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Due parses Deadline; ok is false for free-form deadlines kept from old data.
func (e Entry) Due() (time.Time, bool) {
	t, err := time.Parse(DeadlineLayout, strings.TrimSpace(e.Deadline))
	return t, err == nil
}

// ParseDeadline validates a user-typed deadline and returns it canonical.
func ParseDeadline(s string) (string, error) {
	t, err := time.Parse("2.1.2006", strings.TrimSpace(s))
	if err != nil {
		return "", ErrBadDeadline
	}
	return t.Format(DeadlineLayout), nil
}

func groupKey(s string) string { return strings.ToLower(strings.Join(strings.Fields(s), " ")) }

type Store struct {
	repo storage.Repository
	now  func() time.Time
	log  logx.Logger
}

func New(repo storage.Repository, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{repo: repo, now: time.Now, log: log.With(logx.String("comp", "homework"))}
}

// Add validates and stores e, assigning ID and CreatedAt.
func (s *Store) Add(ctx context.Context, e Entry) (Entry, error) {
	e.Group = strings.TrimSpace(e.Group)
	e.Subject = strings.TrimSpace(e.Subject)
	e.Task = strings.TrimSpace(e.Task)
	if e.Group == "" || e.Subject == "" || e.Task == "" {
		return Entry{}, ErrMissingField
	}
	dl, err := ParseDeadline(e.Deadline)
	if err != nil {
		return Entry{}, err
	}
	e.Deadline = dl
	if a := strings.TrimSpace(e.Attachment); a == "" || strings.EqualFold(a, "нет") {
		e.Attachment = NoAttachment
	} else {
		e.Attachment = a
	}
	e.ID = uuid.NewString()
	e.CreatedAt = s.now()

	b, err := json.Marshal(e)
	if err != nil {
		return Entry{}, err
	}
	err = s.repo.Update(ctx, func(m storage.Records) error {
		m[e.ID] = b
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("homework: save: %w", err)
	}
	s.log.Info("homework added", logx.String("group", e.Group), logx.String("id", e.ID))
	return e, nil
}

func (s *Store) list(ctx context.Context, keep func(Entry) bool) ([]Entry, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for k, raw := range snap {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			s.log.Warn("skipping unreadable homework", logx.String("id", k), logx.Err(err))
			continue
		}
		if e.ID == "" {
			e.ID = k
		}
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, iok := out[i].Due()
		dj, jok := out[j].Due()
		if iok != jok {
			return iok
		}
		if iok && !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ForGroup lists a group's entries by deadline. Group names match ignoring
// case and repeated spaces.
func (s *Store) ForGroup(ctx context.Context, group string) ([]Entry, error) {
	g := groupKey(group)
	return s.list(ctx, func(e Entry) bool { return groupKey(e.Group) == g })
}

// ForDate lists a group's entries due on date.
func (s *Store) ForDate(ctx context.Context, group string, date time.Time) ([]Entry, error) {
	g := groupKey(group)
	want := date.Format(DeadlineLayout)
	return s.list(ctx, func(e Entry) bool {
		return groupKey(e.Group) == g && strings.TrimSpace(e.Deadline) == want
	})
}

// Empty is the reply for a group with nothing stored.
const Empty = "❌ В этой группе пока нет домашки."

// FormatList renders a group's homework as HTML.
func FormatList(group string, entries []Entry) string {
	if len(entries) == 0 {
		return Empty
	}
	var b strings.Builder
	b.WriteString("📖 Домашка для " + tgui.B(group).String() + ":\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "\n#%d\n", i+1)
		writeEntry(&b, e)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatDue renders entries due on date; empty input yields "".
func FormatDue(group string, date time.Time, entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("📚 Домашка для " + tgui.B(group).String() + " на " + date.Format(DeadlineLayout) + ":\n")
	for _, e := range entries {
		b.WriteString("\n")
		writeEntry(&b, e)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeEntry(b *strings.Builder, e Entry) {
	b.WriteString("📘 " + tgui.B(orDash(e.Subject)).String() + "\n")
	b.WriteString("📅 Дедлайн: " + tgui.Esc(orDash(e.Deadline)).String() + "\n")
	b.WriteString("✏️ " + tgui.Esc(orDash(e.Task)).String() + "\n")
	att := orDash(e.Attachment)
	if strings.HasPrefix(att, "http://") || strings.HasPrefix(att, "https://") {
		b.WriteString("📎 " + tgui.Link(att, att).String() + "\n")
	} else {
		b.WriteString("📎 " + tgui.Esc(att).String() + "\n")
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
