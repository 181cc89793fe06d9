package favorites

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"timetablebot/internal/timetable"
)

// DeliveryDay selects which day a notification describes.
type DeliveryDay string

const (
	Today    DeliveryDay = "today"
	Tomorrow DeliveryDay = "tomorrow"
)

func ParseDeliveryDay(s string) (DeliveryDay, error) {
	switch d := DeliveryDay(strings.ToLower(strings.TrimSpace(s))); d {
	case Today, Tomorrow:
		return d, nil
	default:
		return "", fmt.Errorf("favorites: unknown delivery day %q", s)
	}
}

// Offset is the number of days from the firing date to the target date.
func (d DeliveryDay) Offset() int {
	if d == Today {
		return 0
	}
	return 1
}

// Item is one favorited group or instructor.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UnmarshalJSON accepts numeric ids written by older versions.
func (it *Item) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID   json.RawMessage `json:"id"`
		Name string          `json:"name"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	it.Name = raw.Name
	it.ID = rawID(raw.ID)
	return nil
}

func rawID(b json.RawMessage) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		return n.String()
	}
	return ""
}

// Entry is everything stored for one owner.
type Entry struct {
	Groups      []Item      `json:"groups"`
	Instructors []Item      `json:"instructors"`
	DeliveryDay DeliveryDay `json:"delivery_day,omitempty"`
	NotifyTimes []string    `json:"notify_times"`

	// DefaultsApplied records that the first-favorite defaults were set once.
	DefaultsApplied bool `json:"defaults_applied,omitempty"`
	// PrefsUpdatedAt is when delivery_day or notify_times last changed.
	PrefsUpdatedAt time.Time `json:"prefs_updated_at,omitzero"`
}

// Inert entries have no favorites and never get timers.
func (e Entry) Inert() bool { return len(e.Groups) == 0 && len(e.Instructors) == 0 }

// Day is the effective delivery day.
func (e Entry) Day() DeliveryDay {
	if e.DeliveryDay == Today {
		return Today
	}
	return Tomorrow
}

func (e Entry) list(kind timetable.EntityKind) []Item {
	if kind == timetable.EntityInstructor {
		return e.Instructors
	}
	return e.Groups
}

func (e *Entry) setList(kind timetable.EntityKind, items []Item) {
	if kind == timetable.EntityInstructor {
		e.Instructors = items
		return
	}
	e.Groups = items
}

func (e Entry) Has(kind timetable.EntityKind, id string) bool {
	for _, it := range e.list(kind) {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Favorites lists groups first, then instructors, each in insertion order.
func (e Entry) Favorites() []timetable.Entity {
	out := make([]timetable.Entity, 0, len(e.Groups)+len(e.Instructors))
	for _, it := range e.Groups {
		out = append(out, timetable.Entity{Kind: timetable.EntityGroup, ID: it.ID, Name: it.Name})
	}
	for _, it := range e.Instructors {
		out = append(out, timetable.Entity{Kind: timetable.EntityInstructor, ID: it.ID, Name: it.Name})
	}
	return out
}

func (e Entry) HasTime(t string) bool {
	for _, x := range e.NotifyTimes {
		if x == t {
			return true
		}
	}
	return false
}

// CanonicalTime validates "H:MM"/"HH:MM" and returns "HH:MM".
func CanonicalTime(s string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("favorites: bad time %q", s)
	}
	return t.Format("15:04"), nil
}

func normalizeTimes(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		c, err := CanonicalTime(s)
		if err != nil || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func uniqueItems(lists ...[]Item) []Item {
	seen := map[string]bool{}
	var out []Item
	for _, l := range lists {
		for _, it := range l {
			if it.ID == "" || seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			out = append(out, it)
		}
	}
	if out == nil {
		out = []Item{}
	}
	return out
}

// NormalizeOwner strips the historical "u:"/"user:"/"c:"/"chat:" prefixes.
func NormalizeOwner(owner string) string {
	o := strings.TrimSpace(owner)
	for _, p := range []string{"user:", "chat:", "u:", "c:"} {
		if len(o) > len(p) && strings.EqualFold(o[:len(p)], p) {
			return strings.TrimSpace(o[len(p):])
		}
	}
	return o
}

// OwnerString formats a chat id as an owner key.
func OwnerString(chatID int64) string { return strconv.FormatInt(chatID, 10) }
