package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"timetablebot/internal/storage"
	"timetablebot/internal/timetable"
	logx "timetablebot/pkg/logx"
)

var ErrBadOwner = errors.New("favorites: empty owner")

// Options are the lazily applied defaults.
type Options struct {
	DefaultTime string      // "19:00"
	DefaultDay  DeliveryDay // tomorrow
	Now         func() time.Time
}

// Store maps owners to entries on top of a storage.Repository. All writes are
// read-modify-write of the whole map through the repository's single writer.
type Store struct {
	repo storage.Repository
	now  func() time.Time
	log  logx.Logger

	// swapped on config reload while handlers run
	defaults atomic.Pointer[prefDefaults]
}

type prefDefaults struct {
	time string
	day  DeliveryDay
}

func New(repo storage.Repository, opts Options, log logx.Logger) *Store {
	if t, err := CanonicalTime(opts.DefaultTime); err == nil {
		opts.DefaultTime = t
	} else {
		opts.DefaultTime = "19:00"
	}
	if _, err := ParseDeliveryDay(string(opts.DefaultDay)); err != nil {
		opts.DefaultDay = Tomorrow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{repo: repo, now: opts.Now, log: log.With(logx.String("comp", "favorites"))}
	s.defaults.Store(&prefDefaults{time: opts.DefaultTime, day: opts.DefaultDay})
	return s
}

// SetDefaults swaps the lazily applied defaults. Existing entries are
// untouched; an invalid value keeps the current one.
func (s *Store) SetDefaults(defaultTime string, day DeliveryDay) {
	next := *s.defaults.Load()
	if t, err := CanonicalTime(defaultTime); err == nil {
		next.time = t
	}
	if d, err := ParseDeliveryDay(string(day)); err == nil {
		next.day = d
	}
	s.defaults.Store(&next)
}

// Defaults returns the time and day applied to an entry's first favorite.
func (s *Store) Defaults() (string, DeliveryDay) {
	d := s.defaults.Load()
	return d.time, d.day
}

func (s *Store) decode(key string, b json.RawMessage) (Entry, bool) {
	e, legacy, err := decodeEntry(b, s.defaults.Load().time)
	if err != nil {
		s.log.Warn("entry unreadable; treated as empty", logx.String("owner", key), logx.Err(err))
	}
	return e, legacy
}

func encode(e Entry) (json.RawMessage, error) {
	if e.Groups == nil {
		e.Groups = []Item{}
	}
	if e.Instructors == nil {
		e.Instructors = []Item{}
	}
	if e.NotifyTimes == nil {
		e.NotifyTimes = []string{}
	}
	return json.Marshal(e)
}

// aliases returns every stored key that normalizes to owner, canonical key first.
func aliases(m storage.Records, owner string) []string {
	var out []string
	if _, ok := m[owner]; ok {
		out = append(out, owner)
	}
	var rest []string
	for k := range m {
		if k != owner && NormalizeOwner(k) == owner {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// loadLocked merges aliases and upgrades legacy shapes inside an update.
// changed reports whether m must be rewritten.
func (s *Store) loadLocked(m storage.Records, owner string) (e Entry, changed bool) {
	keys := aliases(m, owner)
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		en, legacy := s.decode(k, m[k])
		changed = changed || legacy
		entries = append(entries, en)
	}
	if len(keys) == 0 {
		return Entry{Groups: []Item{}, Instructors: []Item{}, NotifyTimes: []string{}}, false
	}
	if len(keys) > 1 || keys[0] != owner {
		changed = true
	}
	if len(entries) == 1 {
		e = entries[0]
	} else {
		e = mergeEntries(entries...)
	}
	for _, k := range keys {
		if k != owner {
			delete(m, k)
		}
	}
	return e, changed
}

func (s *Store) put(m storage.Records, owner string, e Entry) error {
	b, err := encode(e)
	if err != nil {
		return err
	}
	m[owner] = b
	return nil
}

// mutate runs fn on the owner's entry inside one repository update.
func (s *Store) mutate(ctx context.Context, owner string, fn func(*Entry) bool) (Entry, error) {
	owner = NormalizeOwner(owner)
	if owner == "" {
		return Entry{}, ErrBadOwner
	}
	var out Entry
	err := s.repo.Update(ctx, func(m storage.Records) error {
		e, migrated := s.loadLocked(m, owner)
		changed := fn(&e)
		out = e
		if !changed && !migrated {
			return nil
		}
		return s.put(m, owner, e)
	})
	return out, err
}

// Get returns the owner's entry. A legacy or split entry is upgraded and
// persisted on the first read; later reads do not write.
func (s *Store) Get(ctx context.Context, owner string) (Entry, error) {
	owner = NormalizeOwner(owner)
	if owner == "" {
		return Entry{}, ErrBadOwner
	}
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return Entry{}, err
	}
	// cheap path: one canonical key in the current shape
	keys := aliases(snap, owner)
	if len(keys) == 0 {
		return Entry{Groups: []Item{}, Instructors: []Item{}, NotifyTimes: []string{}}, nil
	}
	if len(keys) == 1 && keys[0] == owner {
		if e, legacy := s.decode(owner, snap[owner]); !legacy {
			return e, nil
		}
	}
	e, err := s.mutate(ctx, owner, func(*Entry) bool { return false })
	if err == nil {
		s.log.Info("entry upgraded", logx.String("owner", owner), logx.Int("keys", len(keys)))
	}
	return e, err
}

// Add favorites an entity. Adding an existing id is a no-op. The first
// favorite ever added to an entry applies the default delivery preferences.
func (s *Store) Add(ctx context.Context, owner string, kind timetable.EntityKind, id, name string) (Entry, bool, error) {
	if id == "" {
		return Entry{}, false, errors.New("favorites: empty id")
	}
	added := false
	e, err := s.mutate(ctx, owner, func(e *Entry) bool {
		if e.Has(kind, id) {
			return false
		}
		if name == "" {
			name = id
		}
		e.setList(kind, append(append([]Item{}, e.list(kind)...), Item{ID: id, Name: name}))
		if !e.DefaultsApplied {
			def := s.defaults.Load()
			if e.DeliveryDay == "" {
				e.DeliveryDay = def.day
			}
			if len(e.NotifyTimes) == 0 {
				e.NotifyTimes = []string{def.time}
			}
			e.DefaultsApplied = true
			e.PrefsUpdatedAt = s.now()
		}
		added = true
		return true
	})
	return e, added, err
}

// Remove drops a favorite. Removing an unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, owner string, kind timetable.EntityKind, id string) (Entry, bool, error) {
	removed := false
	e, err := s.mutate(ctx, owner, func(e *Entry) bool {
		cur := e.list(kind)
		next := make([]Item, 0, len(cur))
		for _, it := range cur {
			if it.ID == id {
				removed = true
				continue
			}
			next = append(next, it)
		}
		if removed {
			e.setList(kind, next)
		}
		return removed
	})
	return e, removed, err
}

func (s *Store) SetDeliveryDay(ctx context.Context, owner string, day DeliveryDay) (Entry, error) {
	day, err := ParseDeliveryDay(string(day))
	if err != nil {
		return Entry{}, err
	}
	return s.mutate(ctx, owner, func(e *Entry) bool {
		if e.DeliveryDay == day {
			return false
		}
		e.DeliveryDay = day
		e.PrefsUpdatedAt = s.now()
		return true
	})
}

// ToggleNotifyTime adds t to the set or removes it; on reports the new state.
func (s *Store) ToggleNotifyTime(ctx context.Context, owner, t string) (Entry, bool, error) {
	t, err := CanonicalTime(t)
	if err != nil {
		return Entry{}, false, err
	}
	on := false
	e, err := s.mutate(ctx, owner, func(e *Entry) bool {
		if e.HasTime(t) {
			next := make([]string, 0, len(e.NotifyTimes))
			for _, x := range e.NotifyTimes {
				if x != t {
					next = append(next, x)
				}
			}
			e.NotifyTimes = next
		} else {
			e.NotifyTimes = normalizeTimes(append(append([]string{}, e.NotifyTimes...), t))
			on = true
		}
		e.PrefsUpdatedAt = s.now()
		return true
	})
	return e, on, err
}

// ClearNotifyTimes turns notifications off without touching favorites.
func (s *Store) ClearNotifyTimes(ctx context.Context, owner string) (Entry, error) {
	return s.mutate(ctx, owner, func(e *Entry) bool {
		if len(e.NotifyTimes) == 0 {
			return false
		}
		e.NotifyTimes = []string{}
		e.PrefsUpdatedAt = s.now()
		return true
	})
}

// All returns every entry keyed by normalized owner, without writing. Split
// keys are merged in the result; Migrate persists that.
func (s *Store) All(ctx context.Context) (map[string]Entry, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	groups := map[string][]string{}
	for k := range snap {
		o := NormalizeOwner(k)
		if o != "" {
			groups[o] = append(groups[o], k)
		}
	}
	out := make(map[string]Entry, len(groups))
	for owner := range groups {
		keys := aliases(snap, owner)
		entries := make([]Entry, 0, len(keys))
		for _, k := range keys {
			e, _ := s.decode(k, snap[k])
			entries = append(entries, e)
		}
		if len(entries) == 1 {
			out[owner] = entries[0]
		} else {
			out[owner] = mergeEntries(entries...)
		}
	}
	return out, nil
}

// Migrate merges split owner keys and upgrades legacy shapes in one pass.
// It returns how many owners were rewritten.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	rewritten := 0
	err := s.repo.Update(ctx, func(m storage.Records) error {
		rewritten = 0
		owners := map[string]bool{}
		for k := range m {
			if o := NormalizeOwner(k); o != "" {
				owners[o] = true
			}
		}
		for owner := range owners {
			e, changed := s.loadLocked(m, owner)
			if !changed {
				continue
			}
			if err := s.put(m, owner, e); err != nil {
				return err
			}
			rewritten++
		}
		return nil
	})
	if err == nil && rewritten > 0 {
		s.log.Info("favorites migrated", logx.Int("owners", rewritten))
	}
	return rewritten, err
}
