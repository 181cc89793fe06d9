package bot

import (
	"sync"
	"time"

	"timetablebot/internal/homework"
	"timetablebot/internal/timetable"
)

type step int

const (
	stepIdle step = iota
	stepAskEntity
	stepAskDate
	stepHwGroup
	stepHwSubject
	stepHwDeadline
	stepHwTask
	stepHwAttachment
)

// session is what one chat is in the middle of. The router serializes
// updates per chat, so a session is only touched by one handler at a time.
type session struct {
	step   step
	kind   timetable.EntityKind
	entity *timetable.Entity
	draft  homework.Entry
	// hwAdd distinguishes the add dialog from viewing a group's homework.
	hwAdd bool
	seen  time.Time
}

type sessions struct {
	mu  sync.Mutex
	m   map[int64]session
	ttl time.Duration
	now func() time.Time
}

func newSessions(ttl time.Duration, now func() time.Time) *sessions {
	return &sessions{m: map[int64]session{}, ttl: ttl, now: now}
}

func (s *sessions) get(chat int64) session {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ss, ok := s.m[chat]
	if !ok || now.Sub(ss.seen) > s.ttl {
		delete(s.m, chat)
		return session{kind: timetable.EntityGroup}
	}
	return ss
}

func (s *sessions) put(chat int64, ss session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ss.seen = now
	s.m[chat] = ss
	for k, v := range s.m {
		if now.Sub(v.seen) > s.ttl {
			delete(s.m, k)
		}
	}
}

func (s *sessions) update(chat int64, fn func(*session)) session {
	ss := s.get(chat)
	fn(&ss)
	s.put(chat, ss)
	return ss
}

func (s *sessions) reset(chat int64) {
	s.mu.Lock()
	delete(s.m, chat)
	s.mu.Unlock()
}
