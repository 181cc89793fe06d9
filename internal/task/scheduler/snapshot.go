package scheduler

import (
	"sort"
	"time"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Enabled: s.cfg.Enabled, Running: s.c != nil, Timezone: s.loc.String()}
	now := time.Now().In(s.loc)
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Kind: KindDaily, Spec: d.hhmm, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		} else if sched, err := s.parser.Parse(d.spec); err == nil {
			it.Next = sched.Next(now)
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	eng := s.engine
	s.mu.Unlock()

	s.tmu.Lock()
	for name, d := range s.once {
		snap.Schedules = append(snap.Schedules, ScheduleInfo{Name: name, Kind: KindOnce, Spec: d.at.Format("2006-01-02 15:04"), Timeout: d.timeout, Next: d.at})
	}
	s.tmu.Unlock()

	sort.Slice(snap.Schedules, func(i, j int) bool {
		a, b := snap.Schedules[i], snap.Schedules[j]
		if !a.Next.Equal(b.Next) {
			return a.Next.Before(b.Next)
		}
		return a.Name < b.Name
	})
	if eng != nil {
		snap.Engine = eng.Snapshot()
	}
	return snap
}
