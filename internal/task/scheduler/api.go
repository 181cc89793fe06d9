package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"timetablebot/internal/task/engine"
	logx "timetablebot/pkg/logx"
)

// AddDaily fires job every day at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job Job) error {
	h, m, err := ParseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.addCron(name, fmt.Sprintf("%d %d * * *", m, h), fmt.Sprintf("%02d:%02d", h, m), timeout, job)
}

func (s *Service) addCron(name, spec, hhmm string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.removeOnce(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	// upsert by name so repeated registration never duplicates a trigger
	s.removeScheduleLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, hhmm: hhmm, timeout: timeout, job: job})
	if s.c != nil {
		s.registerLocked(&s.defs[len(s.defs)-1])
		args := []logx.Field{logx.String("name", name), logx.String("spec", spec)}
		if next := s.previewNextRunsLocked(spec, 2); next != "" {
			args = append(args, logx.String("next", next))
		}
		s.log.Debug("schedule registered", args...)
	}
	return nil
}

// AddOnce fires job once at the given instant; a past instant fires at once.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if at.IsZero() {
		return errors.New("at required")
	}
	if job == nil {
		return errors.New("job required")
	}

	s.mu.Lock()
	s.removeScheduleLocked(name)
	loc := s.loc
	s.mu.Unlock()

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if old, ok := s.once[name]; ok && old.timer != nil {
		old.timer.Stop()
	}
	s.onceSeq++
	d := &onceDef{at: at.In(loc), timeout: timeout, job: job, ver: s.onceSeq}
	s.once[name] = d
	if s.running {
		s.armLocked(name, d)
	}
	s.log.Debug("one-shot registered", logx.String("name", name), logx.Time("at", d.at))
	return nil
}

// armLocked starts d's timer. Call with s.tmu held.
func (s *Service) armLocked(name string, d *onceDef) {
	ver := d.ver
	d.timer = time.AfterFunc(max(time.Until(d.at), 0), func() {
		s.tmu.Lock()
		cur, ok := s.once[name]
		// replaced or removed since arming
		if !ok || cur.ver != ver || !s.running {
			s.tmu.Unlock()
			return
		}
		delete(s.once, name)
		s.tmu.Unlock()
		s.enqueue(name, cur.timeout, cur.job)
	})
}

// Remove drops the trigger with this name. It reports whether one existed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()
	removed = s.removeOnce(name) || removed
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// Names lists registered trigger names with the given prefix, sorted.
func (s *Service) Names(prefix string) []string {
	var out []string
	s.mu.Lock()
	for _, d := range s.defs {
		if strings.HasPrefix(d.name, prefix) {
			out = append(out, d.name)
		}
	}
	s.mu.Unlock()
	s.tmu.Lock()
	for name := range s.once {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	s.tmu.Unlock()
	sort.Strings(out)
	return out
}

// Has reports whether a trigger with this name is registered.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	for _, d := range s.defs {
		if d.name == name {
			s.mu.Unlock()
			return true
		}
	}
	s.mu.Unlock()
	s.tmu.Lock()
	_, ok := s.once[name]
	s.tmu.Unlock()
	return ok
}

// removeScheduleLocked drops defs named name and their cron entries. Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) removeOnce(name string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	d, ok := s.once[name]
	if !ok {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	delete(s.once, name)
	return true
}

// registerLocked adds d to the running cron. Call with s.mu held.
func (s *Service) registerLocked(d *scheduleDef) {
	name, timeout, job := d.name, d.timeout, d.job
	eid, err := s.c.AddJob(d.spec, cron.FuncJob(func() { s.enqueue(name, timeout, job) }))
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entryID = eid
}

func (s *Service) enqueue(name string, timeout time.Duration, job Job) {
	if s.engine == nil {
		return
	}
	err := s.engine.Enqueue(engine.Task{Name: name, Timeout: timeout, Run: job})
	if err != nil {
		s.reportEnqueueError(name, err)
	}
}

// previewNextRunsLocked lists upcoming runs of spec for debug logs. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(s.loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// ParseHHMM reads "H:MM" or "HH:MM".
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
