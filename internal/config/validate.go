package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const DefaultTimezone = "Europe/Moscow"

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// ParseWeekday maps an English weekday name to time.Weekday. ok is false for "none" or "".
func ParseWeekday(s string) (time.Weekday, bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return 0, false, nil
	}
	d, ok := weekdays[s]
	if !ok {
		return 0, false, fmt.Errorf("unknown weekday %q", s)
	}
	return d, true, nil
}

// SkipWeekdayOrDefault returns the configured non-instructional day, Sunday when unset.
func (c NotifyConfig) SkipWeekdayOrDefault() (time.Weekday, bool) {
	if strings.TrimSpace(c.SkipWeekday) == "" {
		return time.Sunday, true
	}
	d, ok, err := ParseWeekday(c.SkipWeekday)
	if err != nil {
		return time.Sunday, true
	}
	return d, ok
}

// Validate checks everything that can be checked without I/O beyond tzdata.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token: required"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if te := c.TaskEngine; te != nil {
		if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 {
			errs = append(errs, errors.New("task_engine: negative sizes"))
		}
		if _, err := ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if n := c.Notifier; n != nil {
		if _, err := ParseDurationField("notifier.send_timeout", n.SendTimeout); err != nil {
			errs = append(errs, err)
		}
		if _, err := ParseDurationField("notifier.dedup_window", n.DedupWindow); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, validateStorage("storage", c.Storage), validateStorage("homework", c.Homework))
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		errs = append(errs, errors.New("upstream.base_url: required"))
	}
	if _, err := ParseDurationField("upstream.timeout", c.Upstream.Timeout); err != nil {
		errs = append(errs, err)
	}
	if cc := c.Cache; cc != nil && cc.Enabled {
		if strings.TrimSpace(cc.Addr) == "" {
			errs = append(errs, errors.New("cache.addr: required when cache is enabled"))
		}
		if _, err := ParseDurationField("cache.ttl", cc.TTL); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := ParseDurationField("timetable.slot_tolerance", c.Timetable.SlotTolerance); err != nil {
		errs = append(errs, err)
	}
	if t := strings.TrimSpace(c.Notify.DefaultTime); t != "" {
		if _, err := time.Parse("15:04", t); err != nil {
			errs = append(errs, fmt.Errorf("notify.default_time: want HH:MM, got %q", t))
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Notify.DefaultDay)) {
	case "", "today", "tomorrow":
	default:
		errs = append(errs, fmt.Errorf("notify.default_day: want today or tomorrow, got %q", c.Notify.DefaultDay))
	}
	if _, _, err := ParseWeekday(c.Notify.SkipWeekday); err != nil {
		errs = append(errs, fmt.Errorf("notify.skip_weekday: %w", err))
	}
	if _, err := ParseDurationField("notify.timeout", c.Notify.Timeout); err != nil {
		errs = append(errs, err)
	}
	if d := c.Debug; d != nil && d.Enabled && strings.TrimSpace(d.Addr) != "" {
		if _, _, err := net.SplitHostPort(d.Addr); err != nil {
			errs = append(errs, fmt.Errorf("debug.addr: %w", err))
		}
	}
	return errors.Join(errs...)
}

func validateStorage(path string, s StorageConfig) error {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "", "file", "sqlite":
	default:
		return fmt.Errorf("%s.driver: unknown driver %q", path, s.Driver)
	}
	if _, err := ParseDurationField(path+".busy_timeout", s.BusyTimeout); err != nil {
		return err
	}
	return nil
}
