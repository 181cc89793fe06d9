package app

import (
	"fmt"
	"strings"
	"time"

	"timetablebot/internal/config"
	"timetablebot/internal/favorites"
	"timetablebot/internal/notifier"
	"timetablebot/internal/notify"
	"timetablebot/internal/observability/debug"
	"timetablebot/internal/storage"
	"timetablebot/internal/task/engine"
	"timetablebot/internal/task/scheduler"
	"timetablebot/internal/timetable"
	"timetablebot/internal/upstream"
	logx "timetablebot/pkg/logx"
)

const (
	defaultNotifyTime   = "19:00"
	defaultNotifyDay    = favorites.Tomorrow
	defaultCacheTTL     = 10 * time.Minute
	defaultNotifyBudget = 2 * time.Minute
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && cfg.Telegram.LogChatID != 0,
			ChatID:     cfg.Telegram.LogChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(path string, sc config.StorageConfig, defPath string) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	p := strings.TrimSpace(sc.Path)
	if p == "" {
		p = defPath
	}
	switch driver {
	case "", "file":
		return storage.Config{Driver: "file", Path: p}, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault(path+".busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: p, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown %s.driver: %s", path, sc.Driver)
	}
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{Enabled: true, Workers: 2, QueueSize: 256, HistorySize: 200, DefaultTimeout: defaultNotifyBudget}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	if te.Workers > 0 {
		out.Workers = te.Workers
	}
	if te.QueueSize > 0 {
		out.QueueSize = te.QueueSize
	}
	if te.HistorySize > 0 {
		out.HistorySize = te.HistorySize
	}
	d, err := config.ParseDurationOrDefault("task_engine.default_timeout", te.DefaultTimeout, out.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	out.DefaultTimeout = d
	return out, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		tz = config.DefaultTimezone
	}
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: tz}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{}, nil
	}
	send, err := config.ParseDurationField("notifier.send_timeout", n.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationField("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{RatePerSec: n.RatePerSec, SendTimeout: send, DedupWindow: dedup, HistorySize: n.HistorySize}, nil
}

func mapUpstreamOptions(cfg *config.Config) (upstream.Options, error) {
	timeout, err := config.ParseDurationField("upstream.timeout", cfg.Upstream.Timeout)
	if err != nil {
		return upstream.Options{}, err
	}
	opts := upstream.Options{
		BaseURL:    cfg.Upstream.BaseURL,
		Timeout:    timeout,
		RatePerSec: cfg.Upstream.RatePerSec,
		UserAgent:  cfg.Upstream.UserAgent,
	}
	if cc := cfg.Cache; cc != nil && cc.Enabled {
		ttl, err := config.ParseDurationOrDefault("cache.ttl", cc.TTL, defaultCacheTTL)
		if err != nil {
			return upstream.Options{}, err
		}
		opts.CacheTTL = ttl
	}
	return opts, nil
}

// mapNotifyOptions returns the run budget and skip policy of the notify section.
func mapNotifyOptions(cfg *config.Config) (time.Duration, notify.SkipPolicy, error) {
	timeout, err := config.ParseDurationOrDefault("notify.timeout", cfg.Notify.Timeout, defaultNotifyBudget)
	if err != nil {
		return 0, nil, err
	}
	day, skip := cfg.Notify.SkipWeekdayOrDefault()
	if !skip {
		return timeout, notify.NeverSkip{}, nil
	}
	return timeout, notify.SkipWeekday(day), nil
}

func mapFavoriteDefaults(cfg *config.Config) (string, favorites.DeliveryDay) {
	t := defaultNotifyTime
	if v, err := favorites.CanonicalTime(cfg.Notify.DefaultTime); err == nil {
		t = v
	}
	day := defaultNotifyDay
	if d, err := favorites.ParseDeliveryDay(cfg.Notify.DefaultDay); err == nil {
		day = d
	}
	return t, day
}

// loadBells reads the bells file; without one the built-in schedule is used.
func loadBells(cfg *config.Config) (*timetable.BellSchedule, error) {
	starts, err := config.LoadBells(cfg.Timetable.BellsFile)
	if err != nil {
		return nil, err
	}
	tol, err := config.ParseDurationOrDefault("timetable.slot_tolerance", cfg.Timetable.SlotTolerance, timetable.DefaultSlotTolerance)
	if err != nil {
		return nil, err
	}
	return timetable.NewBellSchedule(starts, tol)
}

func location(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

func mapDebugConfig(cfg *config.Config) debug.Config {
	if cfg.Debug == nil {
		return debug.Config{}
	}
	return debug.Config{Enabled: cfg.Debug.Enabled, Addr: cfg.Debug.Addr, Token: cfg.Debug.Token}
}
