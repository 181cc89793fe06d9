package config

import (
	"reflect"
	"sort"
	"strings"

	logx "timetablebot/pkg/logx"
)

// SummarizeConfigChange lists the changed sections and safe attrs for logging.
// Secrets (bot token, redis password) never appear in attrs.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		oldCfg.Telegram.LogChatID != newCfg.Telegram.LogChatID ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.AdminUserIDs, newCfg.Telegram.AdminUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.Int("telegram.admin_count", len(newCfg.Telegram.AdminUserIDs)),
			logx.Bool("telegram.log_chat_set", newCfg.Telegram.LogChatID != 0),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}
	if !reflect.DeepEqual(oldCfg.TaskEngine, newCfg.TaskEngine) {
		changed = append(changed, "task_engine")
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs, logx.Int("notifier.rate_per_sec", n.RatePerSec))
		}
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Homework != newCfg.Homework {
		changed = append(changed, "homework")
		attrs = append(attrs, logx.String("homework.driver", newCfg.Homework.Driver))
	}
	if oldCfg.Upstream != newCfg.Upstream {
		changed = append(changed, "upstream")
		attrs = append(attrs, logx.String("upstream.base_url", newCfg.Upstream.BaseURL))
	}
	oc, nc := derefCache(oldCfg.Cache), derefCache(newCfg.Cache)
	if oc != nc {
		changed = append(changed, "cache")
		attrs = append(attrs,
			logx.Bool("cache.enabled", nc.Enabled),
			logx.String("cache.addr", nc.Addr),
		)
	}
	if oldCfg.Timetable != newCfg.Timetable {
		changed = append(changed, "timetable")
		attrs = append(attrs, logx.String("timetable.bells_file", newCfg.Timetable.BellsFile))
	}
	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.String("notify.default_time", newCfg.Notify.DefaultTime),
			logx.String("notify.skip_weekday", newCfg.Notify.SkipWeekday),
		)
	}

	od, nd := derefDebug(oldCfg.Debug), derefDebug(newCfg.Debug)
	if od != nd {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nd.Enabled),
			logx.String("debug.addr", nd.Addr),
			logx.Bool("debug.token_set", nd.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefCache(c *CacheConfig) CacheConfig {
	if c == nil {
		return CacheConfig{}
	}
	return *c
}

func derefDebug(c *DebugConfig) DebugConfig {
	if c == nil {
		return DebugConfig{}
	}
	return *c
}

// RequiresRestart reports sections that cannot be applied live.
func RequiresRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "storage", "homework", "upstream", "cache":
			out = append(out, s)
		}
	}
	return out
}
