package config

// Config is the root of the bot's config file (JSON or YAML).
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution of fired timers. Omitted means defaults.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`
	Notifier   *NotifierConfig   `json:"notifier,omitempty"`

	// Storage holds the favorites map; Homework holds homework entries.
	Storage  StorageConfig `json:"storage"`
	Homework StorageConfig `json:"homework"`

	Upstream  UpstreamConfig  `json:"upstream"`
	Cache     *CacheConfig    `json:"cache,omitempty"`
	Timetable TimetableConfig `json:"timetable"`
	Notify    NotifyConfig    `json:"notify"`

	Debug *DebugConfig `json:"debug,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AdminUserIDs may use /status.
	AdminUserIDs []int64 `json:"admin_user_ids,omitempty"`
	// LogChatID receives warn+ log lines when logging.telegram is enabled.
	LogChatID int64 `json:"log_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls notification timers.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Timezone is an IANA name. Default: Europe/Moscow.
	Timezone string `json:"timezone,omitempty"`
}

// TaskEngineConfig controls the worker pool that runs fired timers.
//
// Defaults:
//   - workers: 2
//   - queue_size: 256
//   - default_timeout: "2m"
//   - history_size: 200
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// NotifierConfig controls the outbound message path.
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec"`
	SendTimeout string `json:"send_timeout,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// StorageConfig selects a repository driver.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/favorites.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// UpstreamConfig points at the timetable source.
type UpstreamConfig struct {
	BaseURL    string `json:"base_url"`
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// CacheConfig enables a redis cache in front of the upstream.
type CacheConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	TTL      string `json:"ttl,omitempty"`
}

type TimetableConfig struct {
	// BellsFile is an optional list of "HH:MM" slot starts (YAML or JSON).
	BellsFile string `json:"bells_file,omitempty"`
	// SlotTolerance is a Go duration string. Default: 25m.
	SlotTolerance string `json:"slot_tolerance,omitempty"`
}

type NotifyConfig struct {
	// DefaultTime is applied when an owner first gains a favorite. Default: 19:00.
	DefaultTime string `json:"default_time,omitempty"`
	// DefaultDay is "today" or "tomorrow". Default: tomorrow.
	DefaultDay string `json:"default_day,omitempty"`
	// SkipWeekday is an English weekday name, or "none". Default: sunday.
	SkipWeekday string `json:"skip_weekday,omitempty"`
	// Timeout bounds one delivery run. Default: 2m.
	Timeout string `json:"timeout,omitempty"`
}

// DebugConfig enables the health and pprof HTTP endpoint.
// Binding to a non-loopback address requires Token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default 127.0.0.1:6060
	Token   string `json:"token,omitempty"`
}
