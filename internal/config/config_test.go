package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  admin_user_ids: [42]
logging:
  level: info
  console: true
scheduler:
  enabled: true
  timezone: Europe/Moscow
storage:
  driver: file
  path: ./data/favorites.json
homework:
  driver: sqlite
  path: ./data/homework.db
upstream:
  base_url: https://ruz.example.org/api
  timeout: 10s
timetable:
  slot_tolerance: 20m
notify:
  default_time: "19:00"
  default_day: tomorrow
  skip_weekday: sunday
`

func TestParseBytesYAML(t *testing.T) {
	t.Parallel()

	cfg, err := ParseBytes("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Homework.Driver != "sqlite" {
		t.Fatalf("homework.driver = %q, want sqlite", cfg.Homework.Driver)
	}
	if !reflect.DeepEqual(cfg.Telegram.AdminUserIDs, []int64{42}) {
		t.Fatalf("admin_user_ids = %v, want [42]", cfg.Telegram.AdminUserIDs)
	}
}

func TestParseBytesRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()

	if _, err := ParseBytes("c.json", []byte(`{"telegram":{"token":"x"},"plugins":{}}`)); err == nil {
		t.Fatalf("unknown field accepted")
	}
	if _, err := ParseBytes("c.json", []byte(`{"telegram":{}} {}`)); err == nil {
		t.Fatalf("trailing data accepted")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t"},
			Upstream: UpstreamConfig{BaseURL: "https://x"},
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("minimal config: %v", err)
	}

	tests := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "scheduler.timezone"},
		{"time", func(c *Config) { c.Notify.DefaultTime = "7pm" }, "notify.default_time"},
		{"day", func(c *Config) { c.Notify.DefaultDay = "yesterday" }, "notify.default_day"},
		{"weekday", func(c *Config) { c.Notify.SkipWeekday = "funday" }, "notify.skip_weekday"},
		{"driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"cache", func(c *Config) { c.Cache = &CacheConfig{Enabled: true} }, "cache.addr"},
		{"duration", func(c *Config) { c.Upstream.Timeout = "-1s" }, "upstream.timeout"},
	}
	for _, tt := range tests {
		cfg := base()
		tt.mut(cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: Validate() = %v, want error mentioning %q", tt.name, err, tt.want)
		}
	}
}

func TestSkipWeekdayOrDefault(t *testing.T) {
	t.Parallel()

	if d, ok := (NotifyConfig{}).SkipWeekdayOrDefault(); !ok || d != time.Sunday {
		t.Fatalf("default = %v,%v, want Sunday,true", d, ok)
	}
	if _, ok := (NotifyConfig{SkipWeekday: "none"}).SkipWeekdayOrDefault(); ok {
		t.Fatalf("none should disable the skip day")
	}
	if d, _ := (NotifyConfig{SkipWeekday: "Saturday"}).SkipWeekdayOrDefault(); d != time.Saturday {
		t.Fatalf("Saturday = %v", d)
	}
}

func TestLoadBells(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	yml := filepath.Join(dir, "bells.yaml")
	if err := os.WriteFile(yml, []byte("- \"09:00\"\n- \"10:40\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	js := filepath.Join(dir, "bells.json")
	if err := os.WriteFile(js, []byte(`["09:00","10:40"]`), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{yml, js} {
		got, err := LoadBells(p)
		if err != nil {
			t.Fatalf("LoadBells(%s): %v", p, err)
		}
		if want := []string{"09:00", "10:40"}; !reflect.DeepEqual(got, want) {
			t.Fatalf("LoadBells(%s) = %v, want %v", p, got, want)
		}
	}
	if got, err := LoadBells(""); got != nil || err != nil {
		t.Fatalf("LoadBells(\"\") = %v, %v", got, err)
	}
}

func TestLoadBellsFormats(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name, body string
		ok         bool
	}{
		{"bells.txt", "- \"08:30\"\n- \"10:10\"\n", true},
		{"bells", `["08:30", "10:10"]`, true},
		{"trailing.json", `["08:30"] ["10:10"]`, false},
		{"object.yaml", "bells:\n  - \"08:30\"\n", false},
		{"broken.yml", "- [\n", false},
	}
	for _, tc := range tests {
		p := filepath.Join(dir, tc.name)
		if err := os.WriteFile(p, []byte(tc.body), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := LoadBells(p)
		if (err == nil) != tc.ok {
			t.Fatalf("LoadBells(%s) err = %v, want ok=%v", tc.name, err, tc.ok)
		}
		if tc.ok && !reflect.DeepEqual(got, []string{"08:30", "10:10"}) {
			t.Fatalf("LoadBells(%s) = %v", tc.name, got)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	a := &Config{Telegram: TelegramConfig{Token: "secret"}, Notify: NotifyConfig{DefaultTime: "19:00"}}
	b := *a
	b.Notify.DefaultTime = "20:00"
	b.Cache = &CacheConfig{Enabled: true, Addr: "localhost:6379", Password: "pw"}

	changed, _ := SummarizeConfigChange(a, &b)
	if want := []string{"cache", "notify"}; !reflect.DeepEqual(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if got := RequiresRestart(changed); !reflect.DeepEqual(got, []string{"cache"}) {
		t.Fatalf("RequiresRestart = %v, want [cache]", got)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationOrDefault("x", "", 25*time.Minute)
	if err != nil || d != 25*time.Minute {
		t.Fatalf("ParseDurationOrDefault(\"\") = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "90s", time.Minute); err != nil || d != 90*time.Second {
		t.Fatalf("ParseDurationOrDefault(90s) = %v, %v", d, err)
	}

	var fe *FieldError
	if _, err := ParseDurationField("notify.timeout", "soon"); !errors.As(err, &fe) || fe.Field != "notify.timeout" {
		t.Fatalf("ParseDurationField(soon) = %v, want FieldError for notify.timeout", err)
	}
	if _, err := ParseDurationField("x", "-1s"); !errors.Is(err, ErrNegativeDuration) {
		t.Fatalf("ParseDurationField(-1s) = %v, want ErrNegativeDuration", err)
	}
}
