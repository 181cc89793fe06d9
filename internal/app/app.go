// Package app wires the timetable bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"timetablebot/internal/bot"
	"timetablebot/internal/config"
	"timetablebot/internal/eventbus"
	"timetablebot/internal/favorites"
	"timetablebot/internal/homework"
	"timetablebot/internal/notifier"
	"timetablebot/internal/notify"
	"timetablebot/internal/observability/debug"
	"timetablebot/internal/runtime/supervisor"
	"timetablebot/internal/storage"
	"timetablebot/internal/task/engine"
	"timetablebot/internal/task/scheduler"
	"timetablebot/internal/timetable"
	kit "timetablebot/internal/transport"
	telegram "timetablebot/internal/transport/telegram/adapter"
	"timetablebot/internal/transport/telegram/router"
	"timetablebot/internal/upstream"
	logx "timetablebot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	favRepo storage.Repository
	hwRepo  storage.Repository
	cache   *upstream.RedisCache

	adapter *telegram.Adapter
	engine  *engine.Service
	sched   *scheduler.Service
	notif   *notifier.Service
	debug   *debug.Server

	agg    *timetable.Aggregator
	fav    *favorites.Store
	hw     *homework.Store
	notify *notify.Scheduler
	router *router.Router
	bot    *bot.Bot
	status *bot.Status
	events *eventbus.Counter

	updates chan kit.Update
}

// supView adapts a lazily created supervisor for /status.
type supView func() *supervisor.Supervisor

func (f supView) Snapshot() []supervisor.Stats { return f().Snapshot() }

func NewApp(cfgPath string) (_ *App, err error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogConfig(cfg), ad)
	a := &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log.With(logx.String("comp", "app")),
		bus:     eventbus.New(),
		adapter: ad,
		events:  eventbus.NewCounter(),
		updates: make(chan kit.Update, 256),
	}
	defer func() {
		if err != nil {
			a.closeStores()
			_ = logs.Close()
		}
	}()

	favCfg, err := mapStorageConfig("storage", cfg.Storage, "./data/favorites.json")
	if err != nil {
		return nil, err
	}
	if a.favRepo, err = storage.Open(favCfg, log.With(logx.String("comp", "storage.favorites"))); err != nil {
		return nil, fmt.Errorf("favorites storage: %w", err)
	}
	hwCfg, err := mapStorageConfig("homework", cfg.Homework, "./data/homework.json")
	if err != nil {
		return nil, err
	}
	if a.hwRepo, err = storage.Open(hwCfg, log.With(logx.String("comp", "storage.homework"))); err != nil {
		return nil, fmt.Errorf("homework storage: %w", err)
	}

	upOpts, err := mapUpstreamOptions(cfg)
	if err != nil {
		return nil, err
	}
	if cc := cfg.Cache; cc != nil && cc.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		cache, cerr := upstream.NewRedisCache(ctx, upstream.RedisOptions{Addr: cc.Addr, Password: cc.Password, DB: cc.DB})
		cancel()
		if cerr != nil {
			// the bot works without a cache, only slower
			a.log.Warn("redis cache unavailable; continuing without it", logx.String("addr", cc.Addr), logx.Err(cerr))
		} else {
			a.cache = cache
			upOpts.Cache = cache
		}
	}
	client, err := upstream.New(upOpts, log)
	if err != nil {
		return nil, err
	}

	bells, err := loadBells(cfg)
	if err != nil {
		return nil, err
	}
	a.agg = timetable.NewAggregator(client, bells, log)

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.engine = engine.New(engCfg, log.With(logx.String("comp", "taskengine")), a.bus)
	a.sched = scheduler.New(mapSchedulerConfig(cfg), a.engine, log.With(logx.String("comp", "scheduler")), a.bus)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.notif = notifier.New(ncfg, ad, log, a.bus)

	defTime, defDay := mapFavoriteDefaults(cfg)
	a.fav = favorites.New(a.favRepo, favorites.Options{DefaultTime: defTime, DefaultDay: defDay}, log)
	a.hw = homework.New(a.hwRepo, log)

	budget, skip, err := mapNotifyOptions(cfg)
	if err != nil {
		return nil, err
	}
	a.notify = notify.New(a.sched, a.fav, a.agg, a.hw, a.notif, notify.Options{Timeout: budget, Skip: skip, Now: a.sched.Now}, log, a.bus)

	a.debug = debug.New(mapDebugConfig(cfg), a.health, log)

	a.router = router.New(ad, router.Options{}, log)
	a.router.SetAdmins(cfg.Telegram.AdminUserIDs)

	a.status = &bot.Status{
		Started:   time.Now(),
		Scheduler: a.sched,
		Outbox:    a.notif,
		Events:    a.events,
		Supervisors: map[string]bot.SupervisorView{
			"app":      supView(func() *supervisor.Supervisor { return a.sup }),
			"telegram": supView(ad.Supervisor),
			"router":   supView(a.router.Supervisor),
			"debug":    supView(a.debug.Supervisor),
		},
	}
	a.bot = bot.New(bot.Deps{
		Adapter:    ad,
		Search:     client,
		Timetables: a.agg,
		Favorites:  a.fav,
		Resync:     a.notify,
		Homework:   a.hw,
		Status:     a.status,
	}, bot.Options{Location: a.sched.Location()}, log)
	a.bot.Register(a.router)

	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := loadBells(cfg); err != nil {
			return fmt.Errorf("timetable.bells_file: %w", err)
		}
		return nil
	})

	if n, err := a.fav.Migrate(ctx); err != nil {
		return fmt.Errorf("favorites migrate: %w", err)
	} else if n > 0 {
		a.log.Info("favorites upgraded", logx.Int("owners", n))
	}

	a.sup.Go("eventbus.counter", func(c context.Context) error {
		return a.events.Run(c, a.bus)
	})

	a.engine.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())
	n, err := a.notify.Resync(ctx)
	if err != nil {
		// timers for the owners that did load are installed; the rest retry on
		// their next favorites change
		a.log.Warn("notify resync incomplete", logx.Err(err))
	}
	a.log.Info("notification timers installed", logx.Int("timers", n))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.debug.Start(a.sup.Context())

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				// coalesce bursts
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.reload(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// reload applies everything that can change live; other sections log a
// restart hint.
func (a *App) reload(ctx context.Context, prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RequiresRestart(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.Strings("sections", restart))
	}

	a.logs.Apply(mapLogConfig(cfg))
	a.router.SetAdmins(cfg.Telegram.AdminUserIDs)

	if engCfg, err := mapTaskEngineConfig(cfg); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, engCfg)
	}
	a.sched.Apply(mapSchedulerConfig(cfg))
	a.bot.SetLocation(a.sched.Location())

	if ncfg, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if bells, err := loadBells(cfg); err != nil {
		a.log.Warn("invalid bells; keeping previous", logx.Err(err))
	} else {
		a.agg.SetBells(bells)
	}

	a.debug.Reconfigure(a.sup.Context(), mapDebugConfig(cfg))

	defTime, defDay := mapFavoriteDefaults(cfg)
	a.fav.SetDefaults(defTime, defDay)
	if budget, skip, err := mapNotifyOptions(cfg); err != nil {
		a.log.Warn("invalid notify config; keeping previous", logx.Err(err))
	} else {
		a.notify.Apply(budget, skip)
	}
	// a timezone change re-arms the one-shot timers against the new clock
	if prev.Scheduler.Timezone != cfg.Scheduler.Timezone || prev.Scheduler.Enabled != cfg.Scheduler.Enabled {
		if _, err := a.notify.Resync(ctx); err != nil {
			a.log.Warn("notify resync after reload failed", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStores()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// unwind background loops first
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
				max = time.Until(dl)
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.closeStores() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

func (a *App) closeStores() error {
	var errs []error
	for _, c := range []interface{ Close() error }{a.favRepo, a.hwRepo} {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	return errors.Join(errs...)
}

// health is the /healthz report: unhealthy once the app supervisor recorded a
// fatal error or the scheduler stopped while enabled.
func (a *App) health() debug.Report {
	snap := a.sched.Snapshot()
	rep := debug.Report{
		Healthy: true,
		Uptime:  time.Since(a.status.Started).Round(time.Second).String(),
		Checks: map[string]any{
			"scheduler_running": snap.Running,
			"timers":            len(snap.Schedules),
			"queue":             snap.Engine.QueueLen,
			"dropped":           snap.Engine.Dropped,
		},
	}
	if a.sup != nil {
		if err := a.sup.Err(); err != nil {
			rep.Healthy = false
			rep.Checks["error"] = err.Error()
		}
	}
	if snap.Enabled && !snap.Running {
		rep.Healthy = false
	}
	failed := 0
	for _, it := range a.notif.Snapshot() {
		if it.Error != "" {
			failed++
		}
	}
	rep.Checks["outbox_failed"] = failed
	return rep
}
