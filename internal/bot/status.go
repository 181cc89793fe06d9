package bot

import (
	"context"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	tele "gopkg.in/telebot.v4"

	"timetablebot/internal/eventbus"
	"timetablebot/internal/notifier"
	"timetablebot/internal/runtime/supervisor"
	"timetablebot/internal/task/scheduler"
	"timetablebot/internal/transport/telegram/router"
	"timetablebot/pkg/tgui"
)

const outboxPageSize = 5

type SchedulerView interface {
	Snapshot() scheduler.Snapshot
}

type OutboxView interface {
	Snapshot() []notifier.HistoryItem
}

type SupervisorView interface {
	Snapshot() []supervisor.Stats
}

// Status gathers the read-only views /status renders. Nil fields are skipped.
type Status struct {
	Started     time.Time
	Scheduler   SchedulerView
	Outbox      OutboxView
	Events      *eventbus.Counter
	Supervisors map[string]SupervisorView
	Now         func() time.Time
}

func (s *Status) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Status) render() tgui.Message {
	now := s.now()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	out := tgui.New().Title("🏥", "Состояние бота").
		KV("Аптайм", now.Sub(s.Started).Round(time.Second).String()).
		KV("Горутины", strconv.Itoa(runtime.NumGoroutine())).
		KV("Память", humanize.Bytes(m.Alloc)+" / "+humanize.Bytes(m.Sys))

	if s.Scheduler != nil {
		snap := s.Scheduler.Snapshot()
		out.Section("📊 Планировщик").
			KV("Включён", yesNo(snap.Enabled && snap.Running)).
			KV("Часовой пояс", snap.Timezone).
			KV("Таймеры", strconv.Itoa(len(snap.Schedules))).
			KV("Очередь", fmt.Sprintf("%d/%d, в работе %d", snap.Engine.QueueLen, snap.Engine.QueueCap, snap.Engine.InFlight)).
			KV("Отброшено", strconv.FormatUint(snap.Engine.Dropped, 10))
		if next, name := nextRun(snap.Schedules); !next.IsZero() {
			out.KV("Ближайший", name+" "+next.Format("02.01 15:04"))
		}
		failed := 0
		for _, h := range snap.Engine.History {
			if h.Error != "" {
				failed++
			}
		}
		if len(snap.Engine.History) > 0 {
			out.KV("Последние задачи", fmt.Sprintf("%d, с ошибкой %d", len(snap.Engine.History), failed))
		}
	}

	if s.Events != nil {
		if counts := s.Events.Counts(); len(counts) > 0 {
			out.Section("📨 События")
			for _, c := range counts {
				out.KV(c.Type, fmt.Sprintf("%s, последнее %s", humanize.Comma(int64(c.N)), c.LastAt.In(time.Local).Format("02.01 15:04:05")))
			}
		}
	}

	if len(s.Supervisors) > 0 {
		out.Section("🧵 Горутины по компонентам")
		for _, name := range slices.Sorted(maps.Keys(s.Supervisors)) {
			for _, st := range s.Supervisors[name].Snapshot() {
				line := fmt.Sprintf("активно %d, перезапусков %d", st.Active, st.Restarts)
				if st.Panics > 0 {
					line += fmt.Sprintf(", паник %d", st.Panics)
				}
				if st.LastErr != "" {
					line += ": " + tgui.TruncRunes(st.LastErr, 80)
				}
				out.KV(name+"/"+st.Name, line)
			}
		}
	}
	return out.Build()
}

func nextRun(list []scheduler.ScheduleInfo) (time.Time, string) {
	var best scheduler.ScheduleInfo
	for _, si := range list {
		if si.Next.IsZero() {
			continue
		}
		if best.Next.IsZero() || si.Next.Before(best.Next) {
			best = si
		}
	}
	return best.Next, best.Name
}

// outboxPage renders one page of delivery history, newest first.
func (s *Status) outboxPage(index int) tgui.Message {
	var items []notifier.HistoryItem
	if s.Outbox != nil {
		items = s.Outbox.Snapshot()
	}
	rev := make([]notifier.HistoryItem, len(items))
	for i, it := range items {
		rev[len(items)-1-i] = it
	}
	page := tgui.Paginate(rev, index, outboxPageSize)

	out := tgui.New().Title("📬", "Исходящие уведомления")
	if page.Total == 0 {
		out.Line("Пока ничего не отправлено.")
	}
	for _, it := range page.Items {
		state := "✅"
		if it.Error != "" {
			state = "⚠️ " + tgui.TruncRunes(it.Error, 60)
		}
		out.KV(it.At.In(time.Local).Format("02.01 15:04:05")+" → "+strconv.FormatInt(it.ChatID, 10), state)
	}

	kb := tgui.NewInline()
	var nav []tele.Btn
	if page.HasPrev {
		nav = append(nav, tgui.Btn("◀️", tgui.Data(scopeStatus, "page", strconv.Itoa(page.Index-1))))
	}
	if page.Count > 1 {
		nav = append(nav, tgui.Btn(page.Label(), tgui.Data(scopeStatus, "page", strconv.Itoa(page.Index))))
	}
	if page.HasNext {
		nav = append(nav, tgui.Btn("▶️", tgui.Data(scopeStatus, "page", strconv.Itoa(page.Index+1))))
	}
	kb.Row(nav...)
	return out.Inline(kb).Build()
}

func (b *Bot) cmdStatus(ctx context.Context, req *router.Request) error {
	if err := b.send(ctx, req, b.status.render()); err != nil {
		return err
	}
	return b.send(ctx, req, b.status.outboxPage(0))
}

func (b *Bot) cbStatusPage(ctx context.Context, req *router.Request) error {
	n, err := strconv.Atoi(req.Payload)
	if err != nil {
		n = 0
	}
	return b.show(ctx, req, b.status.outboxPage(n))
}

func yesNo(v bool) string {
	if v {
		return "да"
	}
	return "нет"
}
