// Package bot is the conversational layer: menus, timetable lookups,
// favorites, notification settings, homework and the admin /status card.
// It owns no persistent state of its own beyond in-memory chat sessions.
package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"timetablebot/internal/favorites"
	"timetablebot/internal/homework"
	"timetablebot/internal/timetable"
	kit "timetablebot/internal/transport"
	"timetablebot/internal/transport/telegram/router"
	"timetablebot/internal/upstream"
	logx "timetablebot/pkg/logx"
	"timetablebot/pkg/tgui"
)

type Searcher interface {
	Search(ctx context.Context, kind timetable.EntityKind, term string) ([]timetable.Entity, error)
}

type Timetables interface {
	FormatDay(ctx context.Context, e timetable.Entity, date time.Time) (string, error)
	FormatRange(ctx context.Context, e timetable.Entity, start, end time.Time) ([]timetable.Day, error)
}

type Favorites interface {
	Get(ctx context.Context, owner string) (favorites.Entry, error)
	Add(ctx context.Context, owner string, kind timetable.EntityKind, id, name string) (favorites.Entry, bool, error)
	Remove(ctx context.Context, owner string, kind timetable.EntityKind, id string) (favorites.Entry, bool, error)
	SetDeliveryDay(ctx context.Context, owner string, day favorites.DeliveryDay) (favorites.Entry, error)
	ToggleNotifyTime(ctx context.Context, owner, t string) (favorites.Entry, bool, error)
	ClearNotifyTimes(ctx context.Context, owner string) (favorites.Entry, error)
}

// Resyncer reconciles an owner's notification timers after a favorites change.
type Resyncer interface {
	ResyncOwner(ctx context.Context, owner string) (int, error)
}

type Homework interface {
	Add(ctx context.Context, e homework.Entry) (homework.Entry, error)
	ForGroup(ctx context.Context, group string) ([]homework.Entry, error)
}

type Deps struct {
	Adapter    kit.Adapter
	Search     Searcher
	Timetables Timetables
	Favorites  Favorites
	Resync     Resyncer
	Homework   Homework
	// Status renders the admin card; nil disables /status.
	Status *Status
}

type Options struct {
	Location   *time.Location
	SessionTTL time.Duration
	Now        func() time.Time
}

type Bot struct {
	ad       kit.Adapter
	search   Searcher
	tt       Timetables
	fav      Favorites
	resync   Resyncer
	hw       Homework
	status   *Status
	loc      atomic.Pointer[time.Location]
	now      func() time.Time
	sessions *sessions
	tokens   *tgui.TokenStore
	log      logx.Logger
}

func New(d Deps, opts Options, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	b := &Bot{
		ad:       d.Adapter,
		search:   d.Search,
		tt:       d.Timetables,
		fav:      d.Favorites,
		resync:   d.Resync,
		hw:       d.Homework,
		status:   d.Status,
		now:      opts.Now,
		sessions: newSessions(opts.SessionTTL, opts.Now),
		tokens:   tgui.NewTokenStore(opts.SessionTTL, 5000),
		log:      log.With(logx.String("comp", "bot")),
	}
	b.loc.Store(opts.Location)
	return b
}

// SetLocation switches the zone used for "today" after a config reload.
func (b *Bot) SetLocation(loc *time.Location) {
	if loc != nil {
		b.loc.Store(loc)
	}
}

func (b *Bot) today() time.Time {
	return timetable.Midnight(b.now().In(b.loc.Load()))
}

// Register installs commands, callbacks and the free-text handler on r.
func (b *Bot) Register(r *router.Router) {
	cmds := []router.Command{
		{Name: "start", Aliases: []string{"menu"}, Description: "главное меню", Handle: b.cmdStart},
		{Name: "groups", Description: "расписание группы", Handle: b.cmdGroups},
		{Name: "teachers", Description: "расписание преподавателя", Handle: b.cmdTeachers},
		{Name: "favorites", Description: "избранное", Handle: b.cmdFavorites},
		{Name: "settings", Description: "уведомления", Handle: b.cmdSettings},
		{Name: "homework", Description: "домашние задания", Handle: b.cmdHomework},
		{Name: "ics", Description: "календарь на неделю (.ics)", Timeout: time.Minute, Handle: b.cmdICS},
		{Name: "cancel", Description: "отменить ввод", Handle: b.cmdCancel},
	}
	if b.status != nil {
		cmds = append(cmds, router.Command{Name: "status", Description: "состояние бота", Access: router.AccessAdminOnly, Handle: b.cmdStatus})
	}
	cbs := []router.CallbackRoute{
		{Scope: scopeMenu, Action: "main", Handle: b.cbMainMenu},
		{Scope: scopeMenu, Action: "groups", Handle: b.cbAskEntity},
		{Scope: scopeMenu, Action: "teachers", Handle: b.cbAskEntity},
		{Scope: scopeMenu, Action: "favorites", Handle: b.cbFavorites},
		{Scope: scopeMenu, Action: "settings", Handle: b.cbSettings},
		{Scope: scopeMenu, Action: "homework", Handle: b.cbHomeworkMenu},

		{Scope: scopePick, Action: "entity", Handle: b.cbPickEntity},
		{Scope: scopePick, Action: "retry", Handle: b.cbRetry},

		{Scope: scopeRange, Action: "today", Timeout: time.Minute, Handle: b.cbDay},
		{Scope: scopeRange, Action: "tomorrow", Timeout: time.Minute, Handle: b.cbDay},
		{Scope: scopeRange, Action: "week", Timeout: 2 * time.Minute, Handle: b.cbWeek},
		{Scope: scopeRange, Action: "next", Timeout: 2 * time.Minute, Handle: b.cbWeek},
		{Scope: scopeRange, Action: "date", Handle: b.cbAskDate},
		{Scope: scopeRange, Action: "change", Handle: b.cbChange},
		{Scope: scopeRange, Action: "ics", Timeout: time.Minute, Handle: b.cbICS},
		{Scope: scopeRange, Action: "cancel", Handle: b.cbCancel},

		{Scope: scopeFav, Action: "add", Handle: b.cbFavAdd},
		{Scope: scopeFav, Action: "del", Handle: b.cbFavRemove},
		{Scope: scopeFav, Action: "drop", Handle: b.cbFavDrop},
		{Scope: scopeFav, Action: "open", Handle: b.cbFavOpen},

		{Scope: scopeSet, Action: "menu", Handle: b.cbSettings},
		{Scope: scopeSet, Action: "times", Handle: b.cbTimes},
		{Scope: scopeSet, Action: "time", Handle: b.cbToggleTime},
		{Scope: scopeSet, Action: "day", Handle: b.cbToggleDay},
		{Scope: scopeSet, Action: "off", Handle: b.cbDisableAsk},
		{Scope: scopeSet, Action: "offyes", Handle: b.cbDisable},

		{Scope: scopeHomework, Action: "view", Handle: b.cbHomeworkView},
		{Scope: scopeHomework, Action: "add", Handle: b.cbHomeworkAdd},
	}
	if b.status != nil {
		cbs = append(cbs, router.CallbackRoute{Scope: scopeStatus, Action: "page", Access: router.AccessAdminOnly, Handle: b.cbStatusPage})
	}
	r.Register(cmds, cbs, b.onText)
}

func owner(req *router.Request) string { return favorites.OwnerString(req.Chat.ChatID) }

func (b *Bot) send(ctx context.Context, req *router.Request, m tgui.Message) error {
	_, err := m.Send(ctx, b.ad, req.Chat)
	return err
}

func (b *Bot) sendText(ctx context.Context, req *router.Request, text string) error {
	_, err := b.ad.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

// show edits the callback's message in place, or sends a new one for commands.
func (b *Bot) show(ctx context.Context, req *router.Request, m tgui.Message) error {
	if req.MessageID != 0 {
		ref := kit.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: req.MessageID}
		if err := m.Edit(ctx, b.ad, ref); err == nil {
			return nil
		}
	}
	return b.send(ctx, req, m)
}

// userMessage picks the reply for a failed lookup.
func userMessage(err error) string {
	if errors.Is(err, upstream.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return textUnavailable
	}
	return textFailed
}
