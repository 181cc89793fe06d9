package bot

import (
	"context"
	"strings"

	"timetablebot/internal/favorites"
	"timetablebot/internal/timetable"
	"timetablebot/internal/transport/telegram/router"
	logx "timetablebot/pkg/logx"
	"timetablebot/pkg/tgui"
)

// favPayload is "g:<id>" or "i:<id>".
func favPayload(e timetable.Entity) string {
	if e.Kind == timetable.EntityInstructor {
		return "i:" + e.ID
	}
	return "g:" + e.ID
}

func parseFavPayload(p string) (timetable.EntityKind, string, bool) {
	k, id, ok := strings.Cut(p, ":")
	if !ok || id == "" {
		return "", "", false
	}
	switch k {
	case "g":
		return timetable.EntityGroup, id, true
	case "i":
		return timetable.EntityInstructor, id, true
	}
	return "", "", false
}

func dayLabel(d favorites.DeliveryDay) string {
	if d == favorites.Today {
		return "на сегодня"
	}
	return "на завтра"
}

func names(items []favorites.Item) string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		name := it.Name
		if name == "" {
			name = it.ID
		}
		out = append(out, name)
	}
	return strings.Join(out, ", ")
}

func timesLabel(e favorites.Entry) string {
	if len(e.NotifyTimes) == 0 {
		return "выключены"
	}
	return strings.Join(e.NotifyTimes, ", ")
}

// favoritesCard lists saved entities with open/remove buttons.
func favoritesCard(e favorites.Entry) tgui.Message {
	back := tgui.Btn("⬅️ Назад", tgui.Data(scopeMenu, "main", ""))
	if e.Inert() {
		return tgui.New().Line(textNoFavorites).Inline(tgui.NewInline().Row(back)).Build()
	}
	m := tgui.New().Title("⭐", "Избранное")
	if len(e.Groups) > 0 {
		m.KV("Группы", names(e.Groups))
	}
	if len(e.Instructors) > 0 {
		m.KV("Преподаватели", names(e.Instructors))
	}
	m.Blank().
		KV("Время уведомлений", timesLabel(e)).
		KV("Расписание", dayLabel(e.Day()))

	kb := tgui.NewInline()
	for _, f := range e.Favorites() {
		data := favPayload(f)
		open, del := tgui.Data(scopeFav, "open", data), tgui.Data(scopeFav, "del", data)
		if !tgui.Fits(open) || !tgui.Fits(del) {
			continue
		}
		kb.Row(tgui.Btn(tgui.TruncRunes(f.Label(), 40), open), tgui.Btn("✖", del))
	}
	kb.Row(tgui.Btn("⚙️ Настройки", tgui.Data(scopeMenu, "settings", "")), back)
	return m.Inline(kb).Build()
}

func (b *Bot) showFavorites(ctx context.Context, req *router.Request) error {
	e, err := b.fav.Get(ctx, owner(req))
	if err != nil {
		return err
	}
	return b.show(ctx, req, favoritesCard(e))
}

func (b *Bot) cmdFavorites(ctx context.Context, req *router.Request) error {
	return b.showFavorites(ctx, req)
}

func (b *Bot) cbFavorites(ctx context.Context, req *router.Request) error {
	return b.showFavorites(ctx, req)
}

// resync reconciles timers after a change; failures are logged only because
// the favorites write already succeeded and the next restart resyncs anyway.
func (b *Bot) resyncOwner(ctx context.Context, req *router.Request) {
	if b.resync == nil {
		return
	}
	if _, err := b.resync.ResyncOwner(ctx, owner(req)); err != nil {
		req.Logger.Warn("resync failed", logx.Err(err))
	}
}

func (b *Bot) cbFavAdd(ctx context.Context, req *router.Request) error {
	e, ok := b.current(ctx, req)
	if !ok {
		return nil
	}
	entry, added, err := b.fav.Add(ctx, owner(req), e.Kind, e.ID, e.Label())
	if err != nil {
		_ = b.ad.AnswerCallback(ctx, req.CallbackID, textFailed)
		return err
	}
	b.resyncOwner(ctx, req)
	if !added {
		_ = b.ad.AnswerCallback(ctx, req.CallbackID, "Уже в избранном")
		return nil
	}
	_ = b.ad.AnswerCallback(ctx, req.CallbackID, "Добавлено в избранное")
	text := "⭐ " + tgui.B(e.Label()).String() + " в избранном.\n" +
		"Уведомления: " + tgui.Esc(timesLabel(entry)).String() + ", расписание " + dayLabel(entry.Day()) + "."
	return b.sendText(ctx, req, text)
}

func (b *Bot) remove(ctx context.Context, req *router.Request, kind timetable.EntityKind, id string) (favorites.Entry, bool, error) {
	entry, removed, err := b.fav.Remove(ctx, owner(req), kind, id)
	if err != nil {
		_ = b.ad.AnswerCallback(ctx, req.CallbackID, textFailed)
		return entry, false, err
	}
	if removed {
		b.resyncOwner(ctx, req)
		_ = b.ad.AnswerCallback(ctx, req.CallbackID, "Удалено из избранного")
	}
	return entry, removed, nil
}

// cbFavRemove is the ✖ on the favorites card; the card is redrawn.
func (b *Bot) cbFavRemove(ctx context.Context, req *router.Request) error {
	kind, id, ok := parseFavPayload(req.Payload)
	if !ok {
		return nil
	}
	entry, _, err := b.remove(ctx, req, kind, id)
	if err != nil {
		return err
	}
	return b.show(ctx, req, favoritesCard(entry))
}

// cbFavDrop is the remove button under a timetable reply.
func (b *Bot) cbFavDrop(ctx context.Context, req *router.Request) error {
	e, ok := b.current(ctx, req)
	if !ok {
		return nil
	}
	_, removed, err := b.remove(ctx, req, e.Kind, e.ID)
	if err != nil || !removed {
		return err
	}
	return b.sendText(ctx, req, "✖ "+tgui.B(e.Label()).String()+" удалено из избранного.")
}

func (b *Bot) cbFavOpen(ctx context.Context, req *router.Request) error {
	kind, id, ok := parseFavPayload(req.Payload)
	if !ok {
		return nil
	}
	entry, err := b.fav.Get(ctx, owner(req))
	if err != nil {
		return err
	}
	for _, f := range entry.Favorites() {
		if f.Kind == kind && f.ID == id {
			return b.choose(ctx, req, f)
		}
	}
	return b.show(ctx, req, favoritesCard(entry))
}
