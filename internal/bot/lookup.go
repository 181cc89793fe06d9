package bot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"timetablebot/internal/timetable"
	kit "timetablebot/internal/transport"
	"timetablebot/internal/transport/telegram/router"
	logx "timetablebot/pkg/logx"
	"timetablebot/pkg/tgui"
)

// maxCandidates caps the buttons offered for an ambiguous search.
const maxCandidates = 10

var dateInputRe = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)

func htmlOpt() *kit.SendOptions { return &kit.SendOptions{ParseMode: "HTML", DisablePreview: true} }

func notFoundText(kind timetable.EntityKind) string {
	if kind == timetable.EntityInstructor {
		return "Мы не нашли такого преподавателя. Пожалуйста, введите фамилию ещё раз."
	}
	return "Мы не нашли такую группу. Пожалуйста, введите название ещё раз."
}

func chosenText(e timetable.Entity) string {
	what := "группу"
	if e.Kind == timetable.EntityInstructor {
		what = "преподавателя"
	}
	return fmt.Sprintf("Вы выбрали %s: %s\nТеперь выберите период:", what, tgui.B(e.Label()))
}

// pickExact returns the single candidate to auto-select: the only
// case-insensitive exact match, else the only result.
func pickExact(term string, found []timetable.Entity) (timetable.Entity, bool) {
	term = strings.ToLower(strings.TrimSpace(term))
	var exact []timetable.Entity
	for _, e := range found {
		if strings.ToLower(strings.TrimSpace(e.Name)) == term {
			exact = append(exact, e)
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0], true
	case len(found) == 1:
		return found[0], true
	}
	return timetable.Entity{}, false
}

func (b *Bot) lookup(ctx context.Context, req *router.Request, kind timetable.EntityKind, term string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return b.sendText(ctx, req, askEntityText(kind, true))
	}
	found, err := b.search.Search(ctx, kind, term)
	if err != nil {
		req.Logger.Warn("search failed", logx.String("term", term), logx.Err(err))
		if msg := userMessage(err); msg == textUnavailable {
			return b.sendText(ctx, req, msg)
		}
		return b.sendText(ctx, req, textSearchFail)
	}
	if len(found) == 0 {
		return b.sendText(ctx, req, notFoundText(kind))
	}
	if e, ok := pickExact(term, found); ok {
		return b.choose(ctx, req, e)
	}

	kb := tgui.NewInline()
	for _, e := range found[:min(len(found), maxCandidates)] {
		tok, err := b.tokens.PutJSON(e)
		if err != nil {
			return err
		}
		kb.Row(tgui.Btn(tgui.TruncRunes(e.Label(), 60), tgui.Data(scopePick, "entity", tok)))
	}
	kb.Row(tgui.Btn("Ввести заново", tgui.Data(scopePick, "retry", "")))
	return b.send(ctx, req, tgui.Message{Text: textManyFound, Opt: &kit.SendOptions{ReplyMarkupAdapter: kb.Markup()}})
}

func (b *Bot) choose(ctx context.Context, req *router.Request, e timetable.Entity) error {
	b.sessions.update(req.Chat.ChatID, func(s *session) {
		s.step = stepIdle
		s.kind = e.Kind
		s.entity = &e
	})
	return b.show(ctx, req, tgui.Message{Text: chosenText(e), Opt: b.rangesOpt(ctx, req, e)})
}

func (b *Bot) cbPickEntity(ctx context.Context, req *router.Request) error {
	var e timetable.Entity
	if err := b.tokens.GetJSON(req.Payload, &e); err != nil || !e.Kind.Valid() {
		b.sessions.update(req.Chat.ChatID, func(s *session) { s.step = stepAskEntity })
		return b.show(ctx, req, tgui.Message{Text: textPickExpired, Opt: htmlOpt()})
	}
	return b.choose(ctx, req, e)
}

func (b *Bot) cbRetry(ctx context.Context, req *router.Request) error {
	s := b.sessions.get(req.Chat.ChatID)
	return b.askEntity(ctx, req, s.kind, true)
}

// rangesKeyboard is shown under every timetable reply. The favorites button
// reflects whether e is already saved.
func rangesKeyboard(e timetable.Entity, saved bool) *tgui.Inline {
	change := "Изменить группу"
	if e.Kind == timetable.EntityInstructor {
		change = "Изменить преподавателя"
	}
	fav := tgui.Btn("⭐ В избранное", tgui.Data(scopeFav, "add", ""))
	if saved {
		fav = tgui.Btn("✖ Убрать из избранного", tgui.Data(scopeFav, "drop", ""))
	}
	return tgui.NewInline().
		Row(tgui.Btn("Сегодня", tgui.Data(scopeRange, "today", "")), tgui.Btn("Завтра", tgui.Data(scopeRange, "tomorrow", ""))).
		Row(tgui.Btn("На неделю", tgui.Data(scopeRange, "week", "")), tgui.Btn("След. неделя", tgui.Data(scopeRange, "next", ""))).
		Row(tgui.Btn("Выбрать дату", tgui.Data(scopeRange, "date", "")), tgui.Btn(change, tgui.Data(scopeRange, "change", ""))).
		Row(fav, tgui.Btn("📅 .ics", tgui.Data(scopeRange, "ics", ""))).
		Row(tgui.Btn("Отмена", tgui.Data(scopeRange, "cancel", "")))
}

func (b *Bot) rangesOpt(ctx context.Context, req *router.Request, e timetable.Entity) *kit.SendOptions {
	saved := false
	if entry, err := b.fav.Get(ctx, owner(req)); err == nil {
		saved = entry.Has(e.Kind, e.ID)
	}
	opt := htmlOpt()
	opt.ReplyMarkupAdapter = rangesKeyboard(e, saved).Markup()
	return opt
}

// current returns the chat's selected entity or tells the user to pick one.
func (b *Bot) current(ctx context.Context, req *router.Request) (timetable.Entity, bool) {
	s := b.sessions.get(req.Chat.ChatID)
	if s.entity == nil {
		_ = b.sendText(ctx, req, textNoEntity)
		return timetable.Entity{}, false
	}
	return *s.entity, true
}

func (b *Bot) sendDay(ctx context.Context, req *router.Request, e timetable.Entity, date time.Time) error {
	text, err := b.tt.FormatDay(ctx, e, date)
	if err != nil {
		req.Logger.Warn("day lookup failed", logx.String("entity", e.ID), logx.Err(err))
		text = userMessage(err)
	}
	_, err = b.ad.SendText(ctx, req.Chat, text, b.rangesOpt(ctx, req, e))
	return err
}

func (b *Bot) cbDay(ctx context.Context, req *router.Request) error {
	e, ok := b.current(ctx, req)
	if !ok {
		return nil
	}
	date := b.today()
	if strings.HasSuffix(req.Command, ":tomorrow") {
		date = date.AddDate(0, 0, 1)
	}
	return b.sendDay(ctx, req, e, date)
}

func humanDate(t time.Time) string { return t.Format("02.01.2006") }

// cbWeek sends a header, then one message per day that has lessons (or
// failed to load), then the range keyboard again.
func (b *Bot) cbWeek(ctx context.Context, req *router.Request) error {
	e, ok := b.current(ctx, req)
	if !ok {
		return nil
	}
	next := strings.HasSuffix(req.Command, ":next")
	ref := b.today()
	what, none := "на неделю", "Нет занятий на этой неделе."
	if next {
		ref = ref.AddDate(0, 0, 7)
		what, none = "на след. неделю", "Нет занятий на следующей неделе."
	}
	mon, sun := timetable.WeekBounds(ref)

	days, err := b.tt.FormatRange(ctx, e, mon, sun)
	if err != nil {
		req.Logger.Warn("week lookup failed", logx.String("entity", e.ID), logx.Err(err))
		_, err = b.ad.SendText(ctx, req.Chat, userMessage(err), b.rangesOpt(ctx, req, e))
		return err
	}

	header := fmt.Sprintf("%s\n\n%s", tgui.B(fmt.Sprintf("Расписание для %s %s (%s–%s)", e.Label(), what, humanDate(mon), humanDate(sun))), textSending)
	if err := b.sendText(ctx, req, header); err != nil {
		return err
	}
	sent := 0
	for _, d := range days {
		if d.Err == nil && len(d.Lessons) == 0 {
			continue
		}
		if err := b.sendText(ctx, req, d.Text); err != nil {
			return err
		}
		sent++
	}
	if sent == 0 {
		if err := b.sendText(ctx, req, none); err != nil {
			return err
		}
	}
	_, err = b.ad.SendText(ctx, req.Chat, textChooseRange, b.rangesOpt(ctx, req, e))
	return err
}

func (b *Bot) cbAskDate(ctx context.Context, req *router.Request) error {
	if _, ok := b.current(ctx, req); !ok {
		return nil
	}
	b.sessions.update(req.Chat.ChatID, func(s *session) { s.step = stepAskDate })
	return b.sendText(ctx, req, textAskDate)
}

// parseDateInput accepts D.M.YYYY; bad shape and impossible dates are
// reported separately.
func parseDateInput(s string, loc *time.Location) (time.Time, string) {
	m := dateInputRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, textBadDate
	}
	d, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	y, _ := strconv.Atoi(m[3])
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
	if t.Day() != d || int(t.Month()) != mo || t.Year() != y {
		return time.Time{}, textNoSuchDate
	}
	return t, ""
}

func (b *Bot) onDate(ctx context.Context, req *router.Request, s session) error {
	date, problem := parseDateInput(req.Text, b.loc.Load())
	if problem != "" {
		return b.sendText(ctx, req, problem)
	}
	if s.entity == nil {
		b.sessions.reset(req.Chat.ChatID)
		return b.sendText(ctx, req, textNoEntity)
	}
	b.sessions.update(req.Chat.ChatID, func(s *session) { s.step = stepIdle })
	return b.sendDay(ctx, req, *s.entity, date)
}

func (b *Bot) cbChange(ctx context.Context, req *router.Request) error {
	s := b.sessions.update(req.Chat.ChatID, func(s *session) { s.step = stepAskEntity })
	text := "Введите новое название группы:"
	if s.kind == timetable.EntityInstructor {
		text = "Введите фамилию другого преподавателя:"
	}
	return b.sendText(ctx, req, text)
}
