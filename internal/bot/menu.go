package bot

import (
	"context"

	"timetablebot/internal/timetable"
	"timetablebot/internal/transport/telegram/router"
	"timetablebot/pkg/tgui"
)

func mainMenu() tgui.Message {
	kb := tgui.NewInline().
		Row(tgui.Btn("📘 Группы", tgui.Data(scopeMenu, "groups", "")), tgui.Btn("👨‍🏫 Преподаватели", tgui.Data(scopeMenu, "teachers", ""))).
		Row(tgui.Btn("⭐ Избранное", tgui.Data(scopeMenu, "favorites", "")), tgui.Btn("⚙️ Настройки", tgui.Data(scopeMenu, "settings", ""))).
		Row(tgui.Btn("📚 Домашка", tgui.Data(scopeMenu, "homework", "")))
	return tgui.New().Line(textWelcome).Inline(kb).Build()
}

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	b.sessions.reset(req.Chat.ChatID)
	return b.send(ctx, req, mainMenu())
}

func (b *Bot) cbMainMenu(ctx context.Context, req *router.Request) error {
	b.sessions.update(req.Chat.ChatID, func(s *session) { s.step = stepIdle })
	return b.show(ctx, req, mainMenu())
}

func askEntityText(kind timetable.EntityKind, again bool) string {
	switch {
	case kind == timetable.EntityInstructor && again:
		return "Введите фамилию преподавателя ещё раз:"
	case kind == timetable.EntityInstructor:
		return "👨‍🏫 Введите <b>фамилию преподавателя</b> (например, Иванов):"
	case again:
		return "Введите название группы ещё раз:"
	default:
		return "👋 Введите <b>название группы</b> (например, БИ25-1):"
	}
}

func (b *Bot) askEntity(ctx context.Context, req *router.Request, kind timetable.EntityKind, again bool) error {
	b.sessions.update(req.Chat.ChatID, func(s *session) {
		s.step = stepAskEntity
		s.kind = kind
	})
	m := tgui.Message{Text: askEntityText(kind, again), Opt: htmlOpt()}
	if req.MessageID != 0 {
		return b.show(ctx, req, m)
	}
	return b.send(ctx, req, m)
}

func (b *Bot) cmdGroups(ctx context.Context, req *router.Request) error {
	if req.Args != "" {
		b.sessions.update(req.Chat.ChatID, func(s *session) { s.kind = timetable.EntityGroup })
		return b.lookup(ctx, req, timetable.EntityGroup, req.Args)
	}
	return b.askEntity(ctx, req, timetable.EntityGroup, false)
}

func (b *Bot) cmdTeachers(ctx context.Context, req *router.Request) error {
	if req.Args != "" {
		b.sessions.update(req.Chat.ChatID, func(s *session) { s.kind = timetable.EntityInstructor })
		return b.lookup(ctx, req, timetable.EntityInstructor, req.Args)
	}
	return b.askEntity(ctx, req, timetable.EntityInstructor, false)
}

func (b *Bot) cbAskEntity(ctx context.Context, req *router.Request) error {
	kind := timetable.EntityGroup
	if req.Command == "cb:"+scopeMenu+":teachers" {
		kind = timetable.EntityInstructor
	}
	return b.askEntity(ctx, req, kind, false)
}

func (b *Bot) cmdCancel(ctx context.Context, req *router.Request) error {
	b.sessions.reset(req.Chat.ChatID)
	return b.sendText(ctx, req, textCancelled)
}

func (b *Bot) cbCancel(ctx context.Context, req *router.Request) error {
	b.sessions.reset(req.Chat.ChatID)
	return b.show(ctx, req, tgui.Message{Text: textCancelled, Opt: htmlOpt()})
}

// onText routes free text by the chat's current step.
func (b *Bot) onText(ctx context.Context, req *router.Request) error {
	s := b.sessions.get(req.Chat.ChatID)
	switch s.step {
	case stepAskEntity:
		return b.lookup(ctx, req, s.kind, req.Text)
	case stepAskDate:
		return b.onDate(ctx, req, s)
	case stepHwGroup, stepHwSubject, stepHwDeadline, stepHwTask, stepHwAttachment:
		return b.onHomeworkInput(ctx, req, s)
	default:
		return b.sendText(ctx, req, textIdle)
	}
}
