package bot

import (
	"context"
	"errors"
	"strings"

	"timetablebot/internal/homework"
	kit "timetablebot/internal/transport"
	"timetablebot/internal/transport/telegram/router"
	"timetablebot/pkg/tgui"
)

func homeworkMenu() tgui.Message {
	kb := tgui.NewInline().
		Row(tgui.Btn("Посмотреть", tgui.Data(scopeHomework, "view", "")), tgui.Btn("Загрузить", tgui.Data(scopeHomework, "add", ""))).
		Row(tgui.Btn("⬅️ Назад", tgui.Data(scopeMenu, "main", "")))
	return tgui.New().Line(textHomeworkMenu).Inline(kb).Build()
}

func homeworkAfter() *tgui.Inline {
	return tgui.NewInline().Row(
		tgui.Btn("Добавить ДЗ", tgui.Data(scopeHomework, "add", "")),
		tgui.Btn("В меню", tgui.Data(scopeMenu, "main", "")),
	)
}

func (b *Bot) cmdHomework(ctx context.Context, req *router.Request) error {
	if g := strings.TrimSpace(req.Args); g != "" {
		return b.listHomework(ctx, req, g)
	}
	return b.send(ctx, req, homeworkMenu())
}

func (b *Bot) cbHomeworkMenu(ctx context.Context, req *router.Request) error {
	return b.show(ctx, req, homeworkMenu())
}

func (b *Bot) cbHomeworkView(ctx context.Context, req *router.Request) error {
	b.sessions.update(req.Chat.ChatID, func(s *session) {
		s.step, s.hwAdd = stepHwGroup, false
		s.draft = homework.Entry{}
	})
	return b.show(ctx, req, tgui.Message{Text: textHwAskGroup, Opt: htmlOpt()})
}

func (b *Bot) cbHomeworkAdd(ctx context.Context, req *router.Request) error {
	b.sessions.update(req.Chat.ChatID, func(s *session) {
		s.step, s.hwAdd = stepHwGroup, true
		s.draft = homework.Entry{CreatedBy: req.FromID}
	})
	return b.show(ctx, req, tgui.Message{Text: textHwAskGroup, Opt: htmlOpt()})
}

func (b *Bot) listHomework(ctx context.Context, req *router.Request, group string) error {
	entries, err := b.hw.ForGroup(ctx, group)
	if err != nil {
		return err
	}
	return b.send(ctx, req, tgui.Message{Text: homework.FormatList(group, entries), Opt: withMarkup(homeworkAfter())})
}

func withMarkup(kb *tgui.Inline) *kit.SendOptions {
	opt := htmlOpt()
	opt.ReplyMarkupAdapter = kb.Markup()
	return opt
}

func (b *Bot) onHomeworkInput(ctx context.Context, req *router.Request, s session) error {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return b.sendText(ctx, req, textHwEmptyInput)
	}
	switch s.step {
	case stepHwGroup:
		if !s.hwAdd {
			b.sessions.update(req.Chat.ChatID, func(s *session) { s.step = stepIdle })
			return b.listHomework(ctx, req, text)
		}
		s.draft.Group, s.step = text, stepHwSubject
		b.sessions.put(req.Chat.ChatID, s)
		return b.sendText(ctx, req, textHwAskSubject)
	case stepHwSubject:
		s.draft.Subject, s.step = text, stepHwDeadline
		b.sessions.put(req.Chat.ChatID, s)
		return b.sendText(ctx, req, textHwAskDeadline)
	case stepHwDeadline:
		dl, err := homework.ParseDeadline(text)
		if err != nil {
			return b.sendText(ctx, req, textHwBadDeadline)
		}
		s.draft.Deadline, s.step = dl, stepHwTask
		b.sessions.put(req.Chat.ChatID, s)
		return b.sendText(ctx, req, textHwAskTask)
	case stepHwTask:
		s.draft.Task, s.step = text, stepHwAttachment
		b.sessions.put(req.Chat.ChatID, s)
		return b.sendText(ctx, req, textHwAskAttach)
	}

	s.draft.Attachment = text
	saved, err := b.hw.Add(ctx, s.draft)
	b.sessions.update(req.Chat.ChatID, func(s *session) {
		s.step, s.hwAdd = stepIdle, false
		s.draft = homework.Entry{}
	})
	if err != nil {
		if errors.Is(err, homework.ErrMissingField) || errors.Is(err, homework.ErrBadDeadline) {
			return b.sendText(ctx, req, textFailed)
		}
		return err
	}
	return b.send(ctx, req, tgui.Message{
		Text: textHwSaved + "\n\n" + homework.FormatList(saved.Group, []homework.Entry{saved}),
		Opt:  withMarkup(homeworkAfter()),
	})
}
