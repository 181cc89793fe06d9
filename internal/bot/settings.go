package bot

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"timetablebot/internal/favorites"
	"timetablebot/internal/transport/telegram/router"
	"timetablebot/pkg/tgui"
)

// pickerTimes are the hours offered by the notification time picker.
func pickerTimes() []string {
	out := make([]string, 0, 18)
	for h := 6; h <= 23; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h))
	}
	return out
}

func settingsCard(e favorites.Entry) tgui.Message {
	other := favorites.Today
	if e.Day() == favorites.Today {
		other = favorites.Tomorrow
	}
	kb := tgui.NewInline().
		Row(tgui.Btn("🕓 Выбрать время уведомлений", tgui.Data(scopeSet, "times", ""))).
		Row(tgui.Btn("📅 Присылать "+dayLabel(other), tgui.Data(scopeSet, "day", string(other)))).
		Row(tgui.Btn("🔕 Отключить уведомления", tgui.Data(scopeSet, "off", ""))).
		Row(tgui.Btn("⬅️ Назад", tgui.Data(scopeMenu, "main", "")))
	return tgui.New().
		HTML(textSettings).
		Blank().
		KV("Время", timesLabel(e)).
		KV("Расписание", dayLabel(e.Day())).
		Inline(kb).
		Build()
}

func timesCard(e favorites.Entry) tgui.Message {
	btns := make([]tele.Btn, 0, 18)
	for _, t := range pickerTimes() {
		label := t
		if e.HasTime(t) {
			label = "✅ " + t
		}
		btns = append(btns, tgui.Btn(label, tgui.Data(scopeSet, "time", t)))
	}
	kb := tgui.NewInline().Grid(3, btns).Row(tgui.Btn("📋 В меню", tgui.Data(scopeSet, "menu", "")))
	return tgui.New().Line(textTimes).Inline(kb).Build()
}

func (b *Bot) showSettings(ctx context.Context, req *router.Request) error {
	e, err := b.fav.Get(ctx, owner(req))
	if err != nil {
		return err
	}
	return b.show(ctx, req, settingsCard(e))
}

func (b *Bot) cmdSettings(ctx context.Context, req *router.Request) error {
	return b.showSettings(ctx, req)
}

func (b *Bot) cbSettings(ctx context.Context, req *router.Request) error {
	return b.showSettings(ctx, req)
}

func (b *Bot) cbTimes(ctx context.Context, req *router.Request) error {
	e, err := b.fav.Get(ctx, owner(req))
	if err != nil {
		return err
	}
	return b.show(ctx, req, timesCard(e))
}

func (b *Bot) cbToggleTime(ctx context.Context, req *router.Request) error {
	e, on, err := b.fav.ToggleNotifyTime(ctx, owner(req), req.Payload)
	if err != nil {
		_ = b.ad.AnswerCallback(ctx, req.CallbackID, textFailed)
		return err
	}
	b.resyncOwner(ctx, req)
	if on {
		_ = b.ad.AnswerCallback(ctx, req.CallbackID, "Включено: "+req.Payload)
	} else {
		_ = b.ad.AnswerCallback(ctx, req.CallbackID, "Выключено: "+req.Payload)
	}
	return b.show(ctx, req, timesCard(e))
}

func (b *Bot) cbToggleDay(ctx context.Context, req *router.Request) error {
	day, err := favorites.ParseDeliveryDay(req.Payload)
	if err != nil {
		return nil
	}
	e, err := b.fav.SetDeliveryDay(ctx, owner(req), day)
	if err != nil {
		_ = b.ad.AnswerCallback(ctx, req.CallbackID, textFailed)
		return err
	}
	// the target date is computed at fire time, so timers stay as they are
	return b.show(ctx, req, settingsCard(e))
}

func (b *Bot) cbDisableAsk(ctx context.Context, req *router.Request) error {
	kb := tgui.ConfirmInline(
		tgui.Btn("Да, отключить", tgui.Data(scopeSet, "offyes", "")),
		tgui.Btn("Нет", tgui.Data(scopeSet, "menu", "")),
	)
	return b.show(ctx, req, tgui.New().Line(textDisableAsk).Inline(kb).Build())
}

func (b *Bot) cbDisable(ctx context.Context, req *router.Request) error {
	if _, err := b.fav.ClearNotifyTimes(ctx, owner(req)); err != nil {
		_ = b.ad.AnswerCallback(ctx, req.CallbackID, textFailed)
		return err
	}
	b.resyncOwner(ctx, req)
	kb := tgui.NewInline().Row(tgui.Btn("⚙️ Настройки", tgui.Data(scopeSet, "menu", "")))
	return b.show(ctx, req, tgui.New().Line(textDisabled).Inline(kb).Build())
}
