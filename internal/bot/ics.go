package bot

import (
	"context"
	"fmt"

	"timetablebot/internal/export"
	"timetablebot/internal/timetable"
	kit "timetablebot/internal/transport"
	"timetablebot/internal/transport/telegram/router"
	logx "timetablebot/pkg/logx"
	"timetablebot/pkg/tgui"
)

const textNoWeekLessons = "Нет занятий на этой неделе."

func (b *Bot) cmdICS(ctx context.Context, req *router.Request) error {
	return b.sendCalendar(ctx, req)
}

func (b *Bot) cbICS(ctx context.Context, req *router.Request) error {
	return b.sendCalendar(ctx, req)
}

// sendCalendar exports the current week of the selected entity as .ics.
func (b *Bot) sendCalendar(ctx context.Context, req *router.Request) error {
	e, ok := b.current(ctx, req)
	if !ok {
		return nil
	}
	mon, sun := timetable.WeekBounds(b.today())
	days, err := b.tt.FormatRange(ctx, e, mon, sun)
	if err != nil {
		req.Logger.Warn("calendar lookup failed", logx.String("entity", e.ID), logx.Err(err))
		return b.sendText(ctx, req, userMessage(err))
	}
	data, events, skipped := export.Calendar(e, days, b.loc.Load(), b.now())
	if events == 0 {
		return b.sendText(ctx, req, textNoWeekLessons)
	}
	caption := fmt.Sprintf("📅 %s, %s–%s", tgui.TruncRunes(e.Label(), 60), humanDate(mon), humanDate(sun))
	if skipped > 0 {
		caption += fmt.Sprintf("\nБез времени, не добавлено: %d", skipped)
	}
	_, err = b.ad.SendDocument(ctx, req.Chat, kit.Document{
		FileName: export.FileName(e, mon),
		MIME:     "text/calendar",
		Data:     data,
		Caption:  caption,
	})
	return err
}
