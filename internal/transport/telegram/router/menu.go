package router

import (
	"context"
	"html"
	"sort"
	"strings"

	kit "timetablebot/internal/transport"
)

// sanitizeCommand maps a name to Telegram's command alphabet [a-z0-9_]{1,32}.
func sanitizeCommand(s string) string {
	s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "/")))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == ' ':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

func (r *Router) visible() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.ordered))
	for _, c := range r.ordered {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

// menu lists public commands first, admin ones after, each in registration order.
func (r *Router) menu() []kit.BotCommand {
	cmds := r.visible()
	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].Access < cmds[j].Access })
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if c.Access == AccessAdminOnly {
			desc = "🔒 " + desc
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: desc})
	}
	return out
}

func (r *Router) helpText(admin bool) string {
	lines := []string{"📚 <b>Команды</b>", ""}
	for _, c := range r.visible() {
		if c.Access == AccessAdminOnly && !admin {
			continue
		}
		line := "/" + c.Name
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + html.EscapeString(d)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	_, err := r.adapter.SendText(ctx, req.Chat, r.helpText(r.IsAdmin(req.FromID)), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}
