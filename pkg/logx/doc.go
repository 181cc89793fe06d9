// Package logx is the structured logging layer of the timetable bot.
//
// Logger wraps zerolog and keeps three outputs in sync with the config file:
//   - console (short timestamp + short caller)
//   - an append-only JSON file
//   - an optional Telegram log chat, filtered by level and rate limited
package logx
