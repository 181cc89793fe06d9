// Package tgui holds small Telegram UI helpers: inline keyboards, callback
// data "scope:action:payload", HTML-safe text pieces, a message builder and
// a token store for payloads that do not fit in callback data.
package tgui
