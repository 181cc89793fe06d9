// Package scheduler registers named triggers (daily cron entries and
// one-shot timers) and enqueues their jobs into the task engine.
//
// Names are unique across both kinds: adding a trigger under an existing
// name replaces it. The scheduler keeps no state on disk; callers rebuild
// triggers from their own persisted data on start.
package scheduler
