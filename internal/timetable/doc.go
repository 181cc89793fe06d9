// Package timetable turns raw upstream lesson records into display-ready day blocks.
//
// Normalize maps one record to a Lesson through a per-entity adapter, BellSchedule
// numbers class slots, Formatter renders a day, and Aggregator walks a date range.
// Everything here is pure or holds only immutable state and is safe for concurrent use.
package timetable
