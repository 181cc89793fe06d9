package notifier

import "time"

// Config controls the outbound message path.
type Config struct {
	RatePerSec  int
	SendTimeout time.Duration
	// DedupWindow suppresses an identical text to the same chat; 0 disables.
	DedupWindow time.Duration
	HistorySize int
}

type HistoryItem struct {
	At     time.Time
	ChatID int64
	Text   string
	Error  string
}

// Event is published on the bus for outbox lifecycle events.
type Event struct {
	ChatID int64     `json:"chat_id"`
	Key    string    `json:"key"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
