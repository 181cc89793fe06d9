package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures one repository.
//
// Driver values:
//   - "file" (default): JSON map file at Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Records is a detached copy of a repository's contents.
type Records map[string]json.RawMessage

func (r Records) Clone() Records {
	out := make(Records, len(r))
	for k, v := range r {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Repository is the persistence API used by the favorites and homework stores.
type Repository interface {
	// Snapshot returns a copy of the last committed contents.
	Snapshot(ctx context.Context) (Records, error)
	// Update runs fn on a copy under the writer lock and commits the copy
	// atomically when fn returns nil. A non-nil error discards all changes.
	Update(ctx context.Context, fn func(Records) error) error
	Close() error
}
