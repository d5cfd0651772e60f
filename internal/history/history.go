// Package history records accepted transcripts so they can be listed after
// the fact. Two stores are provided: [MemoryStore] for a single process
// lifetime and [PostgresStore] for persistence.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is one accepted transcript.
type Entry struct {
	ID        string
	SessionID string
	Provider  string
	// Mode is "batch" or "streaming".
	Mode      string
	Text      string
	Duration  time.Duration
	CreatedAt time.Time
}

// Store persists transcript entries.
type Store interface {
	// Record appends e. An empty ID is replaced by a fresh UUID and a zero
	// CreatedAt by the current time.
	Record(ctx context.Context, e Entry) error

	// Recent returns at most limit entries, newest first. limit <= 0 returns
	// every retained entry.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// prepare fills the ID and CreatedAt defaults.
func prepare(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return e
}
