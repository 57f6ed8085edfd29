// Package repository persists forwarded readings for the durable store and
// answers per-source time-range queries.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/gridedge/internal/domain/model"
)

// Stored is a persisted reading.
type Stored struct {
	ID int64 `json:"id"`
	model.StoreRecord
	ReceivedAt time.Time `json:"received_at"`
}

// Store provides read/write access to persisted readings.
type Store interface {
	// Save persists rec and returns its id.
	Save(ctx context.Context, rec model.StoreRecord) (int64, error)

	// Readings returns the readings of sourceID with a timestamp after
	// since, newest first.
	Readings(ctx context.Context, sourceID string, since time.Time) ([]Stored, error)

	// Prune deletes readings with a timestamp before cutoff and reports how
	// many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)

	// Count returns the number of readings held.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Check rejects records the store cannot key.
func Check(rec model.StoreRecord) error {
	switch {
	case strings.TrimSpace(rec.SourceID) == "":
		return fmt.Errorf("%w: source_id is empty", ErrInvalidRecord)
	case rec.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is missing", ErrInvalidRecord)
	}
	return nil
}
