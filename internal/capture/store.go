package capture

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hivetrap/internal/model"
)

// ErrStoreUnavailable reports that the underlying storage cannot be reached.
// Callers fall back to the append-only file log and keep running.
var ErrStoreUnavailable = errors.New("capture store unavailable")

// Store is the append-only primary record of captured events. Appends from
// independent listener processes must not corrupt id ordering; ids strictly
// increase and are never reused.
type Store interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, ev model.AttackEvent) (int64, error)
	ReadSince(ctx context.Context, minID int64) ([]model.AttackEvent, error)
	Close() error
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
