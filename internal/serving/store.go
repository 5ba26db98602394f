package serving

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"hivetrap/internal/model"
)

// Store is the read-optimized replica consumed by the query API. Only the
// sync engine writes to it. MaxID doubles as the replication watermark: ids
// are monotonic and never deleted, so MAX(id) identifies what has landed.
type Store interface {
	Init(ctx context.Context) error
	MaxID(ctx context.Context) (int64, error)
	InsertBatch(ctx context.Context, events []model.AttackEvent) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

func NewStore(driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres", "postgresql":
		return NewPostgres(dsn)
	default:
		return nil, errors.New("unsupported serving driver")
	}
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

func (b *baseStore) MaxID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := b.db.QueryRowContext(ctx, `SELECT MAX(id) FROM attacks`).Scan(&max); err != nil {
		return 0, err
	}
	return max.Int64, nil
}

func (b *baseStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attacks`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
