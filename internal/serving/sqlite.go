package serving

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"hivetrap/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:honeypot.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attacks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			ip TEXT NOT NULL,
			service TEXT NOT NULL,
			username TEXT,
			password TEXT,
			command TEXT,
			data TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attacks_service ON attacks(service)`,
		`CREATE INDEX IF NOT EXISTS idx_attacks_timestamp ON attacks(timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertBatch lands a whole sync cycle as one transaction. The target id is
// auto-assigned; source ids never cross the store boundary.
func (s *sqliteStore) InsertBatch(ctx context.Context, events []model.AttackEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attacks (timestamp, ip, service, username, password, command, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.Timestamp, ev.IP, string(ev.Service), ev.Username, ev.Password, ev.Command, ev.Data,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
