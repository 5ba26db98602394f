package capture

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"hivetrap/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:honeypot-captures.db?_pragma=busy_timeout(5000)"
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
		`CREATE INDEX IF NOT EXISTS idx_attacks_ip ON attacks(ip)`,
		`CREATE INDEX IF NOT EXISTS idx_attacks_service ON attacks(service)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

func (s *sqliteStore) Append(ctx context.Context, ev model.AttackEvent) (int64, error) {
	if ev.Timestamp == "" {
		ev.Timestamp = nowISO()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attacks (timestamp, ip, service, username, password, command, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Timestamp, ev.IP, string(ev.Service), ev.Username, ev.Password, ev.Command, ev.Data,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

func (s *sqliteStore) ReadSince(ctx context.Context, minID int64) ([]model.AttackEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, ip, service, username, password, command, data
		FROM attacks WHERE id > ? ORDER BY id ASC`, minID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()
	var out []model.AttackEvent
	for rows.Next() {
		var ev model.AttackEvent
		var service string
		var username, password, command, data sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.IP, &service, &username, &password, &command, &data); err != nil {
			return nil, err
		}
		ev.Service = model.Service(service)
		ev.Username = username.String
		ev.Password = password.String
		ev.Command = command.String
		ev.Data = data.String
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}
