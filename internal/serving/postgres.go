package serving

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"hivetrap/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/hivetrap?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attacks (
			id BIGSERIAL PRIMARY KEY,
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

func (s *postgresStore) InsertBatch(ctx context.Context, events []model.AttackEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attacks (timestamp, ip, service, username, password, command, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
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
