package syncer

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"hivetrap/internal/capture"
	"hivetrap/internal/model"
	"hivetrap/internal/serving"
)

func newStores(t *testing.T) (capture.Store, serving.Store, string) {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	source, err := capture.NewSQLite("file:" + filepath.Join(dir, "captures.db"))
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	t.Cleanup(func() { _ = source.Close() })
	if err := source.Init(ctx); err != nil {
		t.Fatalf("init source: %v", err)
	}

	servingPath := filepath.Join(dir, "honeypot.db")
	target, err := serving.NewStore("sqlite", "file:"+servingPath)
	if err != nil {
		t.Fatalf("open target: %v", err)
	}
	t.Cleanup(func() { _ = target.Close() })
	if err := target.Init(ctx); err != nil {
		t.Fatalf("init target: %v", err)
	}
	return source, target, servingPath
}

func TestCycleCopiesNewRows(t *testing.T) {
	source, target, servingPath := newStores(t)
	ctx := context.Background()

	events := []model.AttackEvent{
		{IP: "45.95.147.200", Service: model.ServiceSSH, Username: "root", Password: "admin123"},
		{IP: "198.51.100.7", Service: model.ServiceFTP, Username: "anonymous", Password: "guest"},
		{IP: "203.0.113.50", Service: model.ServiceRDP, Data: "030000130ed0"},
	}
	for _, ev := range events {
		if _, err := source.Append(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	s := New(source, target, 0, nil)
	n, err := s.Cycle(ctx)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if n != 3 {
		t.Fatalf("copied %d rows, want 3", n)
	}
	count, err := target.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("target has %d rows, want 3", count)
	}

	db, err := sql.Open("sqlite", "file:"+servingPath)
	if err != nil {
		t.Fatalf("open target db: %v", err)
	}
	defer db.Close()
	var ip, username, password string
	if err := db.QueryRow(
		`SELECT ip, username, password FROM attacks ORDER BY id ASC LIMIT 1`,
	).Scan(&ip, &username, &password); err != nil {
		t.Fatalf("query target: %v", err)
	}
	if ip != "45.95.147.200" || username != "root" || password != "admin123" {
		t.Fatalf("row fields not preserved: %s %s %s", ip, username, password)
	}
}

func TestCycleIsIdempotent(t *testing.T) {
	source, target, _ := newStores(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := source.Append(ctx, model.AttackEvent{IP: "192.0.2.1", Service: model.ServiceHTTP}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	s := New(source, target, 0, nil)
	if n, err := s.Cycle(ctx); err != nil || n != 4 {
		t.Fatalf("first cycle: n=%d err=%v", n, err)
	}
	if n, err := s.Cycle(ctx); err != nil || n != 0 {
		t.Fatalf("second cycle should copy nothing: n=%d err=%v", n, err)
	}
	count, err := target.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 4 {
		t.Fatalf("target has %d rows, want 4", count)
	}
}

func TestCyclePicksUpLaterAppends(t *testing.T) {
	source, target, _ := newStores(t)
	ctx := context.Background()

	if _, err := source.Append(ctx, model.AttackEvent{IP: "192.0.2.1", Service: model.ServiceSSH}); err != nil {
		t.Fatalf("append: %v", err)
	}
	s := New(source, target, 0, nil)
	if n, err := s.Cycle(ctx); err != nil || n != 1 {
		t.Fatalf("first cycle: n=%d err=%v", n, err)
	}

	for i := 0; i < 2; i++ {
		if _, err := source.Append(ctx, model.AttackEvent{IP: "192.0.2.2", Service: model.ServiceMySQL}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if n, err := s.Cycle(ctx); err != nil || n != 2 {
		t.Fatalf("incremental cycle: n=%d err=%v", n, err)
	}
	count, err := target.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("target has %d rows, want 3", count)
	}
}
