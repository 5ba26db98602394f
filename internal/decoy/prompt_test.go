package decoy

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"hivetrap/internal/config"
	"hivetrap/internal/model"
)

func readChunk(t *testing.T, conn net.Conn) string {
	t.Helper()
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(buf[:n])
}

func TestPromptHarvestsCredentials(t *testing.T) {
	rec, store := newTestRecorder()
	p := NewPrompt(config.PromptDecoyConfig{Name: "telnet-2323", Service: "telnet"}, time.Second, rec, nil)

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Handle(context.Background(), server)
	}()

	if got := readChunk(t, client); got != "login: " {
		t.Fatalf("first prompt = %q", got)
	}
	if _, err := client.Write([]byte("root\r\n")); err != nil {
		t.Fatalf("write username: %v", err)
	}
	if got := readChunk(t, client); got != "password: " {
		t.Fatalf("second prompt = %q", got)
	}
	if _, err := client.Write([]byte("toor\r\n")); err != nil {
		t.Fatalf("write password: %v", err)
	}
	if got := readChunk(t, client); !strings.HasPrefix(got, "Access denied") {
		t.Fatalf("final reply = %q", got)
	}
	<-done
	client.Close()
	server.Close()

	events := store.snapshot()
	if len(events) != 2 {
		t.Fatalf("got %d events, want connect + login", len(events))
	}
	if events[0].Service != model.ServiceTelnet {
		t.Fatalf("connect service = %q", events[0].Service)
	}
	if events[1].Username != "root" || events[1].Password != "toor" {
		t.Fatalf("login event = %+v", events[1])
	}
}

func TestPromptBannerAndServiceFallback(t *testing.T) {
	rec, store := newTestRecorder()
	p := NewPrompt(config.PromptDecoyConfig{Banner: "Ubuntu 20.04 LTS", Service: "gopher"}, time.Second, rec, nil)

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Handle(context.Background(), server)
	}()

	if got := readChunk(t, client); got != "Ubuntu 20.04 LTS\r\n" {
		t.Fatalf("banner = %q", got)
	}
	if got := readChunk(t, client); got != "login: " {
		t.Fatalf("prompt = %q", got)
	}
	client.Close()
	<-done
	server.Close()

	events := store.snapshot()
	if len(events) != 1 {
		t.Fatalf("got %d events, want connection attempt only", len(events))
	}
	if events[0].Service != model.ServiceTelnet {
		t.Fatalf("unknown service should fall back to telnet, got %q", events[0].Service)
	}
}
