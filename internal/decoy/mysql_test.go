package decoy

import (
	"context"
	"net"
	"testing"
	"time"

	"hivetrap/internal/config"
	"hivetrap/internal/model"
)

func TestParseLoginUsername(t *testing.T) {
	packet := make([]byte, loginUsernameOffset)
	packet = append(packet, []byte("root")...)
	packet = append(packet, 0x00)
	packet = append(packet, []byte("extra auth data")...)

	username, ok := ParseLoginUsername(packet)
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if username != "root" {
		t.Fatalf("username = %q, want root", username)
	}
}

func TestParseLoginUsernameShortPacket(t *testing.T) {
	for _, n := range []int{0, 1, 20, loginUsernameOffset} {
		if _, ok := ParseLoginUsername(make([]byte, n)); ok {
			t.Fatalf("packet of %d bytes should not parse", n)
		}
	}
}

func TestParseLoginUsernameUnterminated(t *testing.T) {
	packet := make([]byte, loginUsernameOffset)
	packet = append(packet, []byte("root")...)
	if _, ok := ParseLoginUsername(packet); ok {
		t.Fatalf("unterminated username should not parse")
	}
}

func TestMySQLHandshakeFormat(t *testing.T) {
	rec, _ := newTestRecorder()
	m := NewMySQL(config.MySQLDecoyConfig{ServerVersion: "8.0.25"}, time.Second, rec, nil)
	packet := m.handshakePacket()

	if len(packet) < 5 {
		t.Fatalf("handshake too short: %d bytes", len(packet))
	}
	payloadLen := int(packet[0]) | int(packet[1])<<8 | int(packet[2])<<16
	if payloadLen != len(packet)-4 {
		t.Fatalf("header length %d does not match payload %d", payloadLen, len(packet)-4)
	}
	if packet[3] != 0 {
		t.Fatalf("sequence = %d, want 0", packet[3])
	}
	if packet[4] != 0x0a {
		t.Fatalf("protocol version = %#x, want 0x0a", packet[4])
	}
	if string(packet[5:11]) != "8.0.25" {
		t.Fatalf("version string not at expected offset: %q", packet[5:11])
	}
}

func TestMySQLHandleRecordsUsername(t *testing.T) {
	rec, store := newTestRecorder()
	m := NewMySQL(config.MySQLDecoyConfig{}, time.Second, rec, nil)

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Handle(context.Background(), server)
	}()

	buf := make([]byte, 4096)
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("read handshake: %v", err)
	}

	login := make([]byte, loginUsernameOffset)
	login = append(login, []byte("admin")...)
	login = append(login, 0x00)
	if _, err := client.Write(login); err != nil {
		t.Fatalf("write login: %v", err)
	}
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("read denial: %v", err)
	}
	<-done
	client.Close()
	server.Close()

	events := store.snapshot()
	if len(events) != 2 {
		t.Fatalf("got %d events, want connect + login", len(events))
	}
	if events[0].Service != model.ServiceMySQL || events[0].Username != "" {
		t.Fatalf("first event should be bare connection: %+v", events[0])
	}
	if events[1].Username != "admin" {
		t.Fatalf("login username = %q, want admin", events[1].Username)
	}
}

func TestMySQLHandleShortPacketStillRecordsConnection(t *testing.T) {
	rec, store := newTestRecorder()
	m := NewMySQL(config.MySQLDecoyConfig{}, time.Second, rec, nil)

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Handle(context.Background(), server)
	}()

	buf := make([]byte, 4096)
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("read handshake: %v", err)
	}
	if _, err := client.Write(make([]byte, 10)); err != nil {
		t.Fatalf("write short packet: %v", err)
	}
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("read denial: %v", err)
	}
	<-done
	client.Close()
	server.Close()

	events := store.snapshot()
	if len(events) != 1 {
		t.Fatalf("got %d events, want exactly one connection attempt", len(events))
	}
	if events[0].Username != "" || events[0].Password != "" {
		t.Fatalf("short packet must not produce credentials: %+v", events[0])
	}
}
