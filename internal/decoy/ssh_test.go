package decoy

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"hivetrap/internal/config"
	"hivetrap/internal/model"
)

// sshTestConn accepts one loopback connection and runs Handle on it. The SSH
// version exchange writes from both ends at once, so these tests need a real
// socket rather than net.Pipe.
func sshTestConn(t *testing.T, d *SSH) (net.Conn, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		d.Handle(ctx, conn)
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	stop := func() {
		_ = client.Close()
		cancel()
		<-done
		_ = ln.Close()
	}
	return client, stop
}

func TestSSHHandleRecordsPasswordAttempt(t *testing.T) {
	rec, store := newTestRecorder()
	d, err := NewSSH(config.SSHDecoyConfig{Version: "SSH-2.0-OpenSSH_8.2p1"}, time.Second, rec, nil)
	if err != nil {
		t.Fatalf("new ssh decoy: %v", err)
	}

	client, stop := sshTestConn(t, d)

	clientCfg := &ssh.ClientConfig{
		User:            "root",
		Auth:            []ssh.AuthMethod{ssh.Password("secret123")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	if _, _, _, err := ssh.NewClientConn(client, "decoy", clientCfg); err == nil {
		t.Fatalf("authentication should always fail")
	}
	stop()

	events := store.snapshot()
	if len(events) != 2 {
		t.Fatalf("got %d events, want connect + login", len(events))
	}
	if events[0].Service != model.ServiceSSH || events[0].Username != "" {
		t.Fatalf("first event should be bare connection: %+v", events[0])
	}
	if events[1].Username != "root" || events[1].Password != "secret123" {
		t.Fatalf("login event = %+v", events[1])
	}
}

func TestSSHServerVersionAdvertised(t *testing.T) {
	rec, _ := newTestRecorder()
	d, err := NewSSH(config.SSHDecoyConfig{Version: "SSH-2.0-OpenSSH_7.4"}, time.Second, rec, nil)
	if err != nil {
		t.Fatalf("new ssh decoy: %v", err)
	}

	client, stop := sshTestConn(t, d)
	defer stop()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read version banner: %v", err)
	}
	if got := string(buf[:n]); !strings.HasPrefix(got, "SSH-2.0-OpenSSH_7.4") {
		t.Fatalf("banner = %q", got)
	}
}
