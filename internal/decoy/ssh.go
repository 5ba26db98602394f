package decoy

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"hivetrap/internal/capture"
	"hivetrap/internal/config"
	"hivetrap/internal/model"
)

// SSH performs a real transport handshake and records every password
// attempt. Authentication always fails; the connection lingers briefly
// afterwards to extend engagement.
type SSH struct {
	rec     *capture.Recorder
	logger  *slog.Logger
	version string
	hostKey ssh.Signer
	timeout time.Duration
}

func NewSSH(cfg config.SSHDecoyConfig, timeout time.Duration, rec *capture.Recorder, logger *slog.Logger) (*SSH, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("host key signer: %w", err)
	}
	version := cfg.Version
	if version == "" {
		version = "SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.5"
	}
	return &SSH{rec: rec, logger: logger, version: version, hostKey: signer, timeout: timeout}, nil
}

func (s *SSH) Name() string { return "ssh" }

func (s *SSH) Handle(ctx context.Context, conn net.Conn) {
	ip := remoteIP(conn)
	s.rec.Record(ctx, model.AttackEvent{IP: ip, Service: model.ServiceSSH})

	serverCfg := &ssh.ServerConfig{
		ServerVersion: s.version,
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			s.rec.Record(ctx, model.AttackEvent{
				IP:       ip,
				Service:  model.ServiceSSH,
				Username: meta.User(),
				Password: string(password),
			})
			if s.logger != nil {
				s.logger.Info("ssh login attempt", "ip", ip, "username", meta.User())
			}
			return nil, fmt.Errorf("password auth failed for %q", meta.User())
		},
	}
	serverCfg.AddHostKey(s.hostKey)

	// The whole exchange is bounded, not just single reads: slow-loris
	// clients hit the deadline and only cost one goroutine.
	_ = conn.SetDeadline(time.Now().Add(3 * s.timeout))

	sconn, chans, reqs, err := ssh.NewServerConn(conn, serverCfg)
	if err != nil {
		// Expected: the client exhausts its attempts. Linger a moment so
		// scanners see a live service rather than an instant slam.
		s.linger(ctx, 2*time.Second)
		return
	}
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		_ = newCh.Reject(ssh.Prohibited, "administratively prohibited")
	}
	_ = sconn.Close()
}

func (s *SSH) linger(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
