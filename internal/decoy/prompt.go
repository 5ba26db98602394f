package decoy

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"hivetrap/internal/capture"
	"hivetrap/internal/config"
	"hivetrap/internal/model"
)

// Prompt is the generic line-oriented harvester used for lightweight
// telnet-like decoys on operator-chosen high ports: two prompts, two tokens,
// always denied.
type Prompt struct {
	rec     *capture.Recorder
	logger  *slog.Logger
	name    string
	service model.Service
	banner  string
	timeout time.Duration
}

func NewPrompt(cfg config.PromptDecoyConfig, timeout time.Duration, rec *capture.Recorder, logger *slog.Logger) *Prompt {
	name := cfg.Name
	if name == "" {
		name = "prompt"
	}
	service := model.Service(cfg.Service)
	switch service {
	case model.ServiceSSH, model.ServiceTelnet, model.ServiceFTP, model.ServiceHTTP, model.ServiceMySQL, model.ServiceRDP:
	default:
		service = model.ServiceTelnet
	}
	return &Prompt{rec: rec, logger: logger, name: name, service: service, banner: cfg.Banner, timeout: timeout}
}

func (p *Prompt) Name() string { return p.name }

func (p *Prompt) Handle(ctx context.Context, conn net.Conn) {
	ip := remoteIP(conn)
	p.rec.Record(ctx, model.AttackEvent{IP: ip, Service: p.service})

	if p.banner != "" {
		if _, err := fmt.Fprintf(conn, "%s\r\n", p.banner); err != nil {
			return
		}
	}

	reader := bufio.NewReaderSize(conn, 1024)

	username, ok := p.readToken(conn, reader, "login: ")
	if !ok {
		return
	}
	password, ok := p.readToken(conn, reader, "password: ")
	if !ok {
		return
	}

	p.rec.Record(ctx, model.AttackEvent{
		IP:       ip,
		Service:  p.service,
		Username: username,
		Password: password,
	})
	if p.logger != nil {
		p.logger.Info("credentials harvested", "decoy", p.name, "ip", ip, "username", username)
	}
	_, _ = fmt.Fprintf(conn, "Access denied\r\n")
}

func (p *Prompt) readToken(conn net.Conn, reader *bufio.Reader, prompt string) (string, bool) {
	if _, err := fmt.Fprint(conn, prompt); err != nil {
		return "", false
	}
	setReadDeadline(conn, p.timeout)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(line), true
}
