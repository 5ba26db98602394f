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

// ftpMaxCommands bounds how long a granted session can run.
const ftpMaxCommands = 50

// FTP emulates just enough of RFC 959 to collect credentials. The
// always-grant policy keeps attackers engaged so post-login commands get
// captured too; flipping it denies every PASS instead.
type FTP struct {
	rec         *capture.Recorder
	logger      *slog.Logger
	banner      string
	alwaysGrant bool
	timeout     time.Duration
}

func NewFTP(cfg config.FTPDecoyConfig, timeout time.Duration, rec *capture.Recorder, logger *slog.Logger) *FTP {
	banner := cfg.Banner
	if banner == "" {
		banner = "Welcome to Corporate FTP Server"
	}
	return &FTP{rec: rec, logger: logger, banner: banner, alwaysGrant: cfg.AlwaysGrant, timeout: timeout}
}

func (f *FTP) Name() string { return "ftp" }

func (f *FTP) Handle(ctx context.Context, conn net.Conn) {
	ip := remoteIP(conn)
	f.rec.Record(ctx, model.AttackEvent{IP: ip, Service: model.ServiceFTP})

	if _, err := fmt.Fprintf(conn, "220 %s\r\n", f.banner); err != nil {
		return
	}

	reader := bufio.NewReaderSize(conn, 4096)
	var username string
	authed := false

	for i := 0; i < ftpMaxCommands; i++ {
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintf(conn, "421 Service closing control connection.\r\n")
			return
		default:
		}
		setReadDeadline(conn, f.timeout)
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		verb, arg := splitFTPCommand(line)

		switch verb {
		case "USER":
			username = arg
			_, _ = fmt.Fprintf(conn, "331 Username ok, send password.\r\n")
		case "PASS":
			f.rec.Record(ctx, model.AttackEvent{
				IP:       ip,
				Service:  model.ServiceFTP,
				Username: username,
				Password: arg,
			})
			if f.logger != nil {
				f.logger.Info("ftp login attempt", "ip", ip, "username", username)
			}
			if f.alwaysGrant {
				authed = true
				_, _ = fmt.Fprintf(conn, "230 Login successful.\r\n")
			} else {
				_, _ = fmt.Fprintf(conn, "530 Authentication failed.\r\n")
			}
		case "SYST":
			_, _ = fmt.Fprintf(conn, "215 UNIX Type: L8\r\n")
		case "TYPE":
			_, _ = fmt.Fprintf(conn, "200 Type set to %s.\r\n", arg)
		case "PWD":
			_, _ = fmt.Fprintf(conn, "257 \"/\" is the current directory.\r\n")
		case "FEAT":
			_, _ = fmt.Fprintf(conn, "211 End.\r\n")
		case "NOOP":
			_, _ = fmt.Fprintf(conn, "200 Ok.\r\n")
		case "QUIT":
			_, _ = fmt.Fprintf(conn, "221 Goodbye.\r\n")
			return
		case "":
			continue
		default:
			if authed {
				cmd := verb
				if arg != "" {
					cmd += " " + arg
				}
				f.rec.Record(ctx, model.AttackEvent{
					IP:       ip,
					Service:  model.ServiceFTP,
					Username: username,
					Command:  cmd,
				})
				_, _ = fmt.Fprintf(conn, "550 Permission denied.\r\n")
			} else {
				_, _ = fmt.Fprintf(conn, "530 Please login with USER and PASS.\r\n")
			}
		}
	}
	_, _ = fmt.Fprintf(conn, "421 Too many commands.\r\n")
}

func splitFTPCommand(line string) (verb, arg string) {
	line = strings.TrimRight(line, "\r\n")
	verb, arg, _ = strings.Cut(line, " ")
	return strings.ToUpper(strings.TrimSpace(verb)), strings.TrimSpace(arg)
}
