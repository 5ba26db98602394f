package decoy

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"time"

	"hivetrap/internal/capture"
	"hivetrap/internal/config"
	"hivetrap/internal/model"
)

// loginUsernameOffset is where the null-terminated username starts in a
// HandshakeResponse41 packet: 4 header + 4 capability + 4 max-packet +
// 1 charset + 23 reserved bytes.
const loginUsernameOffset = 36

type MySQL struct {
	rec     *capture.Recorder
	logger  *slog.Logger
	version string
	timeout time.Duration
}

func NewMySQL(cfg config.MySQLDecoyConfig, timeout time.Duration, rec *capture.Recorder, logger *slog.Logger) *MySQL {
	version := cfg.ServerVersion
	if version == "" {
		version = "8.0.25"
	}
	return &MySQL{rec: rec, logger: logger, version: version, timeout: timeout}
}

func (m *MySQL) Name() string { return "mysql" }

func (m *MySQL) Handle(ctx context.Context, conn net.Conn) {
	ip := remoteIP(conn)
	m.rec.Record(ctx, model.AttackEvent{IP: ip, Service: model.ServiceMySQL})

	if _, err := conn.Write(m.handshakePacket()); err != nil {
		return
	}

	setReadDeadline(conn, m.timeout)
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}

	username, ok := ParseLoginUsername(buf[:n])
	if !ok {
		// Packet too short or unterminated: already covered by the
		// connection-attempt event, never a parse failure.
		if m.logger != nil {
			m.logger.Info("mysql connection without parsable credentials", "ip", ip)
		}
		_, _ = conn.Write(accessDeniedPacket("unknown", ip))
		return
	}

	m.rec.Record(ctx, model.AttackEvent{
		IP:       ip,
		Service:  model.ServiceMySQL,
		Username: username,
	})
	if m.logger != nil {
		m.logger.Info("mysql login attempt", "ip", ip, "username", username)
	}
	_, _ = conn.Write(accessDeniedPacket(username, ip))
}

// ParseLoginUsername extracts the null-terminated username from a client
// login packet. Anything too short to contain the field reports false.
func ParseLoginUsername(data []byte) (string, bool) {
	if len(data) <= loginUsernameOffset {
		return "", false
	}
	end := bytes.IndexByte(data[loginUsernameOffset:], 0x00)
	if end < 0 {
		return "", false
	}
	return string(data[loginUsernameOffset : loginUsernameOffset+end]), true
}

// handshakePacket is a protocol version 10 server greeting with fixed
// capability, charset and status bytes. Enough to make clients send their
// login packet; nothing more.
func (m *MySQL) handshakePacket() []byte {
	p := []byte{0x0a}
	p = append(p, []byte(m.version)...)
	p = append(p, 0x00)
	p = append(p, make([]byte, 4)...)  // connection id
	p = append(p, make([]byte, 8)...)  // auth plugin data part 1
	p = append(p, 0x00)                // filler
	p = append(p, 0xff, 0xf7)          // capability flags
	p = append(p, 0x21)                // charset
	p = append(p, 0x02, 0x00)          // status flags
	p = append(p, 0xff, 0x81)          // extended capabilities
	p = append(p, 0x15)                // auth plugin data len
	p = append(p, make([]byte, 10)...) // reserved
	p = append(p, make([]byte, 13)...) // auth plugin data part 2
	p = append(p, []byte("mysql_native_password")...)
	p = append(p, 0x00)
	return withPacketHeader(p, 0)
}

// accessDeniedPacket is an ERR packet (1045, sqlstate 28000) embedding the
// parsed username, mirroring a real server's denial.
func accessDeniedPacket(username, ip string) []byte {
	p := []byte{0xff, 0x15, 0x04}
	p = append(p, []byte("#28000")...)
	p = append(p, []byte("Access denied for user '"+username+"'@'"+ip+"' (using password: YES)")...)
	return withPacketHeader(p, 2)
}

func withPacketHeader(payload []byte, seq byte) []byte {
	n := len(payload)
	out := []byte{byte(n), byte(n >> 8), byte(n >> 16), seq}
	return append(out, payload...)
}
