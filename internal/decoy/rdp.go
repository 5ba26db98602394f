package decoy

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net"
	"time"

	"hivetrap/internal/capture"
	"hivetrap/internal/model"
)

// rdpNegotiationResponse is a fixed X.224 connection-confirm PDU. The decoy
// never attempts real protocol negotiation; anything the peer sends after
// this is captured as raw hex.
var rdpNegotiationResponse = []byte{
	0x03, 0x00, 0x00, 0x13, 0x0e, 0xd0, 0x00, 0x00,
	0x12, 0x34, 0x00, 0x02, 0x00, 0x08, 0x00, 0x02,
	0x00, 0x00, 0x00,
}

const rdpDataHexLimit = 100

type RDP struct {
	rec     *capture.Recorder
	logger  *slog.Logger
	timeout time.Duration
}

func NewRDP(timeout time.Duration, rec *capture.Recorder, logger *slog.Logger) *RDP {
	return &RDP{rec: rec, logger: logger, timeout: timeout}
}

func (r *RDP) Name() string { return "rdp" }

func (r *RDP) Handle(ctx context.Context, conn net.Conn) {
	ip := remoteIP(conn)
	r.rec.Record(ctx, model.AttackEvent{IP: ip, Service: model.ServiceRDP})

	if _, err := conn.Write(rdpNegotiationResponse); err != nil {
		return
	}

	setReadDeadline(conn, 5*time.Second)
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}
	payload := hex.EncodeToString(buf[:n])
	if len(payload) > rdpDataHexLimit {
		payload = payload[:rdpDataHexLimit]
	}
	r.rec.Record(ctx, model.AttackEvent{
		IP:      ip,
		Service: model.ServiceRDP,
		Data:    payload,
	})
	if r.logger != nil {
		r.logger.Info("rdp data captured", "ip", ip, "bytes", n)
	}
}
