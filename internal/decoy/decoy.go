package decoy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"hivetrap/internal/metrics"
)

// Decoy is one fake service. Handle runs in its own goroutine per accepted
// connection and must never let a failure escape to the accept loop; whatever
// happens, it emits at least a connection-attempt event before returning.
type Decoy interface {
	Name() string
	Handle(ctx context.Context, conn net.Conn)
}

// Serve binds addr and runs the accept loop until ctx is cancelled. A
// cancelled ctx stops accepting; in-flight handlers drain (each is bounded
// by its own read deadline).
func Serve(ctx context.Context, addr string, d Decoy, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if logger != nil {
		logger.Info("decoy listening", "decoy", d.Name(), "addr", addr)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				wg.Wait()
				return nil
			}
			if logger != nil {
				logger.Warn("accept error", "decoy", d.Name(), "err", err)
			}
			continue
		}
		metrics.ConnectionsAccepted.WithLabelValues(d.Name()).Inc()
		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			defer func() {
				if r := recover(); r != nil && logger != nil {
					logger.Error("handler panic recovered", "decoy", d.Name(), "panic", r)
				}
			}()
			d.Handle(ctx, c)
		}(conn)
	}
}

// Start runs Serve in the background. Listen failures are logged, not fatal;
// the rest of the platform keeps running.
func Start(ctx context.Context, addr string, d Decoy, logger *slog.Logger) {
	go func() {
		if err := Serve(ctx, addr, d, logger); err != nil && logger != nil {
			logger.Error("decoy listen error", "decoy", d.Name(), "addr", addr, "err", err)
		}
	}()
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func setReadDeadline(conn net.Conn, d time.Duration) {
	if d <= 0 {
		d = 10 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(d))
}
