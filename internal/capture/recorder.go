package capture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hivetrap/internal/metrics"
	"hivetrap/internal/model"
)

// Recorder is the single sink shared by every decoy. Record never returns an
// error: a store outage is downgraded to a fallback-file write so listeners
// keep running.
type Recorder struct {
	store    Store
	fallback *Fallback
	ring     *Ring
	bus      *Bus
	logger   *slog.Logger
}

func NewRecorder(store Store, fallback *Fallback, ring *Ring, bus *Bus, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, fallback: fallback, ring: ring, bus: bus, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, ev model.AttackEvent) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.Service == "" {
		ev.Service = model.ServiceOther
	}

	id, err := r.store.Append(ctx, ev)
	switch {
	case err == nil:
		ev.ID = id
		metrics.EventsCaptured.WithLabelValues(string(ev.Service)).Inc()
	case errors.Is(err, ErrStoreUnavailable):
		if r.logger != nil {
			r.logger.Warn("capture store unavailable, writing fallback", "service", ev.Service, "ip", ev.IP, "err", err)
		}
		r.writeFallback(ev)
	default:
		if r.logger != nil {
			r.logger.Warn("capture append failed, writing fallback", "service", ev.Service, "ip", ev.IP, "err", err)
		}
		r.writeFallback(ev)
	}

	if r.ring != nil {
		r.ring.Add(ev)
	}
	if r.bus != nil {
		if err := r.bus.Publish(ctx, ev); err != nil && r.logger != nil {
			r.logger.Warn("bus publish failed", "service", ev.Service, "err", err)
		}
	}
}

func (r *Recorder) Recent(limit int) []model.AttackEvent {
	if r.ring == nil {
		return nil
	}
	return r.ring.List(limit)
}

func (r *Recorder) writeFallback(ev model.AttackEvent) {
	if r.fallback == nil {
		return
	}
	metrics.FallbackWrites.WithLabelValues(string(ev.Service)).Inc()
	rec := model.CaptureRecord{
		Timestamp: ev.Timestamp,
		Type:      recordType(ev),
		IP:        ev.IP,
		Username:  ev.Username,
		Password:  ev.Password,
		Event:     recordEvent(ev),
	}
	if err := r.fallback.Write(ev.Service, rec); err != nil && r.logger != nil {
		r.logger.Error("fallback write failed, event lost", "service", ev.Service, "ip", ev.IP, "err", err)
	}
}

func recordType(ev model.AttackEvent) string {
	switch {
	case ev.Username != "" || ev.Password != "":
		return string(ev.Service) + "_login"
	case ev.Command != "":
		return string(ev.Service) + "_command"
	case ev.Data != "":
		return string(ev.Service) + "_data"
	default:
		return string(ev.Service) + "_connect"
	}
}

func recordEvent(ev model.AttackEvent) string {
	switch {
	case ev.Username != "" || ev.Password != "":
		return "login_attempt"
	case ev.Command != "":
		return "command"
	case ev.Data != "":
		return "data_received"
	default:
		return "connection_attempt"
	}
}
