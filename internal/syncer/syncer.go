package syncer

import (
	"context"
	"log/slog"
	"time"

	"hivetrap/internal/capture"
	"hivetrap/internal/metrics"
	"hivetrap/internal/serving"
)

// Syncer replicates capture rows into the serving store on a fixed interval.
// The watermark is derived from the serving store itself (MAX(id)), so a
// crash mid-cycle either fully lands or is fully re-read next cycle; no row
// is inserted twice.
type Syncer struct {
	source   capture.Store
	target   serving.Store
	interval time.Duration
	logger   *slog.Logger
}

func New(source capture.Store, target serving.Store, interval time.Duration, logger *slog.Logger) *Syncer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Syncer{source: source, target: target, interval: interval, logger: logger}
}

// Run loops until ctx is cancelled. Store outages are logged and retried on
// the next tick forever; this task never exits on a transient error.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := s.Cycle(ctx)
			if err != nil {
				metrics.SyncCycleErrors.Inc()
				if s.logger != nil {
					s.logger.Warn("sync cycle failed, will retry", "err", err)
				}
				continue
			}
			if n > 0 && s.logger != nil {
				s.logger.Info("synced new attacks", "rows", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Cycle performs one watermark read, copy and atomic commit. It returns the
// number of rows replicated.
func (s *Syncer) Cycle(ctx context.Context) (int, error) {
	watermark, err := s.target.MaxID(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := s.source.ReadSince(ctx, watermark)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.target.InsertBatch(ctx, rows); err != nil {
		return 0, err
	}
	metrics.SyncedRows.Add(float64(len(rows)))
	return len(rows), nil
}
