package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hivetrap/internal/capture"
	"hivetrap/internal/config"
	"hivetrap/internal/serving"
)

// Server exposes the operator surface. It is never bound to a decoy port
// and attackers must not be able to reach it.
type Server struct {
	cfg      *config.Manager
	recorder *capture.Recorder
	serving  serving.Store
	logger   *slog.Logger
}

type statusResponse struct {
	Status     string       `json:"status"`
	Time       string       `json:"time"`
	ConfigPath string       `json:"config_path"`
	Decoys     decoysStatus `json:"decoys"`
	Sync       syncStatus   `json:"sync"`
	Enrich     bool         `json:"enrich"`
	SyncedRows *int64       `json:"synced_rows,omitempty"`
}

type decoysStatus struct {
	SSH    bool `json:"ssh"`
	FTP    bool `json:"ftp"`
	HTTP   bool `json:"http"`
	MySQL  bool `json:"mysql"`
	RDP    bool `json:"rdp"`
	Prompt int  `json:"prompt"`
}

type syncStatus struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`
}

func Start(ctx context.Context, cfg *config.Manager, recorder *capture.Recorder, servingStore serving.Store, logger *slog.Logger) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().Ops
	if !current.Enabled {
		if logger != nil {
			logger.Info("ops server disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("ops server enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:      cfg,
		recorder: recorder,
		serving:  servingStore,
		logger:   logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", server.handleHealthz)
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/recent", server.handleRecent)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: current.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("ops server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		ConfigPath: s.cfg.Path(),
		Decoys: decoysStatus{
			SSH:    cfg.Decoys.SSH.Enabled,
			FTP:    cfg.Decoys.FTP.Enabled,
			HTTP:   cfg.Decoys.HTTP.Enabled,
			MySQL:  cfg.Decoys.MySQL.Enabled,
			RDP:    cfg.Decoys.RDP.Enabled,
			Prompt: len(cfg.Decoys.Prompt),
		},
		Sync: syncStatus{
			Enabled:  cfg.Sync.Enabled,
			Interval: cfg.Sync.Interval.String(),
		},
		Enrich: cfg.Enrich.Enabled,
	}
	if s.serving != nil {
		if n, err := s.serving.Count(r.Context()); err == nil {
			resp.SyncedRows = &n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	events := s.recorder.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
