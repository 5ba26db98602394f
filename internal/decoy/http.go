package decoy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hivetrap/internal/capture"
	"hivetrap/internal/config"
	"hivetrap/internal/model"
)

const loginPage = `<html>
<head><title>Company Admin Panel</title></head>
<body>
<h1>Company Internal Admin Panel</h1>
<p>Please login to access sensitive data</p>
<form action="/login" method="post">
Username: <input type="text" name="username"><br>
Password: <input type="password" name="password"><br>
<input type="submit" value="Login">
</form>
</body>
</html>
`

// HTTPDecoy serves bait routes. Every request, including the catch-all, is
// recorded with method, path, headers and any submitted form fields.
type HTTPDecoy struct {
	rec          *capture.Recorder
	logger       *slog.Logger
	serverHeader string
}

func NewHTTPDecoy(cfg config.HTTPDecoyConfig, rec *capture.Recorder, logger *slog.Logger) *HTTPDecoy {
	return &HTTPDecoy{rec: rec, logger: logger, serverHeader: cfg.ServerHeader}
}

func (h *HTTPDecoy) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(h.identify)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		h.record(req, "", "")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(loginPage))
	})
	r.Post("/login", func(w http.ResponseWriter, req *http.Request) {
		_ = req.ParseForm()
		username := req.PostFormValue("username")
		password := req.PostFormValue("password")
		h.record(req, username, password)
		// Never reveal success.
		http.Error(w, "Invalid credentials. Please try again.", http.StatusUnauthorized)
	})
	r.Get("/admin", h.bait(http.StatusForbidden, "Access denied. Administrator privileges required."))
	r.Get("/phpmyadmin", h.bait(http.StatusNotFound, "404 Not Found"))
	r.Get("/wp-admin", h.bait(http.StatusNotFound, "404 Not Found"))
	r.Get("/.env", h.bait(http.StatusNotFound, "404 Not Found"))
	r.Get("/api/users", func(w http.ResponseWriter, req *http.Request) {
		h.record(req, "", "")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
	})
	r.HandleFunc("/shell", h.bait(http.StatusNotFound, "404 Not Found"))
	r.NotFound(h.bait(http.StatusNotFound, "404 Not Found"))
	return r
}

func (h *HTTPDecoy) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if h.serverHeader != "" {
			w.Header().Set("Server", h.serverHeader)
		}
		next.ServeHTTP(w, req)
	})
}

func (h *HTTPDecoy) bait(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		_ = req.ParseForm()
		h.record(req, req.PostFormValue("username"), req.PostFormValue("password"))
		http.Error(w, body, status)
	}
}

func (h *HTTPDecoy) record(req *http.Request, username, password string) {
	ip := req.RemoteAddr
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		ip = host
	}
	headers := make(map[string]string, len(req.Header))
	for k := range req.Header {
		headers[k] = req.Header.Get(k)
	}
	detail := map[string]any{
		"user_agent": req.UserAgent(),
		"headers":    headers,
	}
	if len(req.PostForm) > 0 {
		form := make(map[string]string, len(req.PostForm))
		for k := range req.PostForm {
			form[k] = req.PostForm.Get(k)
		}
		detail["form"] = form
	}
	data, _ := json.Marshal(detail)

	h.rec.Record(req.Context(), model.AttackEvent{
		IP:       ip,
		Service:  model.ServiceHTTP,
		Username: username,
		Password: password,
		Command:  req.Method + " " + req.URL.Path,
		Data:     string(data),
	})
	if h.logger != nil {
		h.logger.Info("http request captured", "ip", ip, "method", req.Method, "path", req.URL.Path, "user_agent", req.UserAgent())
	}
}

// StartHTTP runs the bait site on its own listener with a shutdown hook tied
// to ctx, like the other decoys' accept loops.
func StartHTTP(ctx context.Context, cfg config.HTTPDecoyConfig, rec *capture.Recorder, logger *slog.Logger) *http.Server {
	d := NewHTTPDecoy(cfg, rec, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		if logger != nil {
			logger.Info("decoy listening", "decoy", "http", "addr", cfg.Addr)
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("http decoy server error", "err", err)
			}
		}
	}()
	return server
}
