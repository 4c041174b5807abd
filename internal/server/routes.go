package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lotas/tabgenius/internal/applog"
	"github.com/lotas/tabgenius/internal/metrics"
)

// Routes returns the daemon's HTTP handler: the extension socket on /ws,
// Prometheus metrics on /metrics and a liveness probe on /healthz.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/ws", s.Handler())
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if s.Connected() {
			fmt.Fprint(w, `{"status":"ok","extension":"connected"}`)
			return
		}
		fmt.Fprint(w, `{"status":"ok","extension":"disconnected"}`)
	})
	return r
}

// ListenAndServe serves Routes on 127.0.0.1 at the configured port until
// ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: s.Routes()}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
