// Package web implements the read/write HTTP surface described in the
// external interfaces contract: three mutation routes that each
// dispatch a single Broker command, read-only JSON endpoints that
// query persistence directly, and /session routes that create, look up
// and delete session rows through the session cache. Reads never touch
// the Broker.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maremma/maremma/internal/broker"
	logger "github.com/maremma/maremma/internal/logging"
	"github.com/maremma/maremma/internal/store"
)

// Server owns the HTTP listener and routes each request to a Broker
// command (status mutations), a direct Store read, or the session cache
// (/session routes).
type Server struct {
	store    store.Store
	broker   *broker.Broker
	logger   *slog.Logger
	http     *http.Server
	sessions *sessionCache
}

// New builds a Server bound to addr (e.g. ":8080"). sessionCacheRedisAddr
// may be empty, in which case sessions are fronted by an in-memory LRU
// only.
func New(addr string, s store.Store, b *broker.Broker, logger *slog.Logger, sessionCacheRedisAddr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{store: s, broker: b, logger: logger, sessions: newSessionCache(s, sessionCacheRedisAddr)}
	srv.http = &http.Server{
		Addr:              addr,
		Handler:           srv.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(logger.LoggingMiddleware(s.logger))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/hosts", s.handleListHosts).Methods(http.MethodGet)
	r.HandleFunc("/hosts/{id}", s.handleGetHost).Methods(http.MethodGet)
	r.HandleFunc("/services", s.handleListServices).Methods(http.MethodGet)
	r.HandleFunc("/services/{id}", s.handleGetService).Methods(http.MethodGet)
	r.HandleFunc("/service_check", s.handleListServiceChecks).Methods(http.MethodGet)
	r.HandleFunc("/service_check/{id}", s.handleGetServiceCheck).Methods(http.MethodGet)
	r.HandleFunc("/service_check/{id}/history", s.handleGetServiceCheckHistory).Methods(http.MethodGet)

	r.HandleFunc("/service_check/{id}/urgent", s.setStatusHandler(store.StatusUrgent)).Methods(http.MethodPost)
	r.HandleFunc("/service_check/{id}/disable", s.setStatusHandler(store.StatusDisabled)).Methods(http.MethodPost)
	r.HandleFunc("/service_check/{id}/enable", s.setStatusHandler(store.StatusPending)).Methods(http.MethodPost)

	r.HandleFunc("/session", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/session", s.handleLogout).Methods(http.MethodDelete)
	r.HandleFunc("/session/{id}", s.handleGetSession).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, s.logger, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "healthy"})
}

// Run starts the HTTP listener and blocks until ctx is cancelled, at
// which point it shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
