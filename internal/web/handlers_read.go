package web

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// handleListHosts lists every configured host. Read-only: queries
// persistence directly, never the Broker.
func (s *Server) handleListHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.store.ListHosts(r.Context())
	if err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, hosts)
}

func (s *Server) handleGetHost(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "invalid host id"})
		return
	}
	host, err := s.store.GetHost(r.Context(), id)
	if err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, host)
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.ListServices(r.Context())
	if err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, services)
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "invalid service id"})
		return
	}
	svc, err := s.store.GetService(r.Context(), id)
	if err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, svc)
}

func (s *Server) handleListServiceChecks(w http.ResponseWriter, r *http.Request) {
	checks, err := s.store.ListServiceChecks(r.Context())
	if err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, checks)
}

func (s *Server) handleGetServiceCheck(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "invalid service_check id"})
		return
	}
	check, err := s.store.GetServiceCheck(r.Context(), id)
	if err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, check)
}

// handleGetServiceCheckHistory returns the most recent history rows
// for a service check, newest first. ?limit= caps the row count.
func (s *Server) handleGetServiceCheckHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "invalid service_check id"})
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	history, err := s.store.GetHistory(r.Context(), id, limit)
	if err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, history)
}
