package web

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/maremma/maremma/internal/store"
)

// setStatusHandler builds a handler that dispatches one Broker
// SetStatus command for the service_check named in the URL.
func (s *Server) setStatusHandler(status store.CheckStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "invalid service_check id"})
			return
		}
		if err := s.broker.SetStatus(r.Context(), id, status); err != nil {
			writeStoreError(w, s.logger, err)
			return
		}
		writeJSON(w, s.logger, http.StatusOK, map[string]string{"id": id.String(), "status": string(status)})
	}
}
