package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maremma/maremma/internal/merrors"
)

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response body", "error", err)
	}
}

// writeStoreError maps a persistence error onto an HTTP status: a
// not-found sentinel becomes 404, anything else is a 500.
func writeStoreError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, merrors.ErrHostNotFound),
		errors.Is(err, merrors.ErrServiceNotFound),
		errors.Is(err, merrors.ErrServiceCheckNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, logger, status, map[string]string{"error": err.Error()})
}
