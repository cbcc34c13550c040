package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/maremma/maremma/internal/store"
)

const sessionCookieName = "maremma_session"
const sessionTTL = 24 * time.Hour

type loginRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// handleLogin creates a session row for the given user, fronted by
// sessionCache's write-through Redis/LRU layers, and sets it as a
// cookie for subsequent requests.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
		return
	}

	session := store.Session{
		ID:        uuid.New(),
		UserID:    req.UserID,
		ExpiresAt: time.Now().Add(sessionTTL),
	}
	if err := s.sessions.Put(r.Context(), session); err != nil {
		writeStoreError(w, s.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID.String(),
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Path:     "/",
	})
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"session_id": session.ID.String()})
}

// handleLogout evicts the session named by the session_id cookie from
// both cache layers and the database synchronously, so it cannot be
// served stale from either layer after logout.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "no session cookie"})
		return
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "invalid session id"})
		return
	}

	if err := s.sessions.Delete(r.Context(), id); err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", MaxAge: -1, Path: "/"})
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "invalid session id"})
		return
	}
	session, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, session)
}
