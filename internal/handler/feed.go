package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/jokebox/internal/auth"
	"github.com/sakif/jokebox/internal/feed"
)

// FeedHandler serves the change feed endpoints that are not a plain proxy.
type FeedHandler struct {
	sessions auth.SessionValidator
	streamer *feed.Streamer
	logger   *slog.Logger
}

func NewFeedHandler(sessions auth.SessionValidator, streamer *feed.Streamer, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{sessions: sessions, streamer: streamer, logger: logger}
}

type electricIdentity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// HandleElectricAuth tells a sync client who the cookie belongs to.
//
// HTTP: GET /electric/auth
//
// It is deliberately outside RequireAuth: the identity is re-derived from
// the cookie on every call and the two failure cases get distinct messages.
func (h *FeedHandler) HandleElectricAuth(w http.ResponseWriter, r *http.Request) {
	token := auth.SessionToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "No session token"})
		return
	}

	user, ok := h.sessions.ValidateSession(r.Context(), token)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid session"})
		return
	}
	writeJSON(w, http.StatusOK, electricIdentity{UserID: user.ID, Email: user.Email})
}

// HandleStream upgrades to a WebSocket carrying the caller's joke changes.
//
// HTTP: GET /jokes/stream (RequireAuth)
func (h *FeedHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	h.streamer.Stream(w, r, user)
}
