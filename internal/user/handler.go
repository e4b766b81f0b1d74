package user

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes HTTP endpoints for the authenticated user's profile.
type Handler struct {
	logger *zap.SugaredLogger
}

func NewHandler(logger *zap.SugaredLogger) *Handler {
	return &Handler{logger: logger}
}

// Me returns the current user's profile. Requires the auth middleware.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := FromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

// Profile is an alias for Me kept for frontend compatibility.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	h.Me(w, r)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
