package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/auth"
	"github.com/ternarybob/jobforge/internal/realtime"
)

// WebSocketHandler wires realtime.Hub's upgrade path to the same
// bearer/api-key identity check RequireAuth uses, read from either the
// Authorization header or a "token" query parameter since browser
// WebSocket clients cannot set custom headers on the handshake.
type WebSocketHandler struct {
	hub    *realtime.Hub
	auth   *auth.Service
	logger arbor.ILogger
}

func NewWebSocketHandler(hub *realtime.Hub, authSvc *auth.Service, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, auth: authSvc, logger: logger}
}

func (h *WebSocketHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identify(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.hub.HandleUpgrade(w, r, userID)
}

func (h *WebSocketHandler) identify(r *http.Request) (int64, error) {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		apiKey, err := h.auth.AuthenticateApiKey(r.Context(), key)
		if err != nil {
			return 0, err
		}
		return apiKey.UserID, nil
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		return 0, apperr.Unauthenticated("missing bearer token, api key, or token query parameter")
	}

	claims, err := h.auth.VerifyAccessToken(token)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}
