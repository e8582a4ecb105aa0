package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/auth"
)

type ApiKeyHandler struct {
	svc    *auth.Service
	logger arbor.ILogger
}

func NewApiKeyHandler(svc *auth.Service, logger arbor.ILogger) *ApiKeyHandler {
	return &ApiKeyHandler{svc: svc, logger: logger}
}

type createApiKeyRequest struct {
	Name        string   `json:"name" validate:"required"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expiresAt"`
}

func (h *ApiKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req createApiKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, h.logger, invalidRequest(err))
		return
	}

	plaintext, key, err := h.svc.CreateApiKey(r.Context(), userID, req.Name, req.Permissions, apiKeyExpiry(req.ExpiresAt))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"key": plaintext, "apiKey": key})
}

func (h *ApiKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	keys, err := h.svc.ListApiKeys(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (h *ApiKeyHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	userID := UserIDFromContext(r.Context())
	key, err := h.svc.GetApiKey(r.Context(), id, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

type updateApiKeyRequest struct {
	Name        string   `json:"name" validate:"required"`
	Permissions []string `json:"permissions"`
}

func (h *ApiKeyHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	userID := UserIDFromContext(r.Context())

	var req updateApiKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, h.logger, invalidRequest(err))
		return
	}

	key, err := h.svc.UpdateApiKey(r.Context(), id, userID, req.Name, req.Permissions)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (h *ApiKeyHandler) Revoke(w http.ResponseWriter, r *http.Request, id string) {
	userID := UserIDFromContext(r.Context())
	if err := h.svc.RevokeApiKey(r.Context(), id, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

// IDFromPath extracts the trailing path segment after prefix, e.g.
// "/api-keys/key_123" with prefix "/api-keys/" yields "key_123".
func IDFromPath(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
