package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/models"
	"github.com/ternarybob/jobforge/internal/services/webhooks"
)

type WebhookHandler struct {
	svc    *webhooks.Service
	logger arbor.ILogger
}

func NewWebhookHandler(svc *webhooks.Service, logger arbor.ILogger) *WebhookHandler {
	return &WebhookHandler{svc: svc, logger: logger}
}

type createWebhookRequest struct {
	URL         string                   `json:"url" validate:"required,url"`
	EventType   models.WebhookEventType  `json:"eventType" validate:"required"`
	Description string                   `json:"description"`
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req createWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, h.logger, invalidRequest(err))
		return
	}

	hook, err := h.svc.Register(r.Context(), userID, req.URL, req.EventType, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, hook)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": list})
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	userID := UserIDFromContext(r.Context())
	hook, err := h.svc.Get(r.Context(), id, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

type updateWebhookRequest struct {
	URL         string                   `json:"url" validate:"required,url"`
	EventType   models.WebhookEventType  `json:"eventType" validate:"required"`
	Description string                   `json:"description"`
	Active      bool                     `json:"active"`
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	userID := UserIDFromContext(r.Context())

	var req updateWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, h.logger, invalidRequest(err))
		return
	}

	hook, err := h.svc.Update(r.Context(), id, userID, req.URL, req.EventType, req.Description, req.Active)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	userID := UserIDFromContext(r.Context())
	if err := h.svc.Delete(r.Context(), id, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
