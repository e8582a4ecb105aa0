package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/broker"
)

// QueueHandler implements C1's single read surface: the allow-list.
type QueueHandler struct {
	registry *broker.Registry
	logger   arbor.ILogger
}

func NewQueueHandler(registry *broker.Registry, logger arbor.ILogger) *QueueHandler {
	return &QueueHandler{registry: registry, logger: logger}
}

func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"queues": h.registry.AllowedQueues()})
}
