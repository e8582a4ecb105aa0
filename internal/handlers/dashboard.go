package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/services/dashboard"
)

type DashboardHandler struct {
	svc    *dashboard.Service
	logger arbor.ILogger
}

func NewDashboardHandler(svc *dashboard.Service, logger arbor.ILogger) *DashboardHandler {
	return &DashboardHandler{svc: svc, logger: logger}
}

func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	overview, err := h.svc.Overview(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *DashboardHandler) SchedulerStats(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	total, err := h.svc.SchedulerStats(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"activeSchedules": total})
}
