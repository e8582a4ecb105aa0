package handlers

import (
	"net/http"

	"github.com/ternarybob/jobforge/internal/common"
)

// SystemHandler serves the ambient health/version endpoints every
// deployment needs regardless of domain scope.
type SystemHandler struct{}

func NewSystemHandler() *SystemHandler {
	return &SystemHandler{}
}

func (h *SystemHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *SystemHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":   common.GetVersion(),
		"buildTime": common.BuildTime,
		"gitCommit": common.GitCommit,
	})
}
