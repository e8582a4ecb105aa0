package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/models"
	"github.com/ternarybob/jobforge/internal/services/flow"
)

type FlowHandler struct {
	svc    *flow.Service
	logger arbor.ILogger
}

func NewFlowHandler(svc *flow.Service, logger arbor.ILogger) *FlowHandler {
	return &FlowHandler{svc: svc, logger: logger}
}

func (h *FlowHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req models.CreateFlowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Root.Name == "" || req.Root.QueueName == "" {
		writeError(w, h.logger, invalidRequest(errRootJobRequired{}))
		return
	}

	f, err := h.svc.CreateFlow(r.Context(), req, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *FlowHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flows": list})
}

// Get is deliberately read-only with no ownership check, per §6's
// "— (read-only)" auth column: a flow's progress is meant to be
// observable by anything holding its id (e.g. a reporting worker).
func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request, flowID string) {
	f, err := h.svc.GetByIDUnauthenticated(r.Context(), flowID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type reportProgressRequest struct {
	JobName   string    `json:"jobName" validate:"required"`
	QueueName string    `json:"queueName" validate:"required"`
	Status    string    `json:"status" validate:"required"`
	Result    any       `json:"result"`
	Error     string    `json:"error"`
	Progress  any       `json:"progress"`
}

func (h *FlowHandler) ReportProgress(w http.ResponseWriter, r *http.Request, flowID, jobID string) {
	var req reportProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, h.logger, invalidRequest(err))
		return
	}

	f, err := h.svc.UpdateFlowProgress(r.Context(), flowID, flow.ProgressReport{
		JobID:     jobID,
		JobName:   req.JobName,
		QueueName: req.QueueName,
		Status:    jobStatus(req.Status),
		Result:    req.Result,
		Error:     req.Error,
		Progress:  req.Progress,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FlowHandler) Delete(w http.ResponseWriter, r *http.Request, flowID string) {
	userID := UserIDFromContext(r.Context())
	summary, err := h.svc.Delete(r.Context(), flowID, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func jobStatus(s string) (status models.JobStatus) { return models.JobStatus(s) }

type errRootJobRequired struct{}

func (errRootJobRequired) Error() string { return "root job must set name and queueName" }
