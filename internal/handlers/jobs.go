package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/models"
	"github.com/ternarybob/jobforge/internal/services/jobs"
)

type JobHandler struct {
	svc    *jobs.Service
	logger arbor.ILogger
}

func NewJobHandler(svc *jobs.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{svc: svc, logger: logger}
}

type submitJobRequest struct {
	Name string          `json:"name" validate:"required"`
	Data map[string]any  `json:"data"`
	Opts json.RawMessage `json:"opts"`
}

func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request, queue string) {
	userID := UserIDFromContext(r.Context())

	var req submitJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, h.logger, invalidRequest(err))
		return
	}

	job, err := h.svc.Submit(r.Context(), queue, req.Name, req.Data, req.Opts, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"jobId": job.ID})
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request, queue string) {
	userID := UserIDFromContext(r.Context())
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	var statuses []models.JobStatus
	if s := q.Get("status"); s != "" {
		statuses = append(statuses, models.JobStatus(s))
	}

	list, pagination, err := h.svc.List(r.Context(), queue, statuses, userID, page, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]models.JobView, 0, len(list))
	for _, j := range list {
		views = append(views, j.ToView())
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views, "pagination": pagination})
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request, queue, jobID string) {
	userID := UserIDFromContext(r.Context())
	job, err := h.svc.Get(r.Context(), queue, jobID, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job.ToView())
}

func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request, queue, jobID string) {
	userID := UserIDFromContext(r.Context())
	if err := h.svc.Delete(r.Context(), queue, jobID, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
