package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/models"
	"github.com/ternarybob/jobforge/internal/services/scheduler"
)

type ScheduleHandler struct {
	svc    *scheduler.Service
	logger arbor.ILogger
}

func NewScheduleHandler(svc *scheduler.Service, logger arbor.ILogger) *ScheduleHandler {
	return &ScheduleHandler{svc: svc, logger: logger}
}

type createScheduleRequest struct {
	JobName string             `json:"jobName" validate:"required"`
	Data    map[string]any     `json:"data"`
	Opts    models.JobOpts     `json:"opts"`
	Repeat  models.RepeatOpts  `json:"repeat" validate:"required"`
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request, queue string) {
	userID := UserIDFromContext(r.Context())

	var req createScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, h.logger, invalidRequest(err))
		return
	}

	sched, err := h.svc.Create(r.Context(), queue, req.JobName, req.Data, req.Opts, req.Repeat, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"schedulerId": sched.Key})
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request, queue string) {
	userID := UserIDFromContext(r.Context())
	list, err := h.svc.ListForUser(r.Context(), queue, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": list})
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request, queue, key string) {
	userID := UserIDFromContext(r.Context())
	sched, err := h.svc.Get(r.Context(), queue, key, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *ScheduleHandler) Remove(w http.ResponseWriter, r *http.Request, queue, key string) {
	userID := UserIDFromContext(r.Context())
	removed, err := h.svc.Remove(r.Context(), queue, key, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}
