package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/broker"
	"github.com/ternarybob/jobforge/internal/services/jobs"
)

func newTestJobHandler(t *testing.T) *JobHandler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	reg := broker.NewRegistry(rdb, arbor.NewLogger(), []string{"reports"})
	return NewJobHandler(jobs.NewService(reg), arbor.NewLogger())
}

func withUser(r *http.Request, userID int64) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
}

func TestJobHandler_Submit_ReturnsCreatedJobID(t *testing.T) {
	h := newTestJobHandler(t)

	body, _ := json.Marshal(map[string]any{"name": "generate", "data": map[string]any{"foo": "bar"}})
	req := withUser(httptest.NewRequest(http.MethodPost, "/jobs/reports/submit", bytes.NewReader(body)), 7)
	rec := httptest.NewRecorder()

	h.Submit(rec, req, "reports")

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["jobId"])
}

func TestJobHandler_Submit_RejectsMissingName(t *testing.T) {
	h := newTestJobHandler(t)

	body, _ := json.Marshal(map[string]any{})
	req := withUser(httptest.NewRequest(http.MethodPost, "/jobs/reports/submit", bytes.NewReader(body)), 7)
	rec := httptest.NewRecorder()

	h.Submit(rec, req, "reports")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobHandler_GetAndDelete_EnforceOwnership(t *testing.T) {
	h := newTestJobHandler(t)

	body, _ := json.Marshal(map[string]any{"name": "generate"})
	submitReq := withUser(httptest.NewRequest(http.MethodPost, "/jobs/reports/submit", bytes.NewReader(body)), 7)
	submitRec := httptest.NewRecorder()
	h.Submit(submitRec, submitReq, "reports")

	var submitted map[string]string
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &submitted))
	jobID := submitted["jobId"]

	getReq := withUser(httptest.NewRequest(http.MethodGet, "/jobs/reports/job/"+jobID, nil), 99)
	getRec := httptest.NewRecorder()
	h.Get(getRec, getReq, "reports", jobID)
	assert.Equal(t, http.StatusForbidden, getRec.Code)

	ownedReq := withUser(httptest.NewRequest(http.MethodGet, "/jobs/reports/job/"+jobID, nil), 7)
	ownedRec := httptest.NewRecorder()
	h.Get(ownedRec, ownedReq, "reports", jobID)
	assert.Equal(t, http.StatusOK, ownedRec.Code)

	delReq := withUser(httptest.NewRequest(http.MethodDelete, "/jobs/reports/job/"+jobID, nil), 7)
	delRec := httptest.NewRecorder()
	h.Delete(delRec, delReq, "reports", jobID)
	assert.Equal(t, http.StatusOK, delRec.Code)
}

func TestJobHandler_List_ReturnsPaginatedResults(t *testing.T) {
	h := newTestJobHandler(t)

	for i := 0; i < 3; i++ {
		body, _ := json.Marshal(map[string]any{"name": "generate"})
		req := withUser(httptest.NewRequest(http.MethodPost, "/jobs/reports/submit", bytes.NewReader(body)), 1)
		h.Submit(httptest.NewRecorder(), req, "reports")
	}

	listReq := withUser(httptest.NewRequest(http.MethodGet, "/jobs/reports?page=1&limit=2", nil), 1)
	listRec := httptest.NewRecorder()
	h.List(listRec, listReq, "reports")

	assert.Equal(t, http.StatusOK, listRec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &resp))
	jobsList, ok := resp["jobs"].([]any)
	require.True(t, ok)
	assert.Len(t, jobsList, 2)
}
