package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/models"
)

func newTestApiKeyHandler(t *testing.T) (*ApiKeyHandler, int64) {
	t.Helper()
	svc := newTestAuthService(t)
	result, err := svc.Register(context.Background(), "alice", "supersecret", "")
	require.NoError(t, err)
	return NewApiKeyHandler(svc, arbor.NewLogger()), result.User.UserID
}

func TestApiKeyHandler_Create_RejectsMissingName(t *testing.T) {
	h, userID := newTestApiKeyHandler(t)

	body, _ := json.Marshal(map[string]any{"permissions": []string{"jobs:read"}})
	req := withUser(httptest.NewRequest(http.MethodPost, "/api-keys", bytes.NewReader(body)), userID)
	rec := httptest.NewRecorder()

	h.Create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApiKeyHandler_CreateListGetUpdateRevoke(t *testing.T) {
	h, userID := newTestApiKeyHandler(t)

	createBody, _ := json.Marshal(map[string]any{"name": "ci", "permissions": []string{"jobs:write"}})
	createReq := withUser(httptest.NewRequest(http.MethodPost, "/api-keys", bytes.NewReader(createBody)), userID)
	createRec := httptest.NewRecorder()
	h.Create(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	assert.NotEmpty(t, created["key"])
	apiKeyRaw, ok := created["apiKey"].(map[string]any)
	require.True(t, ok)
	id, ok := apiKeyRaw["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	listReq := withUser(httptest.NewRequest(http.MethodGet, "/api-keys", nil), userID)
	listRec := httptest.NewRecorder()
	h.List(listRec, listReq)
	assert.Equal(t, http.StatusOK, listRec.Code)

	getReq := withUser(httptest.NewRequest(http.MethodGet, "/api-keys/"+id, nil), userID+1)
	getRec := httptest.NewRecorder()
	h.Get(getRec, getReq, id)
	assert.Equal(t, http.StatusForbidden, getRec.Code)

	updateBody, _ := json.Marshal(map[string]any{"name": "ci-renamed", "permissions": []string{"jobs:read"}})
	updateReq := withUser(httptest.NewRequest(http.MethodPut, "/api-keys/"+id, bytes.NewReader(updateBody)), userID)
	updateRec := httptest.NewRecorder()
	h.Update(updateRec, updateReq, id)
	require.Equal(t, http.StatusOK, updateRec.Code)
	var updated models.ApiKey
	require.NoError(t, json.Unmarshal(updateRec.Body.Bytes(), &updated))
	assert.Equal(t, "ci-renamed", updated.Name)

	revokeReq := withUser(httptest.NewRequest(http.MethodDelete, "/api-keys/"+id, nil), userID)
	revokeRec := httptest.NewRecorder()
	h.Revoke(revokeRec, revokeReq, id)
	assert.Equal(t, http.StatusOK, revokeRec.Code)
}

func TestIDFromPath_StripsPrefix(t *testing.T) {
	assert.Equal(t, "key_123", IDFromPath("/api-keys/key_123", "/api-keys/"))
}
