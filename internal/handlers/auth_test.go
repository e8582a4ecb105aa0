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
)

func newTestAuthHandler(t *testing.T) *AuthHandler {
	t.Helper()
	return NewAuthHandler(newTestAuthService(t), arbor.NewLogger())
}

func TestAuthHandler_Register_ReturnsTokens(t *testing.T) {
	h := newTestAuthHandler(t)

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "supersecret"})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["accessToken"])
	assert.NotEmpty(t, resp["refreshToken"])
}

func TestAuthHandler_Register_RejectsShortPassword(t *testing.T) {
	h := newTestAuthHandler(t)

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "short"})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandler_Login_RejectsWrongPassword(t *testing.T) {
	h := newTestAuthHandler(t)

	registerBody, _ := json.Marshal(map[string]string{"username": "alice", "password": "supersecret"})
	h.Register(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(registerBody)))

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrongpass"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandler_RefreshToken_RotatesTokens(t *testing.T) {
	h := newTestAuthHandler(t)

	registerBody, _ := json.Marshal(map[string]string{"username": "alice", "password": "supersecret"})
	registerRec := httptest.NewRecorder()
	h.Register(registerRec, httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(registerBody)))
	var registered map[string]any
	require.NoError(t, json.Unmarshal(registerRec.Body.Bytes(), &registered))

	refreshBody, _ := json.Marshal(map[string]string{"refreshToken": registered["refreshToken"].(string)})
	refreshReq := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(refreshBody))
	refreshRec := httptest.NewRecorder()
	h.RefreshToken(refreshRec, refreshReq)

	require.Equal(t, http.StatusOK, refreshRec.Code)
	var refreshed map[string]any
	require.NoError(t, json.Unmarshal(refreshRec.Body.Bytes(), &refreshed))
	assert.NotEmpty(t, refreshed["accessToken"])
	assert.NotEqual(t, registered["refreshToken"], refreshed["refreshToken"])
}

func TestAuthHandler_PasswordResetFlow(t *testing.T) {
	h := newTestAuthHandler(t)

	registerBody, _ := json.Marshal(map[string]string{"username": "alice", "password": "supersecret"})
	h.Register(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(registerBody)))

	reqBody, _ := json.Marshal(map[string]string{"username": "alice"})
	requestRec := httptest.NewRecorder()
	h.RequestPasswordReset(requestRec, httptest.NewRequest(http.MethodPost, "/auth/password-reset", bytes.NewReader(reqBody)))
	require.Equal(t, http.StatusOK, requestRec.Code)

	var requested map[string]string
	require.NoError(t, json.Unmarshal(requestRec.Body.Bytes(), &requested))
	require.NotEmpty(t, requested["resetToken"])

	resetBody, _ := json.Marshal(map[string]string{
		"username": "alice", "token": requested["resetToken"], "newPassword": "newsupersecret",
	})
	resetRec := httptest.NewRecorder()
	h.ResetPassword(resetRec, httptest.NewRequest(http.MethodPost, "/auth/password-reset/confirm", bytes.NewReader(resetBody)))
	assert.Equal(t, http.StatusOK, resetRec.Code)

	loginBody, _ := json.Marshal(map[string]string{"username": "alice", "password": "newsupersecret"})
	loginRec := httptest.NewRecorder()
	h.Login(loginRec, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(loginBody)))
	assert.Equal(t, http.StatusOK, loginRec.Code)
}

func TestAuthHandler_Me_ReturnsPublicProfile(t *testing.T) {
	svc := newTestAuthService(t)
	result, err := svc.Register(context.Background(), "alice", "supersecret", "")
	require.NoError(t, err)
	h := NewAuthHandler(svc, arbor.NewLogger())

	req := withUser(httptest.NewRequest(http.MethodGet, "/auth/me", nil), result.User.UserID)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var profile map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "alice", profile["username"])
}

func TestAuthHandler_Logout_InvalidatesRefreshToken(t *testing.T) {
	svc := newTestAuthService(t)
	result, err := svc.Register(context.Background(), "alice", "supersecret", "")
	require.NoError(t, err)
	h := NewAuthHandler(svc, arbor.NewLogger())

	req := withUser(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), result.User.UserID)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	refreshBody, _ := json.Marshal(map[string]string{"refreshToken": result.RefreshToken})
	refreshRec := httptest.NewRecorder()
	h.RefreshToken(refreshRec, httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(refreshBody)))
	assert.Equal(t, http.StatusUnauthorized, refreshRec.Code)
}
