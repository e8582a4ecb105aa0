package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/common"
)

func testAuthConfig() *common.AuthConfig {
	return &common.AuthConfig{
		TokenSecret:        "access-secret",
		TokenExpiry:        "1800s",
		RefreshTokenSecret: "refresh-secret",
		RefreshTokenExpiry: "7d",
		ResetTokenExpiry:   "1h",
	}
}

func TestTokenIssuer_IssueAndVerifyAccessToken(t *testing.T) {
	issuer := NewTokenIssuer(testAuthConfig())

	token, expiry, err := issuer.IssueAccessToken(7, "alice")
	require.NoError(t, err)
	assert.True(t, expiry.After(time.Now()))

	claims, err := issuer.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestTokenIssuer_VerifyAccessToken_RejectsRefreshToken(t *testing.T) {
	issuer := NewTokenIssuer(testAuthConfig())

	refresh, _, err := issuer.IssueRefreshToken(7, "alice")
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(refresh)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestTokenIssuer_VerifyAccessToken_RejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer(testAuthConfig())
	other := NewTokenIssuer(&common.AuthConfig{TokenSecret: "different-secret", TokenExpiry: "1800s"})

	token, _, err := issuer.IssueAccessToken(7, "alice")
	require.NoError(t, err)

	_, err = other.VerifyAccessToken(token)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}
