// Package auth implements C7: user registration/login, JWT access and
// refresh tokens, password reset, and API-key issuance/verification.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/common"
)

// Claims is the JWT payload minted for both access and refresh tokens.
// Kind distinguishes the two so a refresh token cannot be replayed as
// an access token against protected routes.
type Claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Kind     string `json:"kind"` // "access" or "refresh"
	jwt.RegisteredClaims
}

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// TokenIssuer mints and verifies access/refresh JWTs per AuthConfig.
type TokenIssuer struct {
	cfg *common.AuthConfig
}

func NewTokenIssuer(cfg *common.AuthConfig) *TokenIssuer {
	return &TokenIssuer{cfg: cfg}
}

func (t *TokenIssuer) IssueAccessToken(userID int64, username string) (string, time.Time, error) {
	expiry := common.ParseDurationDefault(t.cfg.TokenExpiry, 30*time.Minute)
	return t.issue(userID, username, kindAccess, t.cfg.TokenSecret, expiry)
}

func (t *TokenIssuer) IssueRefreshToken(userID int64, username string) (string, time.Time, error) {
	expiry := common.ParseDurationDefault(t.cfg.RefreshTokenExpiry, 7*24*time.Hour)
	return t.issue(userID, username, kindRefresh, t.cfg.RefreshTokenSecret, expiry)
}

func (t *TokenIssuer) issue(userID int64, username, kind, secret string, expiry time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(expiry)

	claims := Claims{
		UserID:   userID,
		Username: username,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, apperr.Fatal("failed to sign token", err)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken parses and validates an access token, rejecting a
// well-formed refresh token presented in its place.
func (t *TokenIssuer) VerifyAccessToken(tokenStr string) (*Claims, error) {
	return t.verify(tokenStr, t.cfg.TokenSecret, kindAccess)
}

// VerifyRefreshToken parses and validates a refresh token.
func (t *TokenIssuer) VerifyRefreshToken(tokenStr string) (*Claims, error) {
	return t.verify(tokenStr, t.cfg.RefreshTokenSecret, kindRefresh)
}

func (t *TokenIssuer) verify(tokenStr, secret, wantKind string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.Unauthenticated("invalid or expired token")
	}
	if claims.Kind != wantKind {
		return nil, apperr.Unauthenticated("wrong token type")
	}
	return claims, nil
}
