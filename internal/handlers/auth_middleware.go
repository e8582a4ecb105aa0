package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/auth"
)

type ctxKey string

const userIDKey ctxKey = "userId"

// RequireAuth accepts either a bearer JWT access token or an "X-Api-Key"
// header, resolving either to a caller identity stored in the request
// context for downstream handlers.
func RequireAuth(authSvc *auth.Service, logger arbor.ILogger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			userID, err := authenticate(r, authSvc)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next(w, r.WithContext(ctx))
		}
	}
}

func authenticate(r *http.Request, authSvc *auth.Service) (int64, error) {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		apiKey, err := authSvc.AuthenticateApiKey(r.Context(), key)
		if err != nil {
			return 0, err
		}
		return apiKey.UserID, nil
	}

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return 0, apperr.Unauthenticated("missing bearer token or api key")
	}

	claims, err := authSvc.VerifyAccessToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// UserIDFromContext extracts the authenticated caller's id. Only valid
// inside a handler wrapped by RequireAuth.
func UserIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}
