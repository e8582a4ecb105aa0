package auth

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/crypto/bcrypt"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/common"
	"github.com/ternarybob/jobforge/internal/models"
	"github.com/ternarybob/jobforge/internal/storage/sqlite"
)

// Service implements C7: account lifecycle and credential issuance.
type Service struct {
	users   *sqlite.UserStore
	keys    *sqlite.ApiKeyStore
	tokens  *TokenIssuer
	cfg     *common.AuthConfig
	logger  arbor.ILogger
}

func NewService(users *sqlite.UserStore, keys *sqlite.ApiKeyStore, cfg *common.AuthConfig, logger arbor.ILogger) *Service {
	return &Service{users: users, keys: keys, tokens: NewTokenIssuer(cfg), cfg: cfg, logger: logger}
}

// AuthResult bundles a successful login/register/refresh response.
type AuthResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

// Register creates a new account, returning apperr.KindConflict on a
// duplicate username.
func (s *Service) Register(ctx context.Context, username, password, email string) (*AuthResult, error) {
	if len(password) < 8 {
		return nil, apperr.Validation("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Fatal("failed to hash password", err)
	}

	user := &models.User{Username: username, Email: email, PasswordHash: string(hash)}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

// Login verifies credentials and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Unauthenticated("invalid username or password")
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, apperr.Unauthenticated("invalid username or password")
	}
	return s.issueTokens(ctx, user)
}

// Logout invalidates the stored refresh token so it can no longer be
// redeemed for a fresh access token.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.users.ClearRefreshToken(ctx, userID)
}

// Refresh redeems a refresh token for a new access token, rotating the
// refresh token as well.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user.RefreshToken != refreshToken || user.RefreshTokenExpiry == nil || user.RefreshTokenExpiry.Before(time.Now()) {
		return nil, apperr.Unauthenticated("refresh token revoked or expired")
	}
	return s.issueTokens(ctx, user)
}

func (s *Service) issueTokens(ctx context.Context, user *models.User) (*AuthResult, error) {
	access, _, err := s.tokens.IssueAccessToken(user.UserID, user.Username)
	if err != nil {
		return nil, err
	}
	refresh, refreshExpiry, err := s.tokens.IssueRefreshToken(user.UserID, user.Username)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateRefreshToken(ctx, user.UserID, refresh, refreshExpiry); err != nil {
		return nil, err
	}
	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// Me loads the caller's own profile.
func (s *Service) Me(ctx context.Context, userID int64) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// RequestPasswordReset mints a reset token for the given username. The
// caller is always told the request succeeded, win or lose, so this
// does not distinguish "unknown user" from "reset issued" to callers.
func (s *Service) RequestPasswordReset(ctx context.Context, username string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return "", nil
		}
		return "", err
	}

	token := randomToken(24)
	expiry := time.Now().Add(common.ParseDurationDefault(s.cfg.ResetTokenExpiry, time.Hour))
	if err := s.users.SetResetToken(ctx, user.UserID, token, expiry); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword redeems a reset token for a new password.
func (s *Service) ResetPassword(ctx context.Context, username, token, newPassword string) error {
	if len(newPassword) < 8 {
		return apperr.Validation("password must be at least 8 characters")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if user.ResetToken == "" || user.ResetToken != token || user.ResetTokenExpiry == nil || user.ResetTokenExpiry.Before(time.Now()) {
		return apperr.Unauthenticated("invalid or expired reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Fatal("failed to hash password", err)
	}
	return s.users.ResetPassword(ctx, user.UserID, string(hash))
}

// CreateApiKey mints and persists a new API key for userID.
func (s *Service) CreateApiKey(ctx context.Context, userID int64, name string, permissions []string, expiresAt *time.Time) (string, *models.ApiKey, error) {
	plaintext, prefix, hash, err := GenerateApiKey()
	if err != nil {
		return "", nil, err
	}

	key := &models.ApiKey{
		ID:          common.NewAPIKeyID(),
		UserID:      userID,
		Name:        name,
		Prefix:      prefix,
		KeyHash:     hash,
		Permissions: permissions,
		ExpiresAt:   expiresAt,
		IsActive:    true,
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return "", nil, err
	}
	return plaintext, key, nil
}

// AuthenticateApiKey resolves a plaintext API key to its owning row,
// rejecting inactive or expired keys, and best-effort records usage.
func (s *Service) AuthenticateApiKey(ctx context.Context, plaintext string) (*models.ApiKey, error) {
	if len(plaintext) < models.ApiKeyPrefixLen {
		return nil, apperr.Unauthenticated("invalid api key")
	}
	candidates, err := s.keys.FindByPrefix(ctx, plaintext[:models.ApiKeyPrefixLen])
	if err != nil {
		return nil, err
	}

	key, err := VerifyApiKey(plaintext, candidates)
	if err != nil {
		return nil, err
	}
	if !key.Usable(time.Now()) {
		return nil, apperr.Unauthenticated("api key revoked or expired")
	}
	s.keys.TouchLastUsed(ctx, key.ID)
	return key, nil
}

// ListApiKeys returns a user's keys.
func (s *Service) ListApiKeys(ctx context.Context, userID int64) ([]*models.ApiKey, error) {
	return s.keys.ListByUser(ctx, userID)
}

// GetApiKey loads a single key owned by userID.
func (s *Service) GetApiKey(ctx context.Context, id string, userID int64) (*models.ApiKey, error) {
	return s.keys.GetByID(ctx, id, userID)
}

// UpdateApiKey changes a key's name and permissions; the secret and
// prefix cannot be rotated this way.
func (s *Service) UpdateApiKey(ctx context.Context, id string, userID int64, name string, permissions []string) (*models.ApiKey, error) {
	if err := s.keys.Update(ctx, id, userID, name, permissions); err != nil {
		return nil, err
	}
	return s.keys.GetByID(ctx, id, userID)
}

// RevokeApiKey deactivates a key owned by userID.
func (s *Service) RevokeApiKey(ctx context.Context, id string, userID int64) error {
	return s.keys.Revoke(ctx, id, userID)
}

// VerifyAccessToken exposes token verification for middleware use.
func (s *Service) VerifyAccessToken(token string) (*Claims, error) {
	return s.tokens.VerifyAccessToken(token)
}
