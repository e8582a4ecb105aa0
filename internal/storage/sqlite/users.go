package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/models"
)

// UserStore persists the User entity (C7's identity store).
type UserStore struct{ db *DB }

func NewUserStore(db *DB) *UserStore { return &UserStore{db: db} }

// Create inserts a new user, returning apperr.KindConflict on a
// duplicate username.
func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	res, err := s.db.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, webhook_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, u.WebhookURL, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueConstraint(err) {
			return apperr.Conflict("username already exists")
		}
		return apperr.Transient("failed to create user", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return apperr.Transient("failed to read inserted user id", err)
	}
	u.UserID = id
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	return s.scanOne(s.db.db.QueryRowContext(ctx, userSelect+" WHERE user_id = ?", userID))
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanOne(s.db.db.QueryRowContext(ctx, userSelect+" WHERE username = ?", username))
}

// UpdateRefreshToken persists a freshly issued refresh token and its expiry.
func (s *UserStore) UpdateRefreshToken(ctx context.Context, userID int64, token string, expiry time.Time) error {
	_, err := s.db.db.ExecContext(ctx,
		`UPDATE users SET refresh_token = ?, refresh_token_expiry = ?, updated_at = ? WHERE user_id = ?`,
		token, expiry.UTC(), time.Now().UTC(), userID)
	if err != nil {
		return apperr.Transient("failed to update refresh token", err)
	}
	return nil
}

// ClearRefreshToken invalidates the user's refresh token (logout).
func (s *UserStore) ClearRefreshToken(ctx context.Context, userID int64) error {
	_, err := s.db.db.ExecContext(ctx,
		`UPDATE users SET refresh_token = NULL, refresh_token_expiry = NULL, updated_at = ? WHERE user_id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return apperr.Transient("failed to clear refresh token", err)
	}
	return nil
}

// SetResetToken stores a password-reset token and its expiry.
func (s *UserStore) SetResetToken(ctx context.Context, userID int64, token string, expiry time.Time) error {
	_, err := s.db.db.ExecContext(ctx,
		`UPDATE users SET reset_token = ?, reset_token_expiry = ?, updated_at = ? WHERE user_id = ?`,
		token, expiry.UTC(), time.Now().UTC(), userID)
	if err != nil {
		return apperr.Transient("failed to set reset token", err)
	}
	return nil
}

// ResetPassword replaces the password hash and clears the reset token.
func (s *UserStore) ResetPassword(ctx context.Context, userID int64, passwordHash string) error {
	_, err := s.db.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, reset_token = NULL, reset_token_expiry = NULL, updated_at = ? WHERE user_id = ?`,
		passwordHash, time.Now().UTC(), userID)
	if err != nil {
		return apperr.Transient("failed to reset password", err)
	}
	return nil
}

// UpdateWebhookURL sets the legacy single-webhook-url field (§4.6's
// fallback for callers who never registered a structured Webhook).
func (s *UserStore) UpdateWebhookURL(ctx context.Context, userID int64, url string) error {
	_, err := s.db.db.ExecContext(ctx,
		`UPDATE users SET webhook_url = ?, updated_at = ? WHERE user_id = ?`,
		url, time.Now().UTC(), userID)
	if err != nil {
		return apperr.Transient("failed to update webhook url", err)
	}
	return nil
}

const userSelect = `
	SELECT user_id, username, COALESCE(email, ''), password_hash,
	       COALESCE(refresh_token, ''), refresh_token_expiry,
	       COALESCE(reset_token, ''), reset_token_expiry,
	       COALESCE(webhook_url, ''), created_at, updated_at
	FROM users`

func (s *UserStore) scanOne(row *sql.Row) (*models.User, error) {
	var u models.User
	var refreshExpiry, resetExpiry sql.NullTime

	err := row.Scan(&u.UserID, &u.Username, &u.Email, &u.PasswordHash,
		&u.RefreshToken, &refreshExpiry, &u.ResetToken, &resetExpiry,
		&u.WebhookURL, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Transient("failed to load user", err)
	}

	if refreshExpiry.Valid {
		u.RefreshTokenExpiry = &refreshExpiry.Time
	}
	if resetExpiry.Valid {
		u.ResetTokenExpiry = &resetExpiry.Time
	}
	return &u, nil
}
