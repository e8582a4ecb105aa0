package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/models"
)

// ApiKeyStore persists the ApiKey entity.
type ApiKeyStore struct{ db *DB }

func NewApiKeyStore(db *DB) *ApiKeyStore { return &ApiKeyStore{db: db} }

func (s *ApiKeyStore) Create(ctx context.Context, k *models.ApiKey) error {
	perms, err := json.Marshal(k.Permissions)
	if err != nil {
		return apperr.Fatal("failed to marshal permissions", err)
	}
	k.CreatedAt = time.Now().UTC()

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, prefix, key_hash, permissions, created_at, expires_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.UserID, k.Name, k.Prefix, k.KeyHash, string(perms), k.CreatedAt, k.ExpiresAt, k.IsActive)
	if err != nil {
		return apperr.Transient("failed to create api key", err)
	}
	return nil
}

// FindByPrefix narrows candidates sharing a plaintext prefix, so the
// caller can run the slow bcrypt compare against only a handful of rows.
func (s *ApiKeyStore) FindByPrefix(ctx context.Context, prefix string) ([]*models.ApiKey, error) {
	rows, err := s.db.db.QueryContext(ctx, apiKeySelect+" WHERE prefix = ?", prefix)
	if err != nil {
		return nil, apperr.Transient("failed to query api keys", err)
	}
	defer rows.Close()
	return scanApiKeys(rows)
}

func (s *ApiKeyStore) ListByUser(ctx context.Context, userID int64) ([]*models.ApiKey, error) {
	rows, err := s.db.db.QueryContext(ctx, apiKeySelect+" WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, apperr.Transient("failed to list api keys", err)
	}
	defer rows.Close()
	return scanApiKeys(rows)
}

// Update changes an api key's name and permissions. The secret and
// prefix are immutable once minted; re-issue a new key to rotate those.
func (s *ApiKeyStore) Update(ctx context.Context, id string, userID int64, name string, permissions []string) error {
	perms, err := json.Marshal(permissions)
	if err != nil {
		return apperr.Fatal("failed to marshal permissions", err)
	}
	res, err := s.db.db.ExecContext(ctx,
		`UPDATE api_keys SET name = ?, permissions = ? WHERE id = ? AND user_id = ?`,
		name, string(perms), id, userID)
	if err != nil {
		return apperr.Transient("failed to update api key", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("api key not found")
	}
	return nil
}

// GetByID loads a single api key scoped to its owner.
func (s *ApiKeyStore) GetByID(ctx context.Context, id string, userID int64) (*models.ApiKey, error) {
	rows, err := s.db.db.QueryContext(ctx, apiKeySelect+" WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return nil, apperr.Transient("failed to load api key", err)
	}
	defer rows.Close()
	keys, err := scanApiKeys(rows)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, apperr.NotFound("api key not found")
	}
	return keys[0], nil
}

func (s *ApiKeyStore) Revoke(ctx context.Context, id string, userID int64) error {
	res, err := s.db.db.ExecContext(ctx,
		`UPDATE api_keys SET is_active = 0 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return apperr.Transient("failed to revoke api key", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("api key not found")
	}
	return nil
}

func (s *ApiKeyStore) TouchLastUsed(ctx context.Context, id string) {
	// Best-effort: a failed lastUsed update must never block auth.
	_, _ = s.db.db.ExecContext(ctx, `UPDATE api_keys SET last_used = ? WHERE id = ?`, time.Now().UTC(), id)
}

const apiKeySelect = `
	SELECT id, user_id, name, prefix, key_hash, permissions, last_used, created_at, expires_at, is_active
	FROM api_keys`

func scanApiKeys(rows *sql.Rows) ([]*models.ApiKey, error) {
	var out []*models.ApiKey
	for rows.Next() {
		var k models.ApiKey
		var perms string
		var lastUsed, expiresAt sql.NullTime

		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.Prefix, &k.KeyHash, &perms,
			&lastUsed, &k.CreatedAt, &expiresAt, &k.IsActive); err != nil {
			return nil, apperr.Transient("failed to scan api key", err)
		}
		if err := json.Unmarshal([]byte(perms), &k.Permissions); err != nil {
			return nil, apperr.Fatal("failed to decode permissions", err)
		}
		if lastUsed.Valid {
			k.LastUsed = &lastUsed.Time
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}
