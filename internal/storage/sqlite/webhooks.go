package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/models"
)

// WebhookStore persists the Webhook entity (C6's registration store).
type WebhookStore struct{ db *DB }

func NewWebhookStore(db *DB) *WebhookStore { return &WebhookStore{db: db} }

func (s *WebhookStore) Create(ctx context.Context, w *models.Webhook) error {
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, user_id, url, event_type, description, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.UserID, w.URL, string(w.EventType), w.Description, w.Active, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if isUniqueConstraint(err) {
			return apperr.Conflict("webhook already registered for this url and event type")
		}
		return apperr.Transient("failed to create webhook", err)
	}
	return nil
}

func (s *WebhookStore) ListByUser(ctx context.Context, userID int64) ([]*models.Webhook, error) {
	rows, err := s.db.db.QueryContext(ctx, webhookSelect+" WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, apperr.Transient("failed to list webhooks", err)
	}
	defer rows.Close()
	return scanWebhooks(rows)
}

// ListByEventType returns every active webhook across all users matching
// eventType or subscribed to "all", for C6's delivery fan-out.
func (s *WebhookStore) ListByEventType(ctx context.Context, eventType models.WebhookEventType) ([]*models.Webhook, error) {
	rows, err := s.db.db.QueryContext(ctx,
		webhookSelect+" WHERE active = 1 AND (event_type = ? OR event_type = ?)",
		string(eventType), string(models.WebhookEventAll))
	if err != nil {
		return nil, apperr.Transient("failed to list webhooks by event", err)
	}
	defer rows.Close()
	return scanWebhooks(rows)
}

// Update changes a webhook's url/eventType/description/active flag,
// scoped to its owner.
func (s *WebhookStore) Update(ctx context.Context, w *models.Webhook) error {
	w.UpdatedAt = time.Now().UTC()
	res, err := s.db.db.ExecContext(ctx, `
		UPDATE webhooks SET url = ?, event_type = ?, description = ?, active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		w.URL, string(w.EventType), w.Description, w.Active, w.UpdatedAt, w.ID, w.UserID)
	if err != nil {
		if isUniqueConstraint(err) {
			return apperr.Conflict("webhook already registered for this url and event type")
		}
		return apperr.Transient("failed to update webhook", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("webhook not found")
	}
	return nil
}

// GetByID loads a single webhook scoped to its owner.
func (s *WebhookStore) GetByID(ctx context.Context, id string, userID int64) (*models.Webhook, error) {
	row := s.db.db.QueryRowContext(ctx, webhookSelect+" WHERE id = ? AND user_id = ?", id, userID)
	var w models.Webhook
	var eventType string
	if err := row.Scan(&w.ID, &w.UserID, &w.URL, &eventType, &w.Description, &w.Active, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("webhook not found")
		}
		return nil, apperr.Transient("failed to load webhook", err)
	}
	w.EventType = models.WebhookEventType(eventType)
	return &w, nil
}

func (s *WebhookStore) Delete(ctx context.Context, id string, userID int64) error {
	res, err := s.db.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return apperr.Transient("failed to delete webhook", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("webhook not found")
	}
	return nil
}

const webhookSelect = `
	SELECT id, user_id, url, event_type, COALESCE(description, ''), active, created_at, updated_at
	FROM webhooks`

func scanWebhooks(rows *sql.Rows) ([]*models.Webhook, error) {
	var out []*models.Webhook
	for rows.Next() {
		var w models.Webhook
		var eventType string
		if err := rows.Scan(&w.ID, &w.UserID, &w.URL, &eventType, &w.Description, &w.Active, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, apperr.Transient("failed to scan webhook", err)
		}
		w.EventType = models.WebhookEventType(eventType)
		out = append(out, &w)
	}
	return out, rows.Err()
}
