package models

import "time"

// WebhookEventType is the set of event categories a webhook may subscribe to.
type WebhookEventType string

const (
	WebhookEventProgress WebhookEventType = "progress"
	WebhookEventCompleted WebhookEventType = "completed"
	WebhookEventFailed    WebhookEventType = "failed"
	WebhookEventDelta     WebhookEventType = "delta"
	WebhookEventAll       WebhookEventType = "all"
)

// Webhook is a per-user delivery target for queue events. The tuple
// (UserID, URL, EventType) is unique.
type Webhook struct {
	ID          string           `json:"id"`
	UserID      int64            `json:"userId"`
	URL         string           `json:"url"`
	EventType   WebhookEventType `json:"eventType"`
	Description string           `json:"description,omitempty"`
	Active      bool             `json:"active"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Matches reports whether this webhook should receive an event of the
// given type: an exact match, or a subscription to "all".
func (w *Webhook) Matches(eventType WebhookEventType) bool {
	return w.Active && (w.EventType == eventType || w.EventType == WebhookEventAll)
}
