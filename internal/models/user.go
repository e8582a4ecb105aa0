package models

import "time"

// User is a registered account. The core never deletes a User; it is
// mutated by login/logout, password reset, and webhook-URL updates.
type User struct {
	UserID             int64      `json:"userId"`
	Username           string     `json:"username"`
	Email              string     `json:"email,omitempty"`
	PasswordHash       string     `json:"-"`
	RefreshToken       string     `json:"-"`
	RefreshTokenExpiry *time.Time `json:"-"`
	ResetToken         string     `json:"-"`
	ResetTokenExpiry   *time.Time `json:"-"`
	WebhookURL         string     `json:"webhookUrl,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Public returns the subset of User safe to serialize to a client.
func (u *User) Public() map[string]any {
	return map[string]any{
		"userId":   u.UserID,
		"username": u.Username,
		"email":    u.Email,
	}
}
