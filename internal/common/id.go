package common

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/jobforge/internal/models"
)

// NewCorrelationID generates a correlation ID for request tracing.
func NewCorrelationID() string {
	return uuid.New().String()
}

// NewFlowID mints a "flow_{ms}_{rand9}" identifier, matching §4.4 step 1.
func NewFlowID() string {
	return models.NewFlowID(time.Now().UnixMilli(), RandomToken(9))
}

// NewAPIKeyID mints an opaque identifier for an ApiKey row.
func NewAPIKeyID() string {
	return "key_" + uuid.New().String()
}

// NewWebhookID mints an opaque identifier for a Webhook row.
func NewWebhookID() string {
	return "wh_" + uuid.New().String()
}

// RandomToken returns n lowercase alphanumeric characters suitable for
// disambiguating IDs minted in the same millisecond.
func RandomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to
		// a timestamp-derived token rather than panicking.
		return strings.ToLower(fmt.Sprintf("%x", time.Now().UnixNano()))[:n]
	}
	encoded := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))
	if len(encoded) > n {
		encoded = encoded[:n]
	}
	return encoded
}
