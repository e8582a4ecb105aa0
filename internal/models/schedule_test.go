package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewScheduleKey_EncodesOwnerPrefix(t *testing.T) {
	key := NewScheduleKey(42, "nightly-report", 1700000000000)
	assert.Equal(t, "42-nightly-report-1700000000000", key)
}

func TestOwnedBy_MatchesOwnerPrefixOnly(t *testing.T) {
	key := NewScheduleKey(42, "nightly-report", 1700000000000)

	assert.True(t, OwnedBy(key, 42))
	assert.False(t, OwnedBy(key, 4))
	assert.False(t, OwnedBy(key, 420))
}
