package models

import (
	"fmt"
	"strings"
)

// RepeatOpts describes the broker's repeat primitive: either a cron
// pattern or a fixed interval, never both.
type RepeatOpts struct {
	Pattern   string `json:"pattern,omitempty"`
	Every     int64  `json:"every,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	StartDate int64  `json:"startDate,omitempty"`
	EndDate   int64  `json:"endDate,omitempty"`
	TZ        string `json:"tz,omitempty"`
}

// JobTemplate is the data/opts pair instantiated on every scheduler firing.
type JobTemplate struct {
	Data map[string]any `json:"data"`
	Opts JobOpts        `json:"opts"`
}

// Schedule is a recurring-job specification. Key encodes the owning
// user so ownership is decidable from the key alone, without a lookup.
type Schedule struct {
	Key            string      `json:"key"`
	QueueName      string      `json:"queueName"`
	JobName        string      `json:"jobName"`
	Template       JobTemplate `json:"template"`
	Repeat         RepeatOpts  `json:"repeat"`
	Next           int64       `json:"next,omitempty"`
	IterationCount int         `json:"iterationCount"`
}

// NewScheduleKey builds the "{userId}-{jobName}-{createdMs}" composite key.
func NewScheduleKey(userID int64, jobName string, createdMs int64) string {
	return fmt.Sprintf("%d-%s-%d", userID, jobName, createdMs)
}

// ScheduleOwnerPrefix is the prefix that decides ownership for a given
// userId, matched against Schedule.Key with strings.HasPrefix.
func ScheduleOwnerPrefix(userID int64) string {
	return fmt.Sprintf("%d-", userID)
}

// OwnedBy reports whether key belongs to userID, decided purely from the
// key's structure (no lookup required).
func OwnedBy(key string, userID int64) bool {
	return strings.HasPrefix(key, ScheduleOwnerPrefix(userID))
}
