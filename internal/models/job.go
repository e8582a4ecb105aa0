package models

import "encoding/json"

// JobStatus enumerates the statuses a job can carry. Stuck is a synthetic,
// reported-only status: the broker never produces it directly, only
// updateFlowProgress can assign it to a JobProgress entry.
type JobStatus string

const (
	JobStatusCompleted       JobStatus = "completed"
	JobStatusFailed          JobStatus = "failed"
	JobStatusActive          JobStatus = "active"
	JobStatusDelayed         JobStatus = "delayed"
	JobStatusWaiting         JobStatus = "waiting"
	JobStatusWaitingChildren JobStatus = "waiting-children"
	JobStatusPaused          JobStatus = "paused"
	JobStatusStuck           JobStatus = "stuck"
)

// BrokerJobStatuses are the statuses the broker itself enumerates when
// listing jobs. Stuck is deliberately excluded: it only ever originates
// from an explicit flow-progress report.
func BrokerJobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusCompleted, JobStatusFailed, JobStatusActive,
		JobStatusDelayed, JobStatusWaiting, JobStatusWaitingChildren,
		JobStatusPaused,
	}
}

// RetentionOpts mirrors the bounded-count form of BullMQ's
// removeOnComplete/removeOnFail. The boolean form is not modeled: a
// boolean value fails to decode, so ParseJobOpts falls back to defaults.
type RetentionOpts struct {
	Count *int `json:"count,omitempty"`
}

// JobOpts is the strongly-typed subset of job options the core
// understands; unknown keys survive in Extra so a caller's custom
// options round-trip even though the core never interprets them.
type JobOpts struct {
	RemoveOnComplete *RetentionOpts `json:"removeOnComplete,omitempty"`
	RemoveOnFail     *RetentionOpts `json:"removeOnFail,omitempty"`
	Attempts         int            `json:"attempts,omitempty"`
	Delay            int64          `json:"delay,omitempty"`
	Priority         int            `json:"priority,omitempty"`
	Extra            map[string]any `json:"-"`
}

// DefaultJobOpts is substituted whenever submitted opts are nil or fail
// the JSON round-trip check (§4.2 validation policy).
func DefaultJobOpts() JobOpts {
	three, five := 3, 5
	return JobOpts{
		RemoveOnComplete: &RetentionOpts{Count: &three},
		RemoveOnFail:     &RetentionOpts{Count: &five},
	}
}

// ParseJobOpts validates raw as a JSON-serializable object and decodes it
// into JobOpts, preserving unrecognized fields in Extra. A nil or "null"
// raw yields DefaultJobOpts with ok=true; an unparsable raw falls back to
// DefaultJobOpts with ok=false so the caller can log the fallback without
// failing the submit call.
func ParseJobOpts(raw json.RawMessage) (JobOpts, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return DefaultJobOpts(), true
	}

	var known JobOpts
	if err := json.Unmarshal(raw, &known); err != nil {
		return DefaultJobOpts(), false
	}

	var bag map[string]any
	if err := json.Unmarshal(raw, &bag); err != nil {
		return DefaultJobOpts(), false
	}
	delete(bag, "removeOnComplete")
	delete(bag, "removeOnFail")
	delete(bag, "attempts")
	delete(bag, "delay")
	delete(bag, "priority")
	known.Extra = bag

	return known, true
}

// Job is the broker-owned record. Data always carries an injected
// "userId" field used for every ownership check in the core.
type Job struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	QueueName    string         `json:"queueName"`
	Data         map[string]any `json:"data"`
	Opts         JobOpts        `json:"opts"`
	State        JobStatus      `json:"state"`
	Progress     any            `json:"progress,omitempty"`
	ReturnValue  any            `json:"returnvalue,omitempty"`
	FailedReason string         `json:"failedReason,omitempty"`
	Timestamp    int64          `json:"timestamp"`
	ProcessedOn  int64          `json:"processedOn,omitempty"`
	FinishedOn   int64          `json:"finishedOn,omitempty"`
}

// OwnerUserID extracts the injected caller identity from Data, or 0 if
// absent/malformed.
func (j *Job) OwnerUserID() int64 {
	if j.Data == nil {
		return 0
	}
	switch v := j.Data["userId"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// JobView is the trimmed, client-facing projection of a Job returned by
// Job Service get/list operations.
type JobView struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	State        JobStatus      `json:"state"`
	Progress     any            `json:"progress,omitempty"`
	Result       any            `json:"result,omitempty"`
	FailedReason string         `json:"failedReason,omitempty"`
	Timestamp    JobTimestamps  `json:"timestamp"`
	Data         map[string]any `json:"-"`
}

// JobTimestamps groups the three lifecycle instants a JobView reports.
type JobTimestamps struct {
	Created  int64 `json:"created"`
	Started  int64 `json:"started,omitempty"`
	Finished int64 `json:"finished,omitempty"`
}

// ToView projects a broker Job into its client-facing JobView shape.
func (j *Job) ToView() JobView {
	return JobView{
		ID:           j.ID,
		Name:         j.Name,
		State:        j.State,
		Progress:     j.Progress,
		Result:       j.ReturnValue,
		FailedReason: j.FailedReason,
		Timestamp: JobTimestamps{
			Created:  j.Timestamp,
			Started:  j.ProcessedOn,
			Finished: j.FinishedOn,
		},
		Data: j.Data,
	}
}

// Pagination describes a single page of a filtered job listing.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPagination computes Pages from total/limit, matching ⌈total/limit⌉.
func NewPagination(total, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Total: total, Page: page, Limit: limit, Pages: pages}
}
