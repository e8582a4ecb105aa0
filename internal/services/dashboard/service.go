// Package dashboard implements the Dashboard/Stats Service (C8):
// per-caller aggregate views over jobs, schedules, and webhooks, scoped
// the same way every other service scopes reads — by caller identity.
package dashboard

import (
	"context"
	"sort"

	"github.com/ternarybob/jobforge/internal/broker"
	"github.com/ternarybob/jobforge/internal/models"
	"github.com/ternarybob/jobforge/internal/storage/sqlite"
)

type Service struct {
	registry *broker.Registry
	webhooks *sqlite.WebhookStore
}

func NewService(registry *broker.Registry, webhooks *sqlite.WebhookStore) *Service {
	return &Service{registry: registry, webhooks: webhooks}
}

// QueueStats is the per-queue, per-status tally scoped to one caller.
type QueueStats struct {
	QueueName string                     `json:"queueName"`
	Counts    map[models.JobStatus]int   `json:"counts"`
	Total     int                        `json:"total"`
}

// RecentJob is one row of the "recent jobs" panel.
type RecentJob struct {
	JobID      string `json:"jobId"`
	Name       string `json:"name"`
	QueueName  string `json:"queueName"`
	Status     models.JobStatus `json:"status"`
	Timestamp  int64  `json:"timestamp"`
	DurationMS int64  `json:"durationMs,omitempty"`
}

// WebhookStats summarizes a caller's webhook delivery posture.
// DeliveryRate is nil: per-delivery outcome history is not persisted
// (§11 design decision — no delivery-attempt ledger), so a success
// rate cannot be computed. The field is kept so the response shape
// matches a future addition without a breaking change.
type WebhookStats struct {
	Registered   int      `json:"registered"`
	Active       int      `json:"active"`
	DeliveryRate *float64 `json:"deliveryRate"`
}

// Overview aggregates everything the dashboard surface needs in one call.
type Overview struct {
	Queues       []QueueStats  `json:"queues"`
	RecentJobs   []RecentJob   `json:"recentJobs"`
	Webhooks     WebhookStats  `json:"webhooks"`
	AllowedQueues []string     `json:"allowedQueues"`
}

const recentJobLimit = 5

func (s *Service) Overview(ctx context.Context, userID int64) (*Overview, error) {
	queueNames := s.registry.AllowedQueues()

	overview := &Overview{AllowedQueues: queueNames}
	var allJobs []*models.Job

	for _, name := range queueNames {
		q, err := s.registry.GetQueue(name)
		if err != nil {
			continue
		}
		jobs, err := q.GetJobsByStatuses(ctx, models.BrokerJobStatuses())
		if err != nil {
			continue
		}

		qs := QueueStats{QueueName: name, Counts: map[models.JobStatus]int{}}
		for _, j := range jobs {
			if j.OwnerUserID() != userID {
				continue
			}
			qs.Counts[j.State]++
			qs.Total++
			allJobs = append(allJobs, j)
		}
		overview.Queues = append(overview.Queues, qs)
	}

	sort.Slice(allJobs, func(i, j int) bool { return allJobs[i].Timestamp > allJobs[j].Timestamp })
	if len(allJobs) > recentJobLimit {
		allJobs = allJobs[:recentJobLimit]
	}
	for _, j := range allJobs {
		duration := int64(0)
		if j.FinishedOn > 0 && j.ProcessedOn > 0 {
			duration = j.FinishedOn - j.ProcessedOn
		}
		overview.RecentJobs = append(overview.RecentJobs, RecentJob{
			JobID: j.ID, Name: j.Name, QueueName: j.QueueName,
			Status: j.State, Timestamp: j.Timestamp, DurationMS: duration,
		})
	}

	hooks, err := s.webhooks.ListByUser(ctx, userID)
	if err == nil {
		active := 0
		for _, w := range hooks {
			if w.Active {
				active++
			}
		}
		overview.Webhooks = WebhookStats{Registered: len(hooks), Active: active, DeliveryRate: nil}
	}

	return overview, nil
}

// SchedulerStats summarizes the caller's active schedules across every
// allowed queue.
func (s *Service) SchedulerStats(ctx context.Context, userID int64) (int, error) {
	total := 0
	for _, name := range s.registry.AllowedQueues() {
		sched, err := s.registry.GetJobScheduler(name)
		if err != nil {
			continue
		}
		all, err := sched.List(ctx)
		if err != nil {
			continue
		}
		for _, sc := range all {
			if models.OwnedBy(sc.Key, userID) {
				total++
			}
		}
	}
	return total, nil
}
