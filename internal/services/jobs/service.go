// Package jobs implements the Job Service (C2): submit, get, list, and
// delete against a single allowed queue, enforcing per-caller ownership
// on every read and delete.
package jobs

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/broker"
	"github.com/ternarybob/jobforge/internal/models"
)

type Service struct {
	registry *broker.Registry
}

func NewService(registry *broker.Registry) *Service {
	return &Service{registry: registry}
}

// Submit enqueues a new job onto queueName, stamping the caller's
// identity into Data for later ownership checks and falling back to
// DefaultJobOpts on invalid opts, per §4.2.
func (s *Service) Submit(ctx context.Context, queueName, jobName string, data map[string]any, rawOpts json.RawMessage, userID int64) (*models.Job, error) {
	q, err := s.registry.GetQueue(queueName)
	if err != nil {
		return nil, err
	}

	opts, _ := models.ParseJobOpts(rawOpts)

	if data == nil {
		data = map[string]any{}
	}
	data["userId"] = userID

	return q.Enqueue(ctx, jobName, data, opts)
}

// Get loads a job by id, rejecting access from any caller other than
// its owner.
func (s *Service) Get(ctx context.Context, queueName, jobID string, userID int64) (*models.Job, error) {
	q, err := s.registry.GetQueue(queueName)
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerUserID() != userID {
		return nil, apperr.Forbidden("job does not belong to caller")
	}
	return job, nil
}

// List returns the caller's own jobs on queueName matching statuses,
// newest first, paginated. Ownership filtering happens after
// retrieval, per §4.2.
func (s *Service) List(ctx context.Context, queueName string, statuses []models.JobStatus, userID int64, page, limit int) ([]*models.Job, models.Pagination, error) {
	q, err := s.registry.GetQueue(queueName)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	if len(statuses) == 0 {
		statuses = models.BrokerJobStatuses()
	}

	jobs, err := q.GetJobsByStatuses(ctx, statuses)
	if err != nil {
		return nil, models.Pagination{}, err
	}

	owned := jobs[:0]
	for _, j := range jobs {
		if j.OwnerUserID() == userID {
			owned = append(owned, j)
		}
	}

	sort.Slice(owned, func(i, j int) bool { return owned[i].Timestamp > owned[j].Timestamp })

	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	total := len(owned)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return owned[start:end], models.NewPagination(total, page, limit), nil
}

// Delete removes a job the caller owns.
func (s *Service) Delete(ctx context.Context, queueName, jobID string, userID int64) error {
	job, err := s.Get(ctx, queueName, jobID, userID)
	if err != nil {
		return err
	}
	q, err := s.registry.GetQueue(queueName)
	if err != nil {
		return err
	}
	return q.RemoveJob(ctx, job.ID)
}
