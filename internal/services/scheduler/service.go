// Package scheduler implements the Scheduler Service (C3): CRUD over
// the broker's job-scheduler primitive, scoped to the caller who
// created each schedule via the owner-by-key-prefix scheme.
package scheduler

import (
	"context"
	"time"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/broker"
	"github.com/ternarybob/jobforge/internal/common"
	"github.com/ternarybob/jobforge/internal/models"
)

type Service struct {
	registry *broker.Registry
}

func NewService(registry *broker.Registry) *Service {
	return &Service{registry: registry}
}

// Create validates the repeat spec and upserts a new schedule keyed to
// the caller, per §4.3.
func (s *Service) Create(ctx context.Context, queueName, jobName string, data map[string]any, opts models.JobOpts, repeat models.RepeatOpts, userID int64) (*models.Schedule, error) {
	if repeat.Pattern != "" {
		if err := common.ValidateJobSchedule(repeat.Pattern); err != nil {
			return nil, apperr.Validation(err.Error())
		}
	} else if repeat.Every <= 0 {
		return nil, apperr.Validation("repeat must set either pattern or every")
	}

	sched, err := s.registry.GetJobScheduler(queueName)
	if err != nil {
		return nil, err
	}

	key := models.NewScheduleKey(userID, jobName, time.Now().UnixMilli())
	if err := sched.Upsert(ctx, key, repeat, jobName, data, opts); err != nil {
		return nil, err
	}
	return sched.Get(ctx, key)
}

// ListForUser returns every schedule on queueName owned by userID.
func (s *Service) ListForUser(ctx context.Context, queueName string, userID int64) ([]*models.Schedule, error) {
	sched, err := s.registry.GetJobScheduler(queueName)
	if err != nil {
		return nil, err
	}

	all, err := sched.List(ctx)
	if err != nil {
		return nil, err
	}

	owned := make([]*models.Schedule, 0, len(all))
	for _, sc := range all {
		if models.OwnedBy(sc.Key, userID) {
			owned = append(owned, sc)
		}
	}
	return owned, nil
}

// Get loads a single schedule, rejecting access from a non-owner.
func (s *Service) Get(ctx context.Context, queueName, key string, userID int64) (*models.Schedule, error) {
	sched, err := s.registry.GetJobScheduler(queueName)
	if err != nil {
		return nil, err
	}
	sc, err := sched.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !models.OwnedBy(sc.Key, userID) {
		return nil, apperr.Forbidden("schedule does not belong to caller")
	}
	return sc, nil
}

// Remove deletes a schedule the caller owns, returning whether a
// schedule actually existed to remove. Ownership is checked by key
// prefix alone rather than by loading the schedule first, so removing
// an already-gone key is idempotent: it returns false, not
// apperr.KindNotFound (§4.3, §8).
func (s *Service) Remove(ctx context.Context, queueName, key string, userID int64) (bool, error) {
	if !models.OwnedBy(key, userID) {
		return false, apperr.Forbidden("schedule does not belong to caller")
	}
	sched, err := s.registry.GetJobScheduler(queueName)
	if err != nil {
		return false, err
	}
	return sched.Remove(ctx, key)
}
