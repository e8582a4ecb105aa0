package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/models"
)

// Scheduler is the broker's job-scheduler primitive (§1: "a job-scheduler
// primitive with pattern/interval repeat"), modeled as a Redis hash per
// schedule plus a set for enumeration. Upsert is idempotent on key.
type Scheduler struct {
	name   string
	rdb    *redis.Client
	logger arbor.ILogger
}

func newScheduler(name string, rdb *redis.Client, logger arbor.ILogger) *Scheduler {
	return &Scheduler{name: name, rdb: rdb, logger: logger}
}

func (s *Scheduler) schedKey(key string) string { return fmt.Sprintf("jf:%s:sched:%s", s.name, key) }
func (s *Scheduler) indexKey() string           { return fmt.Sprintf("jf:%s:scheds", s.name) }

// Upsert creates or idempotently overwrites the schedule at key
// (override=true semantics, per §4.3).
func (s *Scheduler) Upsert(ctx context.Context, key string, repeat models.RepeatOpts, jobName string, data map[string]any, opts models.JobOpts) error {
	sched := models.Schedule{
		Key:       key,
		QueueName: s.name,
		JobName:   jobName,
		Template:  models.JobTemplate{Data: data, Opts: opts},
		Repeat:    repeat,
	}

	raw, err := json.Marshal(sched)
	if err != nil {
		return apperr.Fatal("failed to marshal schedule", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, s.schedKey(key), "json", string(raw))
	pipe.SAdd(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Transient("failed to persist schedule", err)
	}
	return nil
}

// List enumerates every schedule on this queue. Individual read errors
// are logged and the entry skipped, per §4.3's log-and-continue policy.
func (s *Scheduler) List(ctx context.Context) ([]*models.Schedule, error) {
	keys, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("queue", s.name).Msg("failed to enumerate schedulers")
		return nil, nil
	}

	out := make([]*models.Schedule, 0, len(keys))
	for _, key := range keys {
		sched, err := s.Get(ctx, key)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to load schedule, skipping")
			continue
		}
		out = append(out, sched)
	}
	return out, nil
}

// Get loads a single schedule by key, or apperr.KindNotFound.
func (s *Scheduler) Get(ctx context.Context, key string) (*models.Schedule, error) {
	raw, err := s.rdb.HGet(ctx, s.schedKey(key), "json").Result()
	if err == redis.Nil {
		return nil, apperr.NotFound(fmt.Sprintf("schedule %q not found", key))
	}
	if err != nil {
		return nil, apperr.Transient("failed to load schedule", err)
	}

	var sched models.Schedule
	if err := json.Unmarshal([]byte(raw), &sched); err != nil {
		return nil, apperr.Fatal("failed to decode schedule", err)
	}
	return &sched, nil
}

// Remove deletes the schedule at key. Returns false (not an error) if it
// did not exist, matching the idempotent-remove contract in §4.3.
func (s *Scheduler) Remove(ctx context.Context, key string) (bool, error) {
	removed, err := s.rdb.SRem(ctx, s.indexKey(), key).Result()
	if err != nil {
		return false, apperr.Transient("failed to remove schedule index", err)
	}
	if removed == 0 {
		return false, nil
	}
	if err := s.rdb.Del(ctx, s.schedKey(key)).Err(); err != nil {
		return false, apperr.Transient("failed to delete schedule", err)
	}
	return true, nil
}
