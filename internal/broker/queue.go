package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/models"
)

// Queue is a broker-backed handle for one allowed queue name. All
// operations are implemented atop Redis hashes (job records), sets
// (per-status indices), a list (FIFO waiting order) and pub/sub (event
// notification) — the primitives §1 assumes the broker exposes.
type Queue struct {
	name   string
	rdb    *redis.Client
	logger arbor.ILogger
}

func newQueue(name string, rdb *redis.Client, logger arbor.ILogger) *Queue {
	return &Queue{name: name, rdb: rdb, logger: logger}
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) jobKey(id string) string    { return fmt.Sprintf("jf:%s:job:%s", q.name, id) }
func (q *Queue) statusKey(s models.JobStatus) string {
	return fmt.Sprintf("jf:%s:status:%s", q.name, s)
}
func (q *Queue) waitingKey() string { return fmt.Sprintf("jf:%s:waiting", q.name) }
func (q *Queue) idSeqKey() string   { return fmt.Sprintf("jf:%s:idseq", q.name) }
func (q *Queue) eventsKey() string  { return fmt.Sprintf("jf:%s:events", q.name) }

// Enqueue adds a new job to the queue, returning the broker-assigned id.
func (q *Queue) Enqueue(ctx context.Context, name string, data map[string]any, opts models.JobOpts) (*models.Job, error) {
	id, err := q.rdb.Incr(ctx, q.idSeqKey()).Result()
	if err != nil {
		return nil, apperr.Transient("failed to allocate job id", err)
	}

	job := &models.Job{
		ID:        fmt.Sprintf("%d", id),
		Name:      name,
		QueueName: q.name,
		Data:      data,
		Opts:      opts,
		State:     models.JobStatusWaiting,
		Timestamp: time.Now().UnixMilli(),
	}

	if err := q.save(ctx, job); err != nil {
		return nil, err
	}

	pipe := q.rdb.Pipeline()
	pipe.SAdd(ctx, q.statusKey(models.JobStatusWaiting), job.ID)
	pipe.LPush(ctx, q.waitingKey(), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Transient("failed to index job", err)
	}

	return job, nil
}

// save persists the job record as JSON in its hash. Serialized as a
// single field so job reads/writes stay atomic without multi-key
// transactions.
func (q *Queue) save(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return apperr.Fatal("failed to marshal job", err)
	}
	if err := q.rdb.HSet(ctx, q.jobKey(job.ID), "json", string(data)).Err(); err != nil {
		return apperr.Transient("failed to persist job", err)
	}
	return nil
}

// GetJob loads a single job by id. Returns apperr.KindNotFound if absent.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	raw, err := q.rdb.HGet(ctx, q.jobKey(jobID), "json").Result()
	if err == redis.Nil {
		return nil, apperr.NotFound(fmt.Sprintf("job %q not found", jobID))
	}
	if err != nil {
		return nil, apperr.Transient("failed to load job", err)
	}

	var job models.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, apperr.Fatal("failed to decode job", err)
	}
	return &job, nil
}

// GetJobsByStatuses fetches every job currently indexed under any of the
// given statuses. The caller applies ownership filtering and pagination
// afterward (§4.2: "filtering by owner happens after retrieval").
func (q *Queue) GetJobsByStatuses(ctx context.Context, statuses []models.JobStatus) ([]*models.Job, error) {
	idSet := make(map[string]struct{})
	for _, s := range statuses {
		ids, err := q.rdb.SMembers(ctx, q.statusKey(s)).Result()
		if err != nil {
			return nil, apperr.Transient("failed to list job status index", err)
		}
		for _, id := range ids {
			idSet[id] = struct{}{}
		}
	}

	jobs := make([]*models.Job, 0, len(idSet))
	for id := range idSet {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				// Job was removed between index read and hash read; skip.
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Dequeue blocks up to blockFor waiting for a job id to appear in the
// waiting list, then promotes it to active and returns the job. A nil
// job with a nil error means the wait elapsed with nothing to dequeue,
// which is the normal idle case for a polling worker loop.
func (q *Queue) Dequeue(ctx context.Context, blockFor time.Duration) (*models.Job, error) {
	res, err := q.rdb.BRPop(ctx, blockFor, q.waitingKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, apperr.Transient("failed to dequeue job", err)
	}

	jobID := res[1]
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	prevStatus := job.State
	job.State = models.JobStatusActive
	job.ProcessedOn = time.Now().UnixMilli()
	if err := q.save(ctx, job); err != nil {
		return nil, err
	}

	pipe := q.rdb.Pipeline()
	pipe.SRem(ctx, q.statusKey(prevStatus), jobID)
	pipe.SAdd(ctx, q.statusKey(models.JobStatusActive), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Transient("failed to update job status index", err)
	}

	return job, nil
}

// RemoveJob deletes a job and its status-index membership.
func (q *Queue) RemoveJob(ctx context.Context, jobID string) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	pipe := q.rdb.Pipeline()
	pipe.Del(ctx, q.jobKey(jobID))
	pipe.SRem(ctx, q.statusKey(job.State), jobID)
	pipe.LRem(ctx, q.waitingKey(), 0, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Transient("failed to remove job", err)
	}
	return nil
}

// transition moves a job from its current status set into next, updates
// the stored record, and publishes an event of the given type so the
// Event Demultiplexer (C5) can fan it out.
func (q *Queue) transition(ctx context.Context, jobID string, next models.JobStatus, mutate func(*models.Job), eventType string, payload map[string]any) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	prevStatus := job.State
	mutate(job)
	job.State = next

	if err := q.save(ctx, job); err != nil {
		return err
	}

	pipe := q.rdb.Pipeline()
	pipe.SRem(ctx, q.statusKey(prevStatus), jobID)
	pipe.SAdd(ctx, q.statusKey(next), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Transient("failed to update job status index", err)
	}

	q.publish(ctx, eventType, jobID, payload)
	return nil
}

// ReportProgress updates progress and publishes a "progress" event.
func (q *Queue) ReportProgress(ctx context.Context, jobID string, progress any) error {
	return q.transition(ctx, jobID, models.JobStatusActive, func(j *models.Job) {
		j.Progress = progress
		if j.ProcessedOn == 0 {
			j.ProcessedOn = time.Now().UnixMilli()
		}
	}, "progress", map[string]any{"progress": progress})
}

// CompleteJob marks a job completed with the given return value. This
// is the broker-side operation an external worker calls when it
// finishes processing (the worker itself is out of scope; this is its
// interface to the broker).
func (q *Queue) CompleteJob(ctx context.Context, jobID string, result any) error {
	return q.transition(ctx, jobID, models.JobStatusCompleted, func(j *models.Job) {
		j.ReturnValue = result
		j.FinishedOn = time.Now().UnixMilli()
	}, "completed", map[string]any{"result": result})
}

// FailJob marks a job failed with the given reason.
func (q *Queue) FailJob(ctx context.Context, jobID string, reason string) error {
	return q.transition(ctx, jobID, models.JobStatusFailed, func(j *models.Job) {
		j.FailedReason = reason
		j.FinishedOn = time.Now().UnixMilli()
	}, "failed", map[string]any{"error": reason})
}

// Event is one queue-event notification delivered to C5 subscribers.
type Event struct {
	Type  string
	JobID string
	Payload map[string]any
}

func (q *Queue) publish(ctx context.Context, eventType, jobID string, payload map[string]any) {
	evt := Event{Type: eventType, JobID: jobID, Payload: payload}
	data, err := json.Marshal(evt)
	if err != nil {
		q.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to marshal queue event")
		return
	}
	if err := q.rdb.Publish(ctx, q.eventsKey(), data).Err(); err != nil {
		q.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to publish queue event")
	}
}

// Subscribe opens a pub/sub subscription to this queue's event channel.
// The returned channel is closed when ctx is cancelled or the
// subscription is closed.
func (q *Queue) Subscribe(ctx context.Context) (<-chan Event, func() error) {
	sub := q.rdb.Subscribe(ctx, q.eventsKey())
	out := make(chan Event, 64)

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					q.logger.Warn().Err(err).Msg("failed to decode queue event")
					continue
				}
				out <- evt
			}
		}
	}()

	return out, sub.Close
}
