// Package events implements the Event Demultiplexer (C5): it
// subscribes to a queue's broker events, recovers enough context from
// the underlying job to route each event to the right flow-progress
// update, push-channel room, and webhook queue entry.
package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/broker"
	"github.com/ternarybob/jobforge/internal/models"
	"github.com/ternarybob/jobforge/internal/services/flow"
)

// Publisher is the subset of the push-channel hub this package depends
// on, kept narrow so events does not need to import realtime directly.
type Publisher interface {
	PublishToRoom(room string, event string, payload any)
}

type Service struct {
	registry  *broker.Registry
	flows     *flow.Service
	publisher Publisher
	webhookQ  string
	logger    arbor.ILogger
}

func NewService(registry *broker.Registry, flows *flow.Service, publisher Publisher, webhookQueue string, logger arbor.ILogger) *Service {
	return &Service{registry: registry, flows: flows, publisher: publisher, webhookQ: webhookQueue, logger: logger}
}

// Run subscribes to queueName's events and demultiplexes them until ctx
// is cancelled. app.go starts one plain goroutine running Run per
// allowed queue.
func (s *Service) Run(ctx context.Context, queueName string) {
	q, err := s.registry.GetQueue(queueName)
	if err != nil {
		s.logger.Error().Err(err).Str("queue", queueName).Msg("events: cannot subscribe to unknown queue")
		return
	}

	events, closeFn := q.Subscribe(ctx)
	defer closeFn()

	for evt := range events {
		s.handle(ctx, queueName, evt)
	}
}

func (s *Service) handle(ctx context.Context, queueName string, evt broker.Event) {
	q, err := s.registry.GetQueue(queueName)
	if err != nil {
		return
	}

	job, err := q.GetJob(ctx, evt.JobID)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", evt.JobID).Msg("events: failed to load job for event")
		return
	}

	userID := job.OwnerUserID()
	s.publisher.PublishToRoom(roomForUser(userID), evt.Type, evt)
	s.publisher.PublishToRoom(roomForJob(job.ID), evt.Type, evt)

	if flowID, _, ok := flowMetadataOf(job); ok {
		s.publisher.PublishToRoom(roomForFlow(flowID), evt.Type, evt)

		status, result, errMsg := statusFromEvent(evt)
		if status != "" {
			if _, err := s.flows.UpdateFlowProgress(ctx, flowID, flow.ProgressReport{
				JobID:     job.ID,
				JobName:   job.Name,
				QueueName: job.QueueName,
				Status:    status,
				Result:    result,
				Error:     errMsg,
				Progress:  job.Progress,
			}); err != nil {
				s.logger.Warn().Err(err).Str("flow_id", flowID).Msg("events: failed to update flow progress")
			}
		}
	}

	if evt.Type == "completed" || evt.Type == "failed" {
		s.enqueueWebhookDelivery(ctx, job, evt)
	}
}

func (s *Service) enqueueWebhookDelivery(ctx context.Context, job *models.Job, evt broker.Event) {
	wq, err := s.registry.GetQueue(s.webhookQ)
	if err != nil {
		s.logger.Warn().Err(err).Msg("events: webhook queue not configured")
		return
	}

	data := map[string]any{
		"userId":    job.OwnerUserID(),
		"jobId":     job.ID,
		"jobName":   job.Name,
		"eventType": evt.Type,
		"payload":   evt.Payload,
	}
	if _, err := wq.Enqueue(ctx, "deliver-webhook", data, models.DefaultJobOpts()); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("events: failed to enqueue webhook delivery")
	}
}

func roomForUser(userID int64) string { return "user:" + strconv.FormatInt(userID, 10) }
func roomForFlow(flowID string) string { return "flow:" + flowID }
func roomForJob(jobID string) string   { return "job:" + jobID }

func flowMetadataOf(job *models.Job) (flowID, parentFlowName string, ok bool) {
	raw, exists := job.Data["_flowMetadata"]
	if !exists {
		return "", "", false
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return "", "", false
	}
	var meta models.FlowMetadata
	if err := json.Unmarshal(encoded, &meta); err != nil {
		return "", "", false
	}
	return meta.FlowID, meta.ParentFlowName, meta.FlowID != ""
}

func statusFromEvent(evt broker.Event) (status models.JobStatus, result any, errMsg string) {
	switch evt.Type {
	case "completed":
		return models.JobStatusCompleted, evt.Payload["result"], ""
	case "failed":
		msg, _ := evt.Payload["error"].(string)
		return models.JobStatusFailed, nil, msg
	case "progress":
		return models.JobStatusActive, nil, ""
	default:
		return "", nil, ""
	}
}
