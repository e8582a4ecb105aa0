// Package webhooks implements the Webhook Delivery Service (C6):
// registration CRUD plus HTTP delivery of queue events to registered
// targets, with a bounded retry budget.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/broker"
	"github.com/ternarybob/jobforge/internal/common"
	"github.com/ternarybob/jobforge/internal/models"
	"github.com/ternarybob/jobforge/internal/storage/sqlite"
)

type Service struct {
	store    *sqlite.WebhookStore
	users    *sqlite.UserStore
	registry *broker.Registry
	cfg      *common.WebhookConfig
	client   *http.Client
	logger   arbor.ILogger

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

func NewService(store *sqlite.WebhookStore, users *sqlite.UserStore, registry *broker.Registry, cfg *common.WebhookConfig, logger arbor.ILogger) *Service {
	timeout := common.ParseDurationDefault(cfg.RequestTimeout, 10*time.Second)
	return &Service{
		store:    store,
		users:    users,
		registry: registry,
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiterFor returns the shared token-bucket limiter for target's host,
// creating one at the configured per-host rate on first use, so a single
// slow or misbehaving target cannot starve delivery to every other one.
func (s *Service) limiterFor(target string) *rate.Limiter {
	host := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = u.Host
	}

	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	lim, ok := s.limiters[host]
	if !ok {
		perSecond := s.cfg.RateLimitPerHost
		if perSecond <= 0 {
			perSecond = 5
		}
		lim = rate.NewLimiter(rate.Limit(perSecond), 1)
		s.limiters[host] = lim
	}
	return lim
}

// Register creates a new webhook subscription for userID.
func (s *Service) Register(ctx context.Context, userID int64, url string, eventType models.WebhookEventType, description string) (*models.Webhook, error) {
	w := &models.Webhook{
		ID:          common.NewWebhookID(),
		UserID:      userID,
		URL:         url,
		EventType:   eventType,
		Description: description,
		Active:      true,
	}
	if err := s.store.Create(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) List(ctx context.Context, userID int64) ([]*models.Webhook, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, id string, userID int64) (*models.Webhook, error) {
	return s.store.GetByID(ctx, id, userID)
}

// Update changes a webhook's delivery target, event type, description,
// or active flag. The caller must already own it.
func (s *Service) Update(ctx context.Context, id string, userID int64, url string, eventType models.WebhookEventType, description string, active bool) (*models.Webhook, error) {
	w, err := s.store.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	w.URL = url
	w.EventType = eventType
	w.Description = description
	w.Active = active
	if err := s.store.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) Delete(ctx context.Context, id string, userID int64) error {
	return s.store.Delete(ctx, id, userID)
}

// dequeuePollInterval bounds how long Run blocks on an empty queue
// before re-checking ctx, so shutdown is never delayed by more than
// this much.
const dequeuePollInterval = 5 * time.Second

// Run drains queueName, delivering each "deliver-webhook" job enqueued
// by the Event Demultiplexer (C5) to every matching registration (plus
// the legacy per-user WebhookURL fallback), until ctx is cancelled.
// This queue holds work items, not live events, so Run pops them off
// the waiting list directly instead of subscribing to pub/sub — nothing
// ever publishes an event on this queue's own channel.
func (s *Service) Run(ctx context.Context, queueName string) {
	q, err := s.registry.GetQueue(queueName)
	if err != nil {
		s.logger.Error().Err(err).Str("queue", queueName).Msg("webhooks: cannot drain unknown queue")
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := q.Dequeue(ctx, dequeuePollInterval)
		if err != nil {
			s.logger.Warn().Err(err).Str("queue", queueName).Msg("webhooks: dequeue failed")
			continue
		}
		if job == nil {
			continue
		}

		s.deliver(ctx, job)
		if err := q.CompleteJob(ctx, job.ID, nil); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("webhooks: failed to mark delivery job completed")
		}
	}
}

// deliver sends a "deliver-webhook" job's payload to every registration
// owned by its target user that subscribes to its event type.
func (s *Service) deliver(ctx context.Context, deliveryJob *models.Job) {
	userID := deliveryJob.OwnerUserID()
	jobID, _ := deliveryJob.Data["jobId"].(string)
	jobName, _ := deliveryJob.Data["jobName"].(string)
	payload, _ := deliveryJob.Data["payload"].(map[string]any)

	eventType, _ := deliveryJob.Data["eventType"].(string)
	if eventType == "" {
		eventType = "completed"
	}

	targets, err := s.store.ListByEventType(ctx, models.WebhookEventType(eventType))
	if err != nil {
		s.logger.Warn().Err(err).Msg("webhooks: failed to load registrations")
		return
	}

	delivered := false
	for _, w := range targets {
		if w.UserID != userID {
			continue
		}
		s.post(ctx, w.URL, jobID, jobName, eventType, payload)
		delivered = true
	}

	if !delivered {
		if user, err := s.users.GetByID(ctx, userID); err == nil && user.WebhookURL != "" {
			s.post(ctx, user.WebhookURL, jobID, jobName, eventType, payload)
		}
	}
}

func (s *Service) post(ctx context.Context, target, jobID, jobName, eventType string, payload map[string]any) {
	body, err := json.Marshal(map[string]any{
		"jobId":   jobID,
		"jobName": jobName,
		"event":   eventType,
		"payload": payload,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("webhooks: failed to marshal delivery payload")
		return
	}

	if err := s.limiterFor(target).Wait(ctx); err != nil {
		s.logger.Warn().Err(err).Str("url", target).Msg("webhooks: rate limit wait aborted")
		return
	}

	op := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, apperr.Fatal("failed to build webhook request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return struct{}{}, apperr.Transient("webhook target returned 5xx", nil)
		}
		if resp.StatusCode >= 400 {
			// Client errors are not retried: the target rejected the
			// request shape, retrying will not change its answer.
			return struct{}{}, backoff.Permanent(apperr.Validation("webhook target rejected delivery"))
		}
		return struct{}{}, nil
	}

	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	// MaxRetries counts retries after the first attempt.
	_, err = backoff.Retry(ctx, op, backoff.WithMaxTries(uint(maxRetries)+1))
	if err != nil {
		s.logger.Warn().Err(err).Str("url", target).Str("job_id", jobID).Msg("webhooks: delivery failed after retries")
	}
}
