package broker

import (
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/apperr"
)

// Registry is the Queue Registry (C1): an immutable allow-list of queue
// names, loaded at startup, vending lazily-created, process-global
// Queue and Scheduler handles that share one broker connection.
type Registry struct {
	rdb     *redis.Client
	logger  arbor.ILogger
	allowed map[string]struct{}

	mu         sync.Mutex
	queues     map[string]*Queue
	schedulers map[string]*Scheduler
}

// NewRegistry constructs a Registry bound to rdb with the given allowed
// queue names. Queue/Scheduler handles are created lazily on first use.
func NewRegistry(rdb *redis.Client, logger arbor.ILogger, allowedQueues []string) *Registry {
	allowed := make(map[string]struct{}, len(allowedQueues))
	for _, q := range allowedQueues {
		allowed[q] = struct{}{}
	}
	return &Registry{
		rdb:        rdb,
		logger:     logger,
		allowed:    allowed,
		queues:     make(map[string]*Queue),
		schedulers: make(map[string]*Scheduler),
	}
}

// ValidateQueueName rejects any queue name not on the startup allow-list
// before it can reach the broker, per §4.1.
func (r *Registry) ValidateQueueName(name string) error {
	if _, ok := r.allowed[name]; !ok {
		return apperr.Validation(fmt.Sprintf("unknown queue %q", name))
	}
	return nil
}

// GetQueue returns the shared Queue handle for name, validating it
// against the allow-list first.
func (r *Registry) GetQueue(name string) (*Queue, error) {
	if err := r.ValidateQueueName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[name]; ok {
		return q, nil
	}
	q := newQueue(name, r.rdb, r.logger)
	r.queues[name] = q
	return q, nil
}

// GetJobScheduler returns the shared Scheduler handle for queue name,
// validating it against the allow-list first.
func (r *Registry) GetJobScheduler(name string) (*Scheduler, error) {
	if err := r.ValidateQueueName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.schedulers[name]; ok {
		return s, nil
	}
	s := newScheduler(name, r.rdb, r.logger)
	r.schedulers[name] = s
	return s, nil
}

// AllowedQueues returns the startup allow-list, for C1/C8's "list
// allowed queue names" endpoint.
func (r *Registry) AllowedQueues() []string {
	names := make([]string, 0, len(r.allowed))
	for name := range r.allowed {
		names = append(names, name)
	}
	return names
}
