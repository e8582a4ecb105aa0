// Package app is the composition root: it wires configuration, storage,
// the broker client, every domain service (C2-C8), the realtime hub, and
// the HTTP handler set into one App value the server package serves.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/auth"
	"github.com/ternarybob/jobforge/internal/broker"
	"github.com/ternarybob/jobforge/internal/common"
	"github.com/ternarybob/jobforge/internal/handlers"
	"github.com/ternarybob/jobforge/internal/realtime"
	"github.com/ternarybob/jobforge/internal/services/dashboard"
	"github.com/ternarybob/jobforge/internal/services/events"
	"github.com/ternarybob/jobforge/internal/services/flow"
	"github.com/ternarybob/jobforge/internal/services/jobs"
	"github.com/ternarybob/jobforge/internal/services/scheduler"
	"github.com/ternarybob/jobforge/internal/services/webhooks"
	"github.com/ternarybob/jobforge/internal/storage/sqlite"
)

// App holds every component the HTTP surface and background workers
// depend on.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	DB       *sqlite.DB
	Redis    *redis.Client
	Registry *broker.Registry

	AuthService      *auth.Service
	JobService       *jobs.Service
	SchedulerService *scheduler.Service
	FlowService      *flow.Service
	EventsService    *events.Service
	WebhookService   *webhooks.Service
	DashboardService *dashboard.Service

	Hub *realtime.Hub

	AuthHandler      *handlers.AuthHandler
	ApiKeyHandler    *handlers.ApiKeyHandler
	QueueHandler     *handlers.QueueHandler
	JobHandler       *handlers.JobHandler
	ScheduleHandler  *handlers.ScheduleHandler
	FlowHandler      *handlers.FlowHandler
	WebhookHandler   *handlers.WebhookHandler
	DashboardHandler *handlers.DashboardHandler
	SystemHandler    *handlers.SystemHandler
	WebSocketHandler *handlers.WebSocketHandler
}

// New wires the full dependency graph in phases: storage, broker,
// services, handlers, background consumers.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	a.ctx, a.cancelCtx = context.WithCancel(context.Background())

	if err := a.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := a.initBroker(); err != nil {
		return nil, fmt.Errorf("failed to initialize broker: %w", err)
	}
	a.initServices()
	a.initHandlers()
	a.startBackgroundConsumers()

	logger.Info().Msg("jobforge application initialized")
	return a, nil
}

func (a *App) initStorage() error {
	db, err := sqlite.New(a.Logger, &a.Config.Storage.SQLite)
	if err != nil {
		return err
	}
	a.DB = db
	a.Logger.Info().Str("path", a.Config.Storage.SQLite.Path).Msg("sqlite storage initialized")
	return nil
}

func (a *App) initBroker() error {
	a.Redis = broker.NewClient(&a.Config.Broker)
	if err := broker.Ping(a.ctx, a.Redis, 5*time.Second, a.Logger); err != nil {
		return err
	}
	a.Registry = broker.NewRegistry(a.Redis, a.Logger, a.Config.Queues.Allowed)
	return nil
}

func (a *App) initServices() {
	users := sqlite.NewUserStore(a.DB)
	keys := sqlite.NewApiKeyStore(a.DB)
	hooks := sqlite.NewWebhookStore(a.DB)
	flows := sqlite.NewFlowStore(a.DB)

	a.Hub = realtime.NewHub(a.Logger, &a.Config.WebSocket)

	a.AuthService = auth.NewService(users, keys, &a.Config.Auth, a.Logger)
	a.JobService = jobs.NewService(a.Registry)
	a.SchedulerService = scheduler.NewService(a.Registry)
	a.FlowService = flow.NewService(a.Registry, flows, a.Hub, a.Logger)
	a.WebhookService = webhooks.NewService(hooks, users, a.Registry, &a.Config.Webhook, a.Logger)
	a.DashboardService = dashboard.NewService(a.Registry, hooks)

	a.EventsService = events.NewService(a.Registry, a.FlowService, a.Hub, a.Config.Queues.WebhookQueue, a.Logger)
}

func (a *App) initHandlers() {
	a.AuthHandler = handlers.NewAuthHandler(a.AuthService, a.Logger)
	a.ApiKeyHandler = handlers.NewApiKeyHandler(a.AuthService, a.Logger)
	a.QueueHandler = handlers.NewQueueHandler(a.Registry, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.JobService, a.Logger)
	a.ScheduleHandler = handlers.NewScheduleHandler(a.SchedulerService, a.Logger)
	a.FlowHandler = handlers.NewFlowHandler(a.FlowService, a.Logger)
	a.WebhookHandler = handlers.NewWebhookHandler(a.WebhookService, a.Logger)
	a.DashboardHandler = handlers.NewDashboardHandler(a.DashboardService, a.Logger)
	a.SystemHandler = handlers.NewSystemHandler()
	a.WebSocketHandler = handlers.NewWebSocketHandler(a.Hub, a.AuthService, a.Logger)
}

// startBackgroundConsumers launches C5's event demultiplexer and C6's
// webhook delivery worker, each against its configured queue, until the
// app's context is cancelled by Close.
func (a *App) startBackgroundConsumers() {
	for _, name := range a.Config.Queues.Allowed {
		name := name
		go a.EventsService.Run(a.ctx, name)
	}
	go a.WebhookService.Run(a.ctx, a.Config.Queues.WebhookQueue)
}

// Close tears down background consumers and storage/broker connections.
func (a *App) Close() error {
	a.Logger.Info().Msg("shutting down background consumers")
	a.cancelCtx()
	time.Sleep(100 * time.Millisecond)

	if err := a.Redis.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to close broker connection")
	}
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	a.Logger.Info().Msg("storage closed")
	return nil
}
