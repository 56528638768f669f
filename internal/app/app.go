package app

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"receivables/internal/caching"
	"receivables/internal/config"
	"receivables/internal/events"
	"receivables/internal/handlers"
	"receivables/internal/jobs"
	"receivables/internal/jobs/background"
	"receivables/internal/middleware"
	"receivables/internal/repositories/memory"
	"receivables/internal/services"
	"receivables/pkg/database"
)

// Version is reported by the health endpoints
const Version = "1.0.0"

// App owns the process-wide resources shared by the serve and worker
// commands.
type App struct {
	Config    *config.Config
	Clock     clockwork.Clock
	Logger    zerolog.Logger
	Stores    *Stores
	Services  *Services
	Bus       *events.Bus
	Processor *jobs.Processor

	// MemoryQueue is set for the memory driver; otherwise tasks go to Redis.
	MemoryQueue *jobs.MemoryQueue

	pool    *pgxpool.Pool
	redis   *redis.Client
	queue   *jobs.AsynqQueue
	tasks   services.TaskEnqueuer
	limiter caching.RateLimiter
	checks  map[string]handlers.HealthCheck
}

// New connects the configured backends and wires the services.
func New(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Clock:  clock,
		Logger: logger,
		Bus:    events.NewBus(logger.With().Str("component", "events").Logger()),
		checks: map[string]handlers.HealthCheck{},
	}

	ext := &Externals{
		Gateway:   NewGateway(cfg.Gateway, clock),
		Publisher: a.Bus,
	}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		a.Stores = MemoryStores()
		a.MemoryQueue = jobs.NewMemoryQueue(cfg.Queuing.MaxRetry, logger.With().Str("component", "queue").Logger())
		a.limiter = caching.NewMemoryRateLimiter(clock)
		ext.Tasks = a.MemoryQueue
		ext.Objects = memory.NewObjectStore(cfg.Server.PublicBaseURL + "/files")

	default:
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "failed to connect to database")
		}
		a.pool = pool
		if cfg.Database.MigrateOnStart {
			if err := database.Migrate(ctx, pool); err != nil {
				a.Close()
				return nil, err
			}
		}

		a.redis = caching.NewRedisClient(cfg.Redis, logger)
		configStore := caching.NewRedisConfigStore(a.redis)
		a.Stores = PostgresStores(pool, configStore)
		a.limiter = caching.NewRedisRateLimiter(a.redis)

		settlementTimeout := time.Duration(cfg.Gateway.SettlementWait) * time.Second
		a.queue = jobs.NewAsynqQueue(cfg.Redis, cfg.Queuing, settlementTimeout, logger.With().Str("component", "queue").Logger())
		ext.Tasks = a.queue

		objects, err := services.NewMinioStore(cfg.Minio)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "failed to initialize object storage")
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Str("bucket", cfg.Minio.ReceiptBucket).Msg("receipt bucket not ready")
		}
		ext.Objects = objects

		a.checks["database"] = pool.Ping
		a.checks["redis"] = configStore.Ping
		a.checks["storage"] = objects.EnsureBucket
	}

	a.tasks = ext.Tasks
	ext.Transport = NewTransport(cfg.Notifications, a.Stores.Notifications, clock, logger.With().Str("component", "transport").Logger())
	a.Services = NewServices(cfg, a.Stores, ext, clock, logger)
	a.Processor = jobs.NewProcessor(a.Services.Settlement, a.Services.Ledger, logger.With().Str("component", "worker").Logger())
	return a, nil
}

// StartBackground subscribes the audit trail to payment events and, for the
// memory driver, drains the in-process queue until ctx is cancelled.
func (a *App) StartBackground(ctx context.Context) error {
	if err := a.Services.AuditLogs.ConsumeEvents(ctx, a.Bus); err != nil {
		return errors.Wrap(err, "failed to subscribe audit trail")
	}
	if a.MemoryQueue != nil {
		go a.MemoryQueue.Run(ctx, a.Processor.NewServeMux(), a.Clock, 500*time.Millisecond)
	}
	return nil
}

// NewScheduler registers the periodic jobs against the wired services.
func (a *App) NewScheduler() (*background.JobScheduler, error) {
	return background.NewJobScheduler(background.Services{
		Invoices:      a.Services.Invoices,
		Subscriptions: a.Services.Subscriptions,
		Reminders:     a.Services.Reminders,
		Links:         a.Services.Links,
	}, a.Config.Scheduler, a.Clock, a.Logger.With().Str("component", "scheduler").Logger())
}

// NewWorker builds the asynq server and its handler mux. It is only
// available with Redis.
func (a *App) NewWorker() (*asynq.Server, *asynq.ServeMux, error) {
	if a.queue == nil {
		return nil, nil, errors.New("the worker needs the postgres driver with redis")
	}
	server := jobs.NewServer(a.Config.Redis, a.Config.Queuing, a.Logger.With().Str("component", "worker").Logger())
	return server, a.Processor.NewServeMux(), nil
}

// Router mounts the HTTP API. scheduler may be nil when this process does
// not run the periodic jobs.
func (a *App) Router(scheduler handlers.JobStatusProvider) *echo.Echo {
	s := a.Services
	h := &handlers.Handlers{
		Invoices:      handlers.NewInvoiceHandlers(s.Invoices, s.Renderer, a.Clock),
		Payments:      handlers.NewPaymentHandlers(s.Ledger),
		Links:         handlers.NewPaymentLinkHandlers(s.Links),
		Subscriptions: handlers.NewSubscriptionHandlers(s.Subscriptions, a.Clock),
		Notifications: handlers.NewNotificationHandlers(s.Reminders, s.Notifications),
		Jobs:          handlers.NewJobHandlers(s.Subscriptions, s.Invoices, s.Links, scheduler, a.Clock),
		Webhooks:      handlers.NewWebhookHandlers(s.Links, a.tasks, a.Config.Gateway.WebhookSecret, a.Logger),
		AuditLogs:     handlers.NewAuditLogsHandlers(s.AuditLogs),
		Health:        handlers.NewHealthHandlers(a.checks, Version, a.Clock),
	}

	return handlers.NewRouter(h, handlers.RouterOptions{
		Audit:          middleware.NewAuditMiddleware(s.AuditLogs, a.Logger),
		PayPageLimiter: a.limiter,
		PayPageLimit:   a.Config.Server.PayRateLimit,
		PayPageWindow:  time.Minute,
		RequestLogging: a.Config.Server.RequestLogging,
	}, a.Logger.With().Str("component", "http").Logger())
}

// Close releases every connection that New opened.
func (a *App) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.queue != nil {
		keep(a.queue.Close())
	}
	if a.redis != nil {
		keep(a.redis.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.Bus != nil {
		keep(a.Bus.Close())
	}
	return firstErr
}
