package background

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"receivables/internal/config"
	"receivables/internal/services"
)

// Job names
const (
	JobSubscriptionBilling = "subscription-billing"
	JobOverdueReminders    = "overdue-reminders"
	JobStatusRefresh       = "invoice-status-refresh"
	JobLinkExpiry          = "payment-link-expiry"
)

// Services are the operations the scheduler runs periodically.
type Services struct {
	Invoices      services.InvoiceService
	Subscriptions services.SubscriptionService
	Reminders     services.ReminderService
	Links         services.PaymentLinkService
}

// JobStatus describes one registered job.
type JobStatus struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run,omitempty"`
	LastRun time.Time `json:"last_run,omitempty"`
}

// JobScheduler runs the billing, reminder and housekeeping jobs.
type JobScheduler struct {
	scheduler gocron.Scheduler
	svc       Services
	cfg       config.SchedulerConfig
	clock     clockwork.Clock
	logger    zerolog.Logger
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
}

// NewJobScheduler creates a scheduler and registers the configured jobs.
func NewJobScheduler(svc Services, cfg config.SchedulerConfig, clock clockwork.Clock, logger zerolog.Logger) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, err
	}

	js := &JobScheduler{
		scheduler: scheduler,
		svc:       svc,
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
		jobs:      make(map[string]gocron.Job),
	}

	if err := js.registerJobs(); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

func (js *JobScheduler) Start() {
	js.logger.Info().Int("jobs", len(js.jobs)).Msg("starting background job scheduler")
	js.scheduler.Start()
}

func (js *JobScheduler) Stop() error {
	js.logger.Info().Msg("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() error {
	definitions := []struct {
		name string
		def  gocron.JobDefinition
		run  func(ctx context.Context) error
	}{
		{JobSubscriptionBilling, gocron.CronJob(js.cfg.BillingCron, false), js.runSubscriptionBilling},
		{JobOverdueReminders, gocron.CronJob(js.cfg.ReminderCron, false), js.runOverdueReminders},
		{JobStatusRefresh, gocron.DurationJob(minutes(js.cfg.StatusRefreshMinutes, 60)), js.runStatusRefresh},
		{JobLinkExpiry, gocron.DurationJob(minutes(js.cfg.LinkExpiryMinutes, 15)), js.runLinkExpiry},
	}

	for _, d := range definitions {
		job, err := js.scheduler.NewJob(
			d.def,
			gocron.NewTask(d.run, context.Background()),
			gocron.WithName(d.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			js.logger.Error().Err(err).Str("job", d.name).Msg("failed to create job")
			return err
		}
		js.jobs[d.name] = job
	}

	js.logger.Info().Int("jobs", len(js.jobs)).Msg("registered background jobs")
	return nil
}

func minutes(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Minute
}

func (js *JobScheduler) runSubscriptionBilling(ctx context.Context) error {
	result, err := js.svc.Subscriptions.ProcessAllDue(ctx, js.clock.Now())
	if err != nil {
		js.logger.Error().Err(err).Str("job", JobSubscriptionBilling).Msg("billing run failed")
		return err
	}
	js.logger.Info().
		Str("job", JobSubscriptionBilling).
		Int("processed", result.Processed).
		Int("emitted", result.Emitted).
		Int("failed", result.Failed).
		Msg("billing run completed")
	return nil
}

func (js *JobScheduler) runOverdueReminders(ctx context.Context) error {
	summary, err := js.svc.Reminders.RunOverdueReminders(ctx)
	if err != nil {
		js.logger.Error().Err(err).Str("job", JobOverdueReminders).Msg("reminder run failed")
		return err
	}
	js.logger.Info().Str("job", JobOverdueReminders).Str("summary", summary.String()).Msg("reminder run completed")
	return nil
}

func (js *JobScheduler) runStatusRefresh(ctx context.Context) error {
	changed, err := js.svc.Invoices.RefreshStatuses(ctx, js.clock.Now())
	if err != nil {
		js.logger.Error().Err(err).Str("job", JobStatusRefresh).Msg("status refresh failed")
		return err
	}
	if changed > 0 {
		js.logger.Info().Str("job", JobStatusRefresh).Int("changed", changed).Msg("invoice statuses refreshed")
	}
	return nil
}

func (js *JobScheduler) runLinkExpiry(ctx context.Context) error {
	expired, err := js.svc.Links.ExpireStale(ctx, js.clock.Now())
	if err != nil {
		js.logger.Error().Err(err).Str("job", JobLinkExpiry).Msg("link expiry failed")
		return err
	}
	if expired > 0 {
		js.logger.Info().Str("job", JobLinkExpiry).Int("expired", expired).Msg("payment links expired")
	}
	return nil
}

// AddJob adds a custom job to the scheduler
func (js *JobScheduler) AddJob(name string, interval time.Duration, taskFn interface{}, params ...interface{}) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(taskFn, params...),
		gocron.WithName(name),
	)
	if err != nil {
		return err
	}

	js.jobs[name] = job
	js.logger.Info().Str("job", name).Dur("interval", interval).Msg("added custom job")
	return nil
}

// RemoveJob removes a job from the scheduler
func (js *JobScheduler) RemoveJob(name string) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if job, exists := js.jobs[name]; exists {
		err := js.scheduler.RemoveJob(job.ID())
		delete(js.jobs, name)
		return err
	}
	return nil
}

// GetJobStatus returns the registered jobs sorted by name.
func (js *JobScheduler) GetJobStatus() []JobStatus {
	js.mu.RLock()
	defer js.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(js.jobs))
	for name, job := range js.jobs {
		status := JobStatus{Name: name}
		if next, err := job.NextRun(); err == nil {
			status.NextRun = next
		}
		if last, err := job.LastRun(); err == nil {
			status.LastRun = last
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
