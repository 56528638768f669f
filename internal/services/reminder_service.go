package services

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"receivables/internal/billing"
	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/repositories"
)

// ReminderService finds overdue invoices and sends throttled reminders.
type ReminderService interface {
	DetectOverdue(invoices []*models.Invoice, minDays int) []billing.OverdueInvoice
	ShouldNotify(cadence models.Cadence, history []models.NotificationHistory) bool
	DispatchBatch(ctx context.Context, candidates []billing.OverdueInvoice, cfg *models.NotificationConfig) *DeliverySummary
	RunOverdueReminders(ctx context.Context) (*DeliverySummary, error)
	ListOverdue(ctx context.Context, minDays int) ([]billing.OverdueInvoice, error)
}

// DeliverySummary aggregates one reminder run.
type DeliverySummary struct {
	Total    int               `json:"total"`
	Sent     int               `json:"sent"`
	Failed   int               `json:"failed"`
	Skipped  int               `json:"skipped"`
	Outcomes []ReminderOutcome `json:"outcomes,omitempty"`
}

type ReminderOutcome struct {
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	OverdueDays int             `json:"overdue_days"`
	Status      string          `json:"status"`
	Delivery    *DeliveryReport `json:"delivery,omitempty"`
	Error       string          `json:"error,omitempty"`
}

const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

func (s *DeliverySummary) String() string {
	return fmt.Sprintf("%d of %d sent", s.Sent, s.Total)
}

func (s *DeliverySummary) add(outcome ReminderOutcome) {
	switch outcome.Status {
	case OutcomeSent:
		s.Sent++
	case OutcomeFailed:
		s.Failed++
	default:
		s.Skipped++
	}
	s.Outcomes = append(s.Outcomes, outcome)
}

type reminderService struct {
	invoiceRepo   repositories.InvoiceRepository
	linkRepo      repositories.PaymentLinkRepository
	notifications NotificationService
	clock         clockwork.Clock
	logger        zerolog.Logger
}

func NewReminderService(
	invoiceRepo repositories.InvoiceRepository,
	linkRepo repositories.PaymentLinkRepository,
	notifications NotificationService,
	clock clockwork.Clock,
	logger zerolog.Logger,
) ReminderService {
	return &reminderService{
		invoiceRepo:   invoiceRepo,
		linkRepo:      linkRepo,
		notifications: notifications,
		clock:         clock,
		logger:        logger,
	}
}

func (s *reminderService) DetectOverdue(invoices []*models.Invoice, minDays int) []billing.OverdueInvoice {
	return billing.DetectOverdue(invoices, minDays, s.clock.Now())
}

func (s *reminderService) ShouldNotify(cadence models.Cadence, history []models.NotificationHistory) bool {
	return billing.ShouldNotify(cadence, history, s.clock.Now())
}

func (s *reminderService) ListOverdue(ctx context.Context, minDays int) ([]billing.OverdueInvoice, error) {
	if minDays < 0 {
		return nil, common.NewValidationError("min_days", "cannot be negative")
	}
	open, err := s.invoiceRepo.ListOpen(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list open invoices")
	}
	return s.DetectOverdue(open, minDays), nil
}

// DispatchBatch attempts every candidate independently. Throttled invoices
// are skipped; failures never stop the batch.
func (s *reminderService) DispatchBatch(ctx context.Context, candidates []billing.OverdueInvoice, cfg *models.NotificationConfig) *DeliverySummary {
	summary := &DeliverySummary{Total: len(candidates)}
	for _, candidate := range candidates {
		outcome := s.dispatchOne(ctx, candidate, cfg)
		if outcome.Status == OutcomeFailed {
			s.logger.Warn().
				Str("invoice_id", outcome.InvoiceID.String()).
				Str("error", outcome.Error).
				Msg("reminder failed")
		}
		summary.add(outcome)
	}

	s.logger.Info().
		Int("sent", summary.Sent).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg(summary.String())
	return summary
}

func (s *reminderService) dispatchOne(ctx context.Context, candidate billing.OverdueInvoice, cfg *models.NotificationConfig) ReminderOutcome {
	invoice := candidate.Invoice
	outcome := ReminderOutcome{InvoiceID: invoice.ID, OverdueDays: candidate.OverdueDays}

	if !invoice.IsOpen() {
		outcome.Status = OutcomeSkipped
		return outcome
	}

	history, err := s.notifications.History(ctx, invoice.ID)
	if err != nil {
		outcome.Status = OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}
	if !s.ShouldNotify(cfg.Cadence, history) {
		outcome.Status = OutcomeSkipped
		return outcome
	}

	msg, err := s.notifications.BuildReminder(invoice, candidate.OverdueDays, s.activeLinkURL(ctx, invoice.ID))
	if err != nil {
		outcome.Status = OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}

	report, err := s.notifications.Send(ctx, invoice, msg, cfg.Channels, candidate.OverdueDays)
	outcome.Delivery = report
	if report == nil || !report.Delivered() {
		outcome.Status = OutcomeFailed
		if err != nil {
			outcome.Error = err.Error()
		}
		return outcome
	}
	if err != nil {
		// without history the throttle cannot see this reminder
		s.logger.Error().Err(err).Str("invoice_id", invoice.ID.String()).Msg("reminder delivered without history")
		outcome.Status = OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}

	if err := s.invoiceRepo.RecordReminder(ctx, invoice.ID, s.clock.Now()); err != nil {
		s.logger.Error().Err(err).Str("invoice_id", invoice.ID.String()).Msg("failed to update reminder count")
	}
	outcome.Status = OutcomeSent
	return outcome
}

func (s *reminderService) activeLinkURL(ctx context.Context, invoiceID uuid.UUID) string {
	link, err := s.linkRepo.GetActiveByInvoice(ctx, invoiceID)
	if err != nil || link.IsExpiredAt(s.clock.Now()) {
		return ""
	}
	return link.URL
}

// RunOverdueReminders applies the stored policy to every open invoice.
func (s *reminderService) RunOverdueReminders(ctx context.Context) (*DeliverySummary, error) {
	start := time.Now()
	cfg, err := s.notifications.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		s.logger.Info().Msg("reminders disabled, skipping run")
		return &DeliverySummary{}, nil
	}

	candidates, err := s.ListOverdue(ctx, cfg.MinOverdueDays)
	if err != nil {
		return nil, err
	}

	summary := s.DispatchBatch(ctx, candidates, cfg)
	s.logger.Debug().Dur("elapsed", time.Since(start)).Msg("overdue reminder run finished")
	return summary, nil
}
