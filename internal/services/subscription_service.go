package services

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"receivables/internal/billing"
	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/repositories"
)

// SubscriptionService handles recurring billing plans
type SubscriptionService interface {
	Create(ctx context.Context, draft SubscriptionDraft) (*models.Subscription, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	List(ctx context.Context, limit, offset int) ([]*models.Subscription, error)
	Pause(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Resume(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	ProcessDue(ctx context.Context, id uuid.UUID, today time.Time) (*ProcessResult, error)
	ProcessAllDue(ctx context.Context, today time.Time) (*BatchResult, error)
}

// SubscriptionDraft is the input for a new subscription. A nil Anchor takes
// the weekday (weekly) or day of month of StartDate; a zero StartDate is today.
type SubscriptionDraft struct {
	Customer          models.Customer
	Items             []models.LineItem
	Discount          *models.Discount
	Notes             string
	Frequency         models.Frequency
	Anchor            *int
	StartDate         time.Time
	EndDate           *time.Time
	SendAutomatically bool
	LinkTTLDays       int
}

type ProcessResult struct {
	Subscription *models.Subscription `json:"subscription"`
	Invoice      *models.Invoice      `json:"invoice,omitempty"`
	Emitted      bool                 `json:"emitted"`
}

// BatchResult tallies a billing run.
type BatchResult struct {
	Processed int      `json:"processed"`
	Emitted   int      `json:"emitted"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

type subscriptionService struct {
	subscriptionRepo repositories.SubscriptionRepository
	invoices         InvoiceService
	links            PaymentLinkService
	notifications    NotificationService
	locker           *KeyedLocker
	clock            clockwork.Clock
	taxRate          decimal.Decimal
	logger           zerolog.Logger
}

func NewSubscriptionService(
	subscriptionRepo repositories.SubscriptionRepository,
	invoices InvoiceService,
	links PaymentLinkService,
	notifications NotificationService,
	locker *KeyedLocker,
	clock clockwork.Clock,
	taxRate decimal.Decimal,
	logger zerolog.Logger,
) SubscriptionService {
	return &subscriptionService{
		subscriptionRepo: subscriptionRepo,
		invoices:         invoices,
		links:            links,
		notifications:    notifications,
		locker:           locker,
		clock:            clock,
		taxRate:          taxRate,
		logger:           logger,
	}
}

func validateAnchor(frequency models.Frequency, anchor int) error {
	if frequency == models.FrequencyWeekly {
		if anchor < 0 || anchor > 6 {
			return common.NewValidationError("anchor", "weekly plans take a weekday between 0 (Sunday) and 6")
		}
		return nil
	}
	if anchor < 1 || anchor > 31 {
		return common.NewValidationError("anchor", "must be a day of month between 1 and 31")
	}
	return nil
}

func (s *subscriptionService) Create(ctx context.Context, draft SubscriptionDraft) (*models.Subscription, error) {
	if strings.TrimSpace(draft.Customer.Name) == "" {
		return nil, common.NewValidationError("customer.name", "is required")
	}
	if !draft.Frequency.Valid() {
		return nil, common.NewValidationError("frequency", "unknown frequency %q", draft.Frequency)
	}
	if _, err := billing.ComputeInvoiceTotals(draft.Items, draft.Discount, s.taxRate); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	start := billing.DateOnly(now)
	if !draft.StartDate.IsZero() {
		start = billing.DateOnly(draft.StartDate)
	}
	if draft.EndDate != nil && billing.DateOnly(*draft.EndDate).Before(start) {
		return nil, common.NewValidationError("end_date", "cannot be before the start date")
	}

	anchor := start.Day()
	if draft.Frequency == models.FrequencyWeekly {
		anchor = int(start.Weekday())
	}
	if draft.Anchor != nil {
		anchor = *draft.Anchor
	}
	if err := validateAnchor(draft.Frequency, anchor); err != nil {
		return nil, err
	}

	var endDate *time.Time
	if draft.EndDate != nil {
		endDate = lo.ToPtr(billing.DateOnly(*draft.EndDate))
	}

	sub := &models.Subscription{
		ID:                uuid.New(),
		Customer:          draft.Customer,
		Items:             draft.Items,
		Discount:          draft.Discount,
		Notes:             draft.Notes,
		Frequency:         draft.Frequency,
		Anchor:            anchor,
		State:             models.SubscriptionActive,
		StartDate:         start,
		EndDate:           endDate,
		NextBillingDate:   start,
		SendAutomatically: draft.SendAutomatically,
		LinkTTLDays:       draft.LinkTTLDays,
		InvoiceIDs:        []uuid.UUID{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.subscriptionRepo.Create(ctx, sub); err != nil {
		return nil, errors.Wrap(err, "failed to create subscription")
	}

	s.logger.Info().
		Str("subscription_id", sub.ID.String()).
		Str("frequency", string(sub.Frequency)).
		Int("anchor", sub.Anchor).
		Msg("subscription created")
	return sub, nil
}

func (s *subscriptionService) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.subscriptionRepo.GetByID(ctx, id)
}

func (s *subscriptionService) List(ctx context.Context, limit, offset int) ([]*models.Subscription, error) {
	return s.subscriptionRepo.List(ctx, limit, offset)
}

// transition loads the subscription under its lock, applies fn and saves.
func (s *subscriptionService) transition(ctx context.Context, id uuid.UUID, fn func(sub *models.Subscription, today time.Time) error) (*models.Subscription, error) {
	unlock := s.locker.Lock(id)
	defer unlock()

	sub, err := s.subscriptionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := fn(sub, billing.DateOnly(now)); err != nil {
		return nil, err
	}
	sub.UpdatedAt = now
	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		return nil, errors.Wrap(err, "failed to update subscription")
	}
	s.logger.Info().Str("subscription_id", id.String()).Str("state", string(sub.State)).Msg("subscription state changed")
	return sub, nil
}

func (s *subscriptionService) Pause(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.transition(ctx, id, func(sub *models.Subscription, _ time.Time) error {
		if sub.State != models.SubscriptionActive {
			return common.NewInvalidStateError("cannot pause a %s subscription", sub.State)
		}
		sub.State = models.SubscriptionPaused
		return nil
	})
}

// Resume never bills the periods skipped while paused.
func (s *subscriptionService) Resume(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.transition(ctx, id, func(sub *models.Subscription, today time.Time) error {
		if sub.State != models.SubscriptionPaused {
			return common.NewInvalidStateError("cannot resume a %s subscription", sub.State)
		}
		if sub.EndDate != nil && today.After(*sub.EndDate) {
			return common.NewInvalidStateError("subscription ended on %s", sub.EndDate.Format(common.DateLayout))
		}
		sub.State = models.SubscriptionActive
		if sub.NextBillingDate.Before(today) {
			sub.NextBillingDate = billing.NextBillingDate(today, sub.Frequency, sub.Anchor)
		}
		return nil
	})
}

func (s *subscriptionService) Cancel(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.transition(ctx, id, func(sub *models.Subscription, _ time.Time) error {
		if sub.State != models.SubscriptionActive && sub.State != models.SubscriptionPaused {
			return common.NewInvalidStateError("cannot cancel a %s subscription", sub.State)
		}
		sub.State = models.SubscriptionCancelled
		return nil
	})
}

// ProcessDue emits at most one invoice when the subscription is due on
// today. The next billing date is recomputed from today, so missed runs are
// not backfilled and repeated calls on the same day are no-ops.
func (s *subscriptionService) ProcessDue(ctx context.Context, id uuid.UUID, today time.Time) (*ProcessResult, error) {
	unlock := s.locker.Lock(id)
	defer unlock()

	sub, err := s.subscriptionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	result := &ProcessResult{Subscription: sub}
	if sub.State != models.SubscriptionActive {
		return result, nil
	}

	day := billing.DateOnly(today)
	now := s.clock.Now()
	if sub.EndDate != nil && day.After(billing.DateOnly(*sub.EndDate)) {
		sub.State = models.SubscriptionExpired
		sub.UpdatedAt = now
		if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
			return nil, errors.Wrap(err, "failed to expire subscription")
		}
		s.logger.Info().Str("subscription_id", id.String()).Msg("subscription expired")
		return result, nil
	}
	if billing.DateOnly(sub.NextBillingDate).After(day) {
		return result, nil
	}

	subscriptionID := sub.ID
	invoice, err := s.invoices.Create(ctx, InvoiceDraft{
		Customer:       sub.Customer,
		Items:          templateItems(sub.Items),
		Discount:       sub.Discount,
		TaxRate:        &s.taxRate,
		IssueDate:      day,
		Notes:          sub.Notes,
		SubscriptionID: &subscriptionID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to emit subscription invoice")
	}

	if sub.SendAutomatically {
		s.deliver(ctx, sub, invoice)
	}

	sub.InvoiceIDs = append(sub.InvoiceIDs, invoice.ID)
	sub.LastBilledAt = &now
	sub.NextBillingDate = billing.NextBillingDate(day, sub.Frequency, sub.Anchor)
	sub.UpdatedAt = now
	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		return nil, errors.Wrap(err, "failed to advance subscription")
	}

	s.logger.Info().
		Str("subscription_id", id.String()).
		Str("invoice_id", invoice.ID.String()).
		Time("next_billing_date", sub.NextBillingDate).
		Msg("subscription billed")
	return &ProcessResult{Subscription: sub, Invoice: invoice, Emitted: true}, nil
}

// deliver issues a payment link and sends the invoice. Failures are logged;
// the invoice stands and the billing date still advances.
func (s *subscriptionService) deliver(ctx context.Context, sub *models.Subscription, invoice *models.Invoice) {
	linkURL := ""
	link, err := s.links.Issue(ctx, invoice.ID, IssueLinkInput{TTLDays: sub.LinkTTLDays})
	if err != nil {
		s.logger.Warn().Err(err).Str("invoice_id", invoice.ID.String()).Msg("failed to issue payment link for subscription invoice")
	} else {
		linkURL = link.URL
	}

	if _, err := s.notifications.SendInvoice(ctx, invoice, linkURL); err != nil {
		s.logger.Warn().Err(err).Str("invoice_id", invoice.ID.String()).Msg("failed to send subscription invoice")
	}
}

func templateItems(items []models.LineItem) []models.LineItem {
	return lo.Map(items, func(item models.LineItem, _ int) models.LineItem {
		item.Amount = decimal.Zero
		return item
	})
}

// ProcessAllDue bills every due subscription, continuing past failures.
func (s *subscriptionService) ProcessAllDue(ctx context.Context, today time.Time) (*BatchResult, error) {
	due, err := s.subscriptionRepo.ListDue(ctx, billing.DateOnly(today))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due subscriptions")
	}

	result := &BatchResult{}
	for _, sub := range due {
		processed, err := s.ProcessDue(ctx, sub.ID, today)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, sub.ID.String()+": "+err.Error())
			s.logger.Error().Err(err).Str("subscription_id", sub.ID.String()).Msg("subscription billing failed")
			continue
		}
		result.Processed++
		if processed.Emitted {
			result.Emitted++
		}
	}

	s.logger.Info().
		Int("processed", result.Processed).
		Int("emitted", result.Emitted).
		Int("failed", result.Failed).
		Msg("subscription billing run finished")
	return result, nil
}
