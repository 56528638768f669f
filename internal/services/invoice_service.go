package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"receivables/internal/billing"
	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/repositories"
)

// InvoiceService owns invoice creation and every balance/status transition.
type InvoiceService interface {
	Create(ctx context.Context, draft InvoiceDraft) (*models.Invoice, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, filter models.InvoiceFilter) ([]*models.Invoice, error)
	ApplyPayments(ctx context.Context, id uuid.UUID, payments []models.PaymentRecord) (*models.Invoice, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	AttachPaymentLink(ctx context.Context, id, linkID uuid.UUID) error
	ComputeOverdueDays(invoice *models.Invoice, asOf time.Time) int
	RefreshStatuses(ctx context.Context, asOf time.Time) (int, error)
}

// InvoiceDraft is the input for a new invoice. A nil TaxRate uses the
// configured rate, a zero IssueDate means today and a nil DueDate means
// IssueDate plus the configured due window.
type InvoiceDraft struct {
	Customer       models.Customer
	Items          []models.LineItem
	Discount       *models.Discount
	TaxRate        *decimal.Decimal
	IssueDate      time.Time
	DueDate        *time.Time
	Notes          string
	SubscriptionID *uuid.UUID
}

// InvoiceOptions carries the billing defaults applied on creation.
type InvoiceOptions struct {
	TaxRate decimal.Decimal
	DueDays int
}

type invoiceService struct {
	invoiceRepo repositories.InvoiceRepository
	paymentRepo repositories.PaymentRepository
	linkRepo    repositories.PaymentLinkRepository
	locker      *KeyedLocker
	clock       clockwork.Clock
	opts        InvoiceOptions
	logger      zerolog.Logger
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(
	invoiceRepo repositories.InvoiceRepository,
	paymentRepo repositories.PaymentRepository,
	linkRepo repositories.PaymentLinkRepository,
	locker *KeyedLocker,
	clock clockwork.Clock,
	opts InvoiceOptions,
	logger zerolog.Logger,
) InvoiceService {
	if opts.DueDays <= 0 {
		opts.DueDays = 30
	}
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		linkRepo:    linkRepo,
		locker:      locker,
		clock:       clock,
		opts:        opts,
		logger:      logger,
	}
}

func (s *invoiceService) Create(ctx context.Context, draft InvoiceDraft) (*models.Invoice, error) {
	if strings.TrimSpace(draft.Customer.Name) == "" {
		return nil, common.NewValidationError("customer.name", "is required")
	}

	taxRate := s.opts.TaxRate
	if draft.TaxRate != nil {
		taxRate = *draft.TaxRate
	}
	totals, err := billing.ComputeInvoiceTotals(draft.Items, draft.Discount, taxRate)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	issueDate := billing.DateOnly(now)
	if !draft.IssueDate.IsZero() {
		issueDate = billing.DateOnly(draft.IssueDate)
	}
	dueDate := issueDate.AddDate(0, 0, s.opts.DueDays)
	if draft.DueDate != nil {
		dueDate = billing.DateOnly(*draft.DueDate)
	}
	if dueDate.Before(issueDate) {
		return nil, common.NewValidationError("due_date", "cannot be before the issue date")
	}

	seq, err := s.invoiceRepo.NextSequence(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate invoice number")
	}

	invoice := &models.Invoice{
		ID:                 uuid.New(),
		Sequence:           seq,
		Number:             FormatInvoiceNumber(seq),
		IssueDate:          issueDate,
		DueDate:            dueDate,
		Customer:           draft.Customer,
		Items:              totals.Items,
		Subtotal:           totals.Subtotal,
		Discount:           draft.Discount,
		DiscountAmount:     totals.DiscountAmount,
		TaxRate:            taxRate,
		Tax:                totals.Tax,
		Total:              totals.Total,
		PaymentIDs:         []uuid.UUID{},
		PaidAmount:         decimal.Zero,
		OutstandingBalance: totals.Total,
		SubscriptionID:     draft.SubscriptionID,
		Notes:              draft.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	invoice.Status = billing.DeriveStatus(invoice.Total, invoice.OutstandingBalance, dueDate, now)

	if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, errors.Wrap(err, "failed to create invoice")
	}

	s.logger.Info().
		Str("invoice_id", invoice.ID.String()).
		Str("number", invoice.Number).
		Str("total", invoice.Total.StringFixed(2)).
		Msg("invoice created")
	return invoice, nil
}

// FormatInvoiceNumber renders a sequence as the public invoice number.
func FormatInvoiceNumber(seq int64) string {
	return fmt.Sprintf("INV-%06d", seq)
}

func (s *invoiceService) Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return s.invoiceRepo.GetByID(ctx, id)
}

func (s *invoiceService) List(ctx context.Context, filter models.InvoiceFilter) ([]*models.Invoice, error) {
	return s.invoiceRepo.List(ctx, filter)
}

// ApplyPayments folds the given payments into the invoice's stored payments
// and recomputes the balance from the whole confirmed sum.
func (s *invoiceService) ApplyPayments(ctx context.Context, id uuid.UUID, payments []models.PaymentRecord) (*models.Invoice, error) {
	unlock := s.locker.Lock(id)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status == models.InvoiceStatusCancelled {
		return nil, common.NewInvalidStateError("invoice %s is cancelled", invoice.Number)
	}

	stored, err := s.paymentRepo.ListByInvoice(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load payments")
	}
	for _, p := range payments {
		if p.InvoiceID != id {
			return nil, common.NewValidationError("payments", "payment %s belongs to another invoice", p.ID)
		}
	}

	now := s.clock.Now()
	balance := billing.ReconcileBalance(invoice.Total, append(stored, payments...))
	invoice.PaidAmount = balance.Paid
	invoice.OutstandingBalance = balance.Outstanding
	invoice.PaymentIDs = balance.PaymentIDs
	invoice.Status = billing.DeriveStatus(invoice.Total, balance.Outstanding, invoice.DueDate, now)
	if invoice.Status == models.InvoiceStatusPaid && invoice.PaidAt == nil {
		invoice.PaidAt = &now
	}
	invoice.UpdatedAt = now

	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return nil, errors.Wrap(err, "failed to update invoice balance")
	}

	s.logger.Debug().
		Str("invoice_id", id.String()).
		Str("paid", balance.Paid.StringFixed(2)).
		Str("outstanding", balance.Outstanding.StringFixed(2)).
		Str("status", string(invoice.Status)).
		Msg("payments applied")
	return invoice, nil
}

// MarkCancelled cancels an invoice that has a balance and no confirmed
// payments. Any active payment link for it is cancelled as well.
func (s *invoiceService) MarkCancelled(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	unlock := s.locker.Lock(id)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status == models.InvoiceStatusCancelled {
		return nil, common.NewInvalidStateError("invoice %s is already cancelled", invoice.Number)
	}
	if !invoice.OutstandingBalance.IsPositive() {
		return nil, common.NewInvalidStateError("invoice %s is fully paid", invoice.Number)
	}

	payments, err := s.paymentRepo.ListByInvoice(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load payments")
	}
	for _, p := range payments {
		if p.Confirmed {
			return nil, common.NewInvalidStateError("invoice %s has confirmed payments", invoice.Number)
		}
	}

	now := s.clock.Now()
	invoice.Status = models.InvoiceStatusCancelled
	invoice.CancelledAt = &now
	invoice.UpdatedAt = now
	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return nil, errors.Wrap(err, "failed to cancel invoice")
	}

	link, err := s.linkRepo.GetActiveByInvoice(ctx, id)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		s.logger.Error().Err(err).Str("invoice_id", id.String()).Msg("failed to look up payment link of cancelled invoice")
	default:
		link.Status = models.LinkStatusCancelled
		link.CancelledAt = &now
		if err := s.linkRepo.Update(ctx, link); err != nil {
			s.logger.Error().Err(err).Str("link_id", link.ID.String()).Msg("failed to cancel payment link")
		}
	}

	s.logger.Info().Str("invoice_id", id.String()).Msg("invoice cancelled")
	return invoice, nil
}

func (s *invoiceService) AttachPaymentLink(ctx context.Context, id, linkID uuid.UUID) error {
	unlock := s.locker.Lock(id)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	invoice.PaymentLinkID = &linkID
	invoice.UpdatedAt = s.clock.Now()
	return s.invoiceRepo.Update(ctx, invoice)
}

func (s *invoiceService) ComputeOverdueDays(invoice *models.Invoice, asOf time.Time) int {
	return billing.OverdueDays(invoice.DueDate, asOf)
}

// RefreshStatuses persists date-driven status changes (pending to overdue)
// for open invoices and returns how many changed.
func (s *invoiceService) RefreshStatuses(ctx context.Context, asOf time.Time) (int, error) {
	open, err := s.invoiceRepo.ListOpen(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list open invoices")
	}

	changed := 0
	for _, candidate := range open {
		next := billing.DeriveStatus(candidate.Total, candidate.OutstandingBalance, candidate.DueDate, asOf)
		if next == candidate.Status {
			continue
		}
		updated, err := s.refreshOne(ctx, candidate.ID, asOf)
		if err != nil {
			s.logger.Error().Err(err).Str("invoice_id", candidate.ID.String()).Msg("failed to refresh invoice status")
			continue
		}
		if updated {
			changed++
		}
	}
	return changed, nil
}

func (s *invoiceService) refreshOne(ctx context.Context, id uuid.UUID, asOf time.Time) (bool, error) {
	unlock := s.locker.Lock(id)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if invoice.Status == models.InvoiceStatusCancelled {
		return false, nil
	}
	next := billing.DeriveStatus(invoice.Total, invoice.OutstandingBalance, invoice.DueDate, asOf)
	if next == invoice.Status {
		return false, nil
	}
	invoice.Status = next
	invoice.UpdatedAt = s.clock.Now()
	return true, s.invoiceRepo.Update(ctx, invoice)
}
