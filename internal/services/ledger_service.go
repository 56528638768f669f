package services

import (
	"context"
	"fmt"
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

// TaskEnqueuer schedules work that runs outside the request path.
type TaskEnqueuer interface {
	EnqueueSettlement(ctx context.Context, onlinePaymentID uuid.UUID) error
	EnqueueReceipt(ctx context.Context, invoiceID, paymentID uuid.UUID) error
}

// LedgerService records payments against invoices.
type LedgerService interface {
	RecordPayment(ctx context.Context, invoiceID uuid.UUID, input PaymentInput) (*PaymentResult, error)
	RecordBatch(ctx context.Context, invoiceID uuid.UUID, inputs []PaymentInput) (*BatchPaymentResult, error)
	PostOnlinePayment(ctx context.Context, payment *models.OnlinePayment) (*PaymentResult, error)
	ReconcileReceipt(ctx context.Context, invoiceID, paymentID uuid.UUID) (*ReceiptResult, error)
	ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]models.PaymentRecord, error)
}

// PaymentInput is one manual payment. A nil PaidAt means now.
type PaymentInput struct {
	Amount    decimal.Decimal
	Method    models.PaymentMethod
	Reference string
	PaidAt    *time.Time
}

type PaymentResult struct {
	Payment *models.PaymentRecord `json:"payment"`
	Invoice *models.Invoice       `json:"invoice"`
}

type BatchPaymentResult struct {
	Payments []*models.PaymentRecord `json:"payments"`
	Invoice  *models.Invoice         `json:"invoice"`
}

type ledgerService struct {
	invoices    InvoiceService
	invoiceRepo repositories.InvoiceRepository
	paymentRepo repositories.PaymentRepository
	receipts    ReceiptService
	tasks       TaskEnqueuer
	locker      *KeyedLocker
	clock       clockwork.Clock
	logger      zerolog.Logger
}

// NewLedgerService wires the ledger. locker must be the one shared with the
// invoice service. tasks may be nil, in which case receipts are not queued.
func NewLedgerService(
	invoices InvoiceService,
	invoiceRepo repositories.InvoiceRepository,
	paymentRepo repositories.PaymentRepository,
	receipts ReceiptService,
	tasks TaskEnqueuer,
	locker *KeyedLocker,
	clock clockwork.Clock,
	logger zerolog.Logger,
) LedgerService {
	return &ledgerService{
		invoices:    invoices,
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		receipts:    receipts,
		tasks:       tasks,
		locker:      locker,
		clock:       clock,
		logger:      logger,
	}
}

// validatePaymentInput checks the amount as it will be stored, rounded to
// cents.
func validatePaymentInput(field string, input PaymentInput) error {
	if !billing.Round2(input.Amount).IsPositive() {
		return common.NewValidationError(field+"amount", "must be greater than zero")
	}
	if !input.Method.Valid() {
		return common.NewValidationError(field+"method", "unknown payment method %q", input.Method)
	}
	return nil
}

// checkPayable verifies the invoice can take `amount` more on top of what is
// already recorded.
func checkPayable(invoice *models.Invoice, recorded []models.PaymentRecord, amount decimal.Decimal) error {
	if invoice.Status == models.InvoiceStatusCancelled {
		return common.NewInvalidStateError("invoice %s is cancelled", invoice.Number)
	}
	balance := billing.ReconcileBalance(invoice.Total, recorded)
	if !balance.Outstanding.IsPositive() {
		return common.NewInvalidStateError("invoice %s is already paid", invoice.Number)
	}
	attempted := balance.Paid.Add(amount)
	if attempted.GreaterThan(invoice.Total) {
		return common.NewOverpaymentError(invoice.Total, attempted)
	}
	return nil
}

func (s *ledgerService) RecordPayment(ctx context.Context, invoiceID uuid.UUID, input PaymentInput) (*PaymentResult, error) {
	if err := validatePaymentInput("", input); err != nil {
		return nil, err
	}

	records, err := s.appendPayments(ctx, invoiceID, []PaymentInput{input}, models.PaymentSourceManual, nil)
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoices.ApplyPayments(ctx, invoiceID, derefPayments(records))
	if err != nil {
		return nil, err
	}

	s.queueReceipts(ctx, invoiceID, records)
	return &PaymentResult{Payment: records[0], Invoice: invoice}, nil
}

// RecordBatch validates every staged payment before appending any of them.
func (s *ledgerService) RecordBatch(ctx context.Context, invoiceID uuid.UUID, inputs []PaymentInput) (*BatchPaymentResult, error) {
	if len(inputs) == 0 {
		return nil, common.NewValidationError("payments", "at least one payment is required")
	}
	for i, input := range inputs {
		if err := validatePaymentInput(fmt.Sprintf("payments[%d].", i), input); err != nil {
			return nil, err
		}
	}

	records, err := s.appendPayments(ctx, invoiceID, inputs, models.PaymentSourceManual, nil)
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoices.ApplyPayments(ctx, invoiceID, derefPayments(records))
	if err != nil {
		return nil, err
	}

	s.queueReceipts(ctx, invoiceID, records)
	return &BatchPaymentResult{Payments: records, Invoice: invoice}, nil
}

// PostOnlinePayment posts a settled online payment. Posting the same online
// payment twice returns the record created the first time.
func (s *ledgerService) PostOnlinePayment(ctx context.Context, payment *models.OnlinePayment) (*PaymentResult, error) {
	existing, err := s.paymentRepo.GetByOnlinePaymentID(ctx, payment.ID)
	switch {
	case err == nil:
		invoice, err := s.invoices.Get(ctx, existing.InvoiceID)
		if err != nil {
			return nil, err
		}
		return &PaymentResult{Payment: existing, Invoice: invoice}, nil
	case !errors.Is(err, common.ErrNotFound):
		return nil, errors.Wrap(err, "failed to look up online payment posting")
	}

	input := PaymentInput{
		Amount:    payment.Amount,
		Method:    payment.Method,
		Reference: payment.GatewayReference,
	}
	if err := validatePaymentInput("", input); err != nil {
		return nil, err
	}

	records, err := s.appendPayments(ctx, payment.InvoiceID, []PaymentInput{input}, models.PaymentSourceOnline, &payment.ID)
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoices.ApplyPayments(ctx, payment.InvoiceID, derefPayments(records))
	if err != nil {
		return nil, err
	}

	s.queueReceipts(ctx, payment.InvoiceID, records)
	return &PaymentResult{Payment: records[0], Invoice: invoice}, nil
}

// appendPayments checks the invoice under its lock and writes the records.
// The lock is released before the balance is reapplied.
func (s *ledgerService) appendPayments(
	ctx context.Context,
	invoiceID uuid.UUID,
	inputs []PaymentInput,
	source models.PaymentSource,
	onlinePaymentID *uuid.UUID,
) ([]*models.PaymentRecord, error) {
	unlock := s.locker.Lock(invoiceID)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	recorded, err := s.paymentRepo.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load payments")
	}

	sum := decimal.Zero
	for _, input := range inputs {
		sum = sum.Add(billing.Round2(input.Amount))
	}
	if err := checkPayable(invoice, recorded, sum); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	records := make([]*models.PaymentRecord, 0, len(inputs))
	for _, input := range inputs {
		paidAt := now
		if input.PaidAt != nil {
			paidAt = *input.PaidAt
		}
		record := &models.PaymentRecord{
			ID:              uuid.New(),
			InvoiceID:       invoiceID,
			Amount:          billing.Round2(input.Amount),
			Method:          input.Method,
			Reference:       input.Reference,
			Source:          source,
			OnlinePaymentID: onlinePaymentID,
			Confirmed:       true,
			PaidAt:          paidAt,
			CreatedAt:       now,
		}
		if err := s.paymentRepo.Create(ctx, record); err != nil {
			return nil, errors.Wrap(err, "failed to record payment")
		}
		records = append(records, record)

		s.logger.Info().
			Str("invoice_id", invoiceID.String()).
			Str("payment_id", record.ID.String()).
			Str("amount", record.Amount.StringFixed(2)).
			Str("method", string(record.Method)).
			Str("source", string(source)).
			Msg("payment recorded")
	}
	return records, nil
}

func (s *ledgerService) queueReceipts(ctx context.Context, invoiceID uuid.UUID, records []*models.PaymentRecord) {
	if s.tasks == nil {
		return
	}
	for _, record := range records {
		if err := s.tasks.EnqueueReceipt(ctx, invoiceID, record.ID); err != nil {
			s.logger.Warn().Err(err).Str("payment_id", record.ID.String()).Msg("failed to queue receipt")
		}
	}
}

// ReconcileReceipt generates and delivers the receipt for a recorded payment.
// The payment itself is never rolled back when delivery fails.
func (s *ledgerService) ReconcileReceipt(ctx context.Context, invoiceID, paymentID uuid.UUID) (*ReceiptResult, error) {
	return s.receipts.Dispatch(ctx, invoiceID, paymentID)
}

func (s *ledgerService) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]models.PaymentRecord, error) {
	if _, err := s.invoiceRepo.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.paymentRepo.ListByInvoice(ctx, invoiceID)
}

func derefPayments(records []*models.PaymentRecord) []models.PaymentRecord {
	out := make([]models.PaymentRecord, len(records))
	for i, r := range records {
		out[i] = *r
	}
	return out
}
