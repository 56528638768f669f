package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"receivables/internal/common"
	"receivables/internal/services"
)

// Task type definitions
const (
	TypeSettlement = "settlement:process"
	TypeReceipt    = "receipt:dispatch"
)

// Queue names, matched by the worker's queue priorities
const (
	QueueSettlement = "settlement"
	QueueReceipts   = "receipts"
)

// SettlementPayload defines the payload for settlement tasks
type SettlementPayload struct {
	OnlinePaymentID uuid.UUID `json:"online_payment_id"`
}

// ReceiptPayload defines the payload for receipt dispatch tasks
type ReceiptPayload struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	PaymentID uuid.UUID `json:"payment_id"`
}

// NewSettlementTask creates a new settlement task
func NewSettlementTask(onlinePaymentID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(SettlementPayload{OnlinePaymentID: onlinePaymentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSettlement, data), nil
}

// NewReceiptTask creates a new receipt dispatch task
func NewReceiptTask(invoiceID, paymentID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(ReceiptPayload{InvoiceID: invoiceID, PaymentID: paymentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReceipt, data), nil
}

// Processor runs queued tasks against the payment services.
type Processor struct {
	settlement services.SettlementService
	ledger     services.LedgerService
	logger     zerolog.Logger
}

func NewProcessor(settlement services.SettlementService, ledger services.LedgerService, logger zerolog.Logger) *Processor {
	return &Processor{
		settlement: settlement,
		ledger:     ledger,
		logger:     logger,
	}
}

// NewServeMux routes every task type to its handler.
func (p *Processor) NewServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSettlement, p.SettlementHandler)
	mux.HandleFunc(TypeReceipt, p.ReceiptHandler)
	return mux
}

// SettlementHandler handles settlement tasks
func (p *Processor) SettlementHandler(ctx context.Context, t *asynq.Task) error {
	var payload SettlementPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal settlement payload: %v: %w", err, asynq.SkipRetry)
	}

	log := p.logger.With().Str("online_payment_id", payload.OnlinePaymentID.String()).Logger()
	log.Debug().Msg("settling online payment")

	payment, err := p.settlement.Settle(ctx, payload.OnlinePaymentID)
	if err != nil {
		log.Error().Err(err).Msg("settlement failed")
		result := retryable(err)
		if !errors.Is(err, common.ErrNotFound) && (errors.Is(result, asynq.SkipRetry) || finalAttempt(ctx)) {
			// the task will not run again, so release the link for another try
			if _, abandonErr := p.settlement.Abandon(context.WithoutCancel(ctx), payload.OnlinePaymentID, "settlement failed: "+err.Error()); abandonErr != nil {
				log.Error().Err(abandonErr).Msg("failed to reject abandoned payment")
			}
		}
		return result
	}

	log.Info().Str("status", string(payment.Status)).Msg("settlement task completed")
	return nil
}

// ReceiptHandler handles receipt dispatch tasks
func (p *Processor) ReceiptHandler(ctx context.Context, t *asynq.Task) error {
	var payload ReceiptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal receipt payload: %v: %w", err, asynq.SkipRetry)
	}

	log := p.logger.With().
		Str("invoice_id", payload.InvoiceID.String()).
		Str("payment_id", payload.PaymentID.String()).
		Logger()

	receipt, err := p.ledger.ReconcileReceipt(ctx, payload.InvoiceID, payload.PaymentID)
	if err != nil {
		log.Error().Err(err).Msg("receipt dispatch failed")
		return retryable(err)
	}

	log.Info().Str("object_key", receipt.ObjectKey).Msg("receipt dispatched")
	return nil
}

type attemptKey struct{}

type attempt struct {
	retried  int
	maxRetry int
}

// withAttempt records the retry state for queues that do not run on asynq.
func withAttempt(ctx context.Context, retried, maxRetry int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt{retried: retried, maxRetry: maxRetry})
}

// finalAttempt reports whether a failure now exhausts the task's retries.
func finalAttempt(ctx context.Context) bool {
	if a, ok := ctx.Value(attemptKey{}).(attempt); ok {
		return a.retried >= a.maxRetry
	}
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= maxRetry
}

// retryable marks errors that another attempt cannot fix.
func retryable(err error) error {
	if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrValidation) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}
