package services

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"receivables/internal/common"
	"receivables/internal/events"
	"receivables/internal/models"
	"receivables/internal/repositories"
)

// EventPublisher broadcasts domain events.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// SettlementService completes redeemed online payments against the gateway.
type SettlementService interface {
	Settle(ctx context.Context, onlinePaymentID uuid.UUID) (*models.OnlinePayment, error)
	// Abandon rejects a payment that is still processing once settlement
	// will not be retried, freeing its link for another attempt.
	Abandon(ctx context.Context, onlinePaymentID uuid.UUID, reason string) (*models.OnlinePayment, error)
}

type settlementService struct {
	onlineRepo repositories.OnlinePaymentRepository
	linkRepo   repositories.PaymentLinkRepository
	ledger     LedgerService
	gateway    PaymentGateway
	publisher  EventPublisher
	locker     *KeyedLocker
	clock      clockwork.Clock
	logger     zerolog.Logger
}

func NewSettlementService(
	onlineRepo repositories.OnlinePaymentRepository,
	linkRepo repositories.PaymentLinkRepository,
	ledger LedgerService,
	gateway PaymentGateway,
	publisher EventPublisher,
	locker *KeyedLocker,
	clock clockwork.Clock,
	logger zerolog.Logger,
) SettlementService {
	return &settlementService{
		onlineRepo: onlineRepo,
		linkRepo:   linkRepo,
		ledger:     ledger,
		gateway:    gateway,
		publisher:  publisher,
		locker:     locker,
		clock:      clock,
		logger:     logger,
	}
}

// Settle charges a processing payment and applies the outcome exactly once.
// Payments in any other status are returned unchanged. A returned error
// leaves the payment processing so the task can be retried.
func (s *settlementService) Settle(ctx context.Context, onlinePaymentID uuid.UUID) (*models.OnlinePayment, error) {
	unlock := s.locker.Lock(onlinePaymentID)
	defer unlock()

	payment, err := s.onlineRepo.GetByID(ctx, onlinePaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.OnlinePaymentProcessing {
		s.logger.Debug().
			Str("online_payment_id", onlinePaymentID.String()).
			Str("status", string(payment.Status)).
			Msg("payment already settled, skipping")
		return payment, nil
	}

	result, err := s.gateway.Charge(ctx, payment)
	if err != nil {
		return nil, common.WrapTransportError(err, "payment gateway")
	}
	if !result.Approved {
		return s.reject(ctx, payment, result.DeclineReason)
	}

	payment.GatewayReference = result.Reference
	posted, err := s.ledger.PostOnlinePayment(ctx, payment)
	switch {
	case errors.Is(err, common.ErrOverpayment), errors.Is(err, common.ErrInvalidState):
		return s.reject(ctx, payment, err.Error())
	case err != nil:
		return nil, errors.Wrap(err, "failed to post online payment")
	}

	now := s.clock.Now()
	payment.Status = models.OnlinePaymentCompleted
	payment.PaymentRecordID = &posted.Payment.ID
	payment.ProcessedAt = &now
	if err := s.onlineRepo.Update(ctx, payment); err != nil {
		return nil, errors.Wrap(err, "failed to complete online payment")
	}

	link, err := s.linkRepo.GetByID(ctx, payment.LinkID)
	if err != nil {
		s.logger.Error().Err(err).Str("link_id", payment.LinkID.String()).Msg("failed to load payment link")
	} else if link.Status == models.LinkStatusActive {
		link.Status = models.LinkStatusUsed
		link.UsedAt = &now
		if err := s.linkRepo.Update(ctx, link); err != nil {
			s.logger.Error().Err(err).Str("link_id", link.ID.String()).Msg("failed to mark payment link used")
		}
	}

	s.publish(ctx, events.TopicPaymentSettled, events.PaymentSettled{
		OnlinePaymentID: payment.ID,
		LinkID:          payment.LinkID,
		InvoiceID:       payment.InvoiceID,
		PaymentID:       posted.Payment.ID,
		Amount:          payment.Amount,
		Method:          payment.Method,
		Reference:       payment.GatewayReference,
		SettledAt:       now,
	})

	s.logger.Info().
		Str("online_payment_id", payment.ID.String()).
		Str("invoice_id", payment.InvoiceID.String()).
		Str("reference", payment.GatewayReference).
		Msg("online payment settled")
	return payment, nil
}

func (s *settlementService) Abandon(ctx context.Context, onlinePaymentID uuid.UUID, reason string) (*models.OnlinePayment, error) {
	unlock := s.locker.Lock(onlinePaymentID)
	defer unlock()

	payment, err := s.onlineRepo.GetByID(ctx, onlinePaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.OnlinePaymentProcessing {
		return payment, nil
	}
	return s.reject(ctx, payment, reason)
}

// reject leaves the link active so the payer can retry.
func (s *settlementService) reject(ctx context.Context, payment *models.OnlinePayment, reason string) (*models.OnlinePayment, error) {
	now := s.clock.Now()
	payment.Status = models.OnlinePaymentRejected
	payment.FailureReason = reason
	payment.ProcessedAt = &now
	if err := s.onlineRepo.Update(ctx, payment); err != nil {
		return nil, errors.Wrap(err, "failed to reject online payment")
	}

	s.publish(ctx, events.TopicPaymentRejected, events.PaymentRejected{
		OnlinePaymentID: payment.ID,
		LinkID:          payment.LinkID,
		InvoiceID:       payment.InvoiceID,
		Reason:          reason,
		RejectedAt:      now,
	})

	s.logger.Info().
		Str("online_payment_id", payment.ID.String()).
		Str("reason", reason).
		Msg("online payment rejected")
	return payment, nil
}

func (s *settlementService) publish(ctx context.Context, topic string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("failed to publish payment event")
	}
}
