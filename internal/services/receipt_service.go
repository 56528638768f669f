package services

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/repositories"
)

// ReceiptService renders, stores and delivers payment receipts.
type ReceiptService interface {
	Dispatch(ctx context.Context, invoiceID, paymentID uuid.UUID) (*ReceiptResult, error)
}

type ReceiptResult struct {
	InvoiceID uuid.UUID       `json:"invoice_id"`
	PaymentID uuid.UUID       `json:"payment_id"`
	ObjectKey string          `json:"object_key"`
	URL       string          `json:"url"`
	Delivery  *DeliveryReport `json:"delivery,omitempty"`
}

type receiptService struct {
	invoiceRepo   repositories.InvoiceRepository
	paymentRepo   repositories.PaymentRepository
	renderer      ReceiptRenderer
	store         ObjectStore
	notifications NotificationService
	presignExpiry time.Duration
	logger        zerolog.Logger
}

func NewReceiptService(
	invoiceRepo repositories.InvoiceRepository,
	paymentRepo repositories.PaymentRepository,
	renderer ReceiptRenderer,
	store ObjectStore,
	notifications NotificationService,
	presignExpiry time.Duration,
	logger zerolog.Logger,
) ReceiptService {
	if presignExpiry <= 0 {
		presignExpiry = 7 * 24 * time.Hour
	}
	return &receiptService{
		invoiceRepo:   invoiceRepo,
		paymentRepo:   paymentRepo,
		renderer:      renderer,
		store:         store,
		notifications: notifications,
		presignExpiry: presignExpiry,
		logger:        logger,
	}
}

// ReceiptObjectKey is where a payment's receipt is stored.
func ReceiptObjectKey(invoiceID, paymentID uuid.UUID) string {
	return fmt.Sprintf("receipts/%s/%s.pdf", invoiceID, paymentID)
}

// Dispatch is safe to repeat: the object is overwritten and the customer may
// receive the receipt again.
func (s *receiptService) Dispatch(ctx context.Context, invoiceID, paymentID uuid.UUID) (*ReceiptResult, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.InvoiceID != invoiceID {
		return nil, common.NewNotFoundError("payment", paymentID)
	}

	pdf, err := s.renderer.RenderReceipt(invoice, payment)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render receipt")
	}

	key := ReceiptObjectKey(invoiceID, paymentID)
	if err := s.store.Upload(ctx, key, "application/pdf", pdf); err != nil {
		return nil, common.WrapTransportError(err, "object storage")
	}
	url, err := s.store.PresignedURL(ctx, key, s.presignExpiry)
	if err != nil {
		return nil, common.WrapTransportError(err, "object storage")
	}

	result := &ReceiptResult{InvoiceID: invoiceID, PaymentID: paymentID, ObjectKey: key, URL: url}

	msg, err := s.notifications.BuildReceiptNotice(invoice, payment, url)
	if err != nil {
		return nil, err
	}
	report, err := s.notifications.Send(ctx, invoice, msg, []models.Channel{models.ChannelEmail}, 0)
	result.Delivery = report
	if err != nil {
		return result, err
	}

	s.logger.Info().
		Str("invoice_id", invoiceID.String()).
		Str("payment_id", paymentID.String()).
		Str("object_key", key).
		Msg("receipt dispatched")
	return result, nil
}
