package services

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"receivables/internal/common"
	"receivables/internal/events"
	"receivables/internal/models"
	"receivables/internal/repositories"
)

// EventSubscriber hands out a message stream per topic.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// AuditLogsService keeps the audit trail of payment outcomes and API writes.
type AuditLogsService interface {
	LogActivity(ctx context.Context, entityType, entityID, action, source string, values models.JSONB) error
	ListAuditLogs(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
	GetEntityHistory(ctx context.Context, entityType, entityID string, limit, offset int) ([]*models.AuditLog, error)
	// ConsumeEvents records payment events until ctx is cancelled.
	ConsumeEvents(ctx context.Context, subscriber EventSubscriber) error
}

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 1000
)

type auditLogsService struct {
	auditLogsRepo repositories.AuditLogsRepository
	clock         clockwork.Clock
	logger        zerolog.Logger
}

func NewAuditLogsService(auditLogsRepo repositories.AuditLogsRepository, clock clockwork.Clock, logger zerolog.Logger) AuditLogsService {
	return &auditLogsService{
		auditLogsRepo: auditLogsRepo,
		clock:         clock,
		logger:        logger,
	}
}

// LogActivity creates a new audit log entry with validation
func (s *auditLogsService) LogActivity(ctx context.Context, entityType, entityID, action, source string, values models.JSONB) error {
	if entityType == "" {
		return common.NewValidationError("entity_type", "is required")
	}
	if action == "" {
		return common.NewValidationError("action", "is required")
	}

	return s.auditLogsRepo.Create(ctx, &models.AuditLog{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Source:     source,
		Values:     values,
		CreatedAt:  s.clock.Now(),
	})
}

func (s *auditLogsService) ListAuditLogs(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	if filters == nil {
		filters = &models.AuditLogFilters{}
	}
	if filters.Offset < 0 {
		return nil, common.NewValidationError("offset", "cannot be negative")
	}
	if filters.Limit <= 0 || filters.Limit > maxAuditLimit {
		filters.Limit = defaultAuditLimit
	}
	return s.auditLogsRepo.List(ctx, filters)
}

func (s *auditLogsService) GetEntityHistory(ctx context.Context, entityType, entityID string, limit, offset int) ([]*models.AuditLog, error) {
	return s.ListAuditLogs(ctx, &models.AuditLogFilters{
		EntityType: &entityType,
		EntityID:   &entityID,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *auditLogsService) ConsumeEvents(ctx context.Context, subscriber EventSubscriber) error {
	settled, err := subscriber.Subscribe(ctx, events.TopicPaymentSettled)
	if err != nil {
		return err
	}
	rejected, err := subscriber.Subscribe(ctx, events.TopicPaymentRejected)
	if err != nil {
		return err
	}

	go s.consume(settled, s.recordSettled)
	go s.consume(rejected, s.recordRejected)
	return nil
}

func (s *auditLogsService) consume(messages <-chan *message.Message, record func(msg *message.Message) error) {
	for msg := range messages {
		if err := record(msg); err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.UUID).Msg("failed to record audit event")
		}
	}
}

func (s *auditLogsService) recordSettled(msg *message.Message) error {
	var event events.PaymentSettled
	if err := events.Decode(msg, &event); err != nil {
		return err
	}
	return s.LogActivity(msg.Context(), "invoice", event.InvoiceID.String(), models.ActionPaymentSettled, models.AuditSourceEvent, models.JSONB{
		"online_payment_id": event.OnlinePaymentID.String(),
		"payment_id":        event.PaymentID.String(),
		"amount":            event.Amount.StringFixed(2),
		"method":            string(event.Method),
		"reference":         event.Reference,
	})
}

func (s *auditLogsService) recordRejected(msg *message.Message) error {
	var event events.PaymentRejected
	if err := events.Decode(msg, &event); err != nil {
		return err
	}
	return s.LogActivity(msg.Context(), "invoice", event.InvoiceID.String(), models.ActionPaymentRejected, models.AuditSourceEvent, models.JSONB{
		"online_payment_id": event.OnlinePaymentID.String(),
		"reason":            event.Reason,
	})
}
