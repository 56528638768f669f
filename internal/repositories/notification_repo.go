package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"receivables/internal/models"
)

// NotificationRepository stores in-system inbox messages and the per-invoice
// dispatch history used by the reminder throttle.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, recipient string, limit int) ([]*models.Notification, error)
	AppendHistory(ctx context.Context, entry *models.NotificationHistory) error
	ListHistory(ctx context.Context, invoiceID uuid.UUID) ([]models.NotificationHistory, error)
}

type notificationRepo struct {
	db DBTX
}

func NewNotificationRepo(db DBTX) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, invoice_id, recipient, subject, body, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, n.ID, n.InvoiceID, n.Recipient, n.Subject, n.Body, n.CreatedAt, n.ReadAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *notificationRepo) ListNotifications(ctx context.Context, recipient string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, invoice_id, recipient, subject, body, created_at, read_at
		FROM notifications
		WHERE recipient = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, recipient, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.ID, &n.InvoiceID, &n.Recipient, &n.Subject, &n.Body, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *notificationRepo) AppendHistory(ctx context.Context, h *models.NotificationHistory) error {
	query := `
		INSERT INTO notification_history (id, invoice_id, kind, channels, overdue_days, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, h.ID, h.InvoiceID, h.Kind, h.Channels, h.OverdueDays, h.SentAt)
	if err != nil {
		return fmt.Errorf("failed to append notification history: %w", err)
	}
	return nil
}

func (r *notificationRepo) ListHistory(ctx context.Context, invoiceID uuid.UUID) ([]models.NotificationHistory, error) {
	query := `
		SELECT id, invoice_id, kind, channels, overdue_days, sent_at
		FROM notification_history
		WHERE invoice_id = $1
		ORDER BY sent_at ASC
	`
	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification history: %w", err)
	}
	defer rows.Close()

	var history []models.NotificationHistory
	for rows.Next() {
		var h models.NotificationHistory
		if err := rows.Scan(&h.ID, &h.InvoiceID, &h.Kind, &h.Channels, &h.OverdueDays, &h.SentAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
