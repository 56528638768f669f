package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"receivables/internal/models"
)

type PaymentLinkRepository interface {
	Create(ctx context.Context, link *models.PaymentLink) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentLink, error)
	GetByToken(ctx context.Context, token string) (*models.PaymentLink, error)
	// GetActiveByInvoice returns the invoice's active link or a not found error.
	GetActiveByInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.PaymentLink, error)
	Update(ctx context.Context, link *models.PaymentLink) error
	// ListActiveExpiredBy returns active links whose expiry is at or before asOf.
	ListActiveExpiredBy(ctx context.Context, asOf time.Time) ([]*models.PaymentLink, error)
}

const paymentLinkColumns = `id, invoice_id, token, url, amount, allowed_methods, status, created_at, expires_at, used_at, cancelled_at`

type paymentLinkRepo struct {
	db DBTX
}

func NewPaymentLinkRepo(db DBTX) PaymentLinkRepository {
	return &paymentLinkRepo{db: db}
}

func scanPaymentLink(row pgx.Row) (*models.PaymentLink, error) {
	l := &models.PaymentLink{}
	err := row.Scan(&l.ID, &l.InvoiceID, &l.Token, &l.URL, &l.Amount, &l.AllowedMethods, &l.Status,
		&l.CreatedAt, &l.ExpiresAt, &l.UsedAt, &l.CancelledAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *paymentLinkRepo) Create(ctx context.Context, l *models.PaymentLink) error {
	query := `
		INSERT INTO payment_links (` + paymentLinkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query, l.ID, l.InvoiceID, l.Token, l.URL, l.Amount, l.AllowedMethods, l.Status,
		l.CreatedAt, l.ExpiresAt, l.UsedAt, l.CancelledAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment link: %w", err)
	}
	return nil
}

func (r *paymentLinkRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentLink, error) {
	query := `SELECT ` + paymentLinkColumns + ` FROM payment_links WHERE id = $1`
	l, err := scanPaymentLink(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payment link", id)
	}
	return l, nil
}

func (r *paymentLinkRepo) GetByToken(ctx context.Context, token string) (*models.PaymentLink, error) {
	query := `SELECT ` + paymentLinkColumns + ` FROM payment_links WHERE token = $1`
	l, err := scanPaymentLink(r.db.QueryRow(ctx, query, token))
	if err != nil {
		return nil, notFound(err, "payment link", "for token")
	}
	return l, nil
}

func (r *paymentLinkRepo) GetActiveByInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.PaymentLink, error) {
	query := `SELECT ` + paymentLinkColumns + ` FROM payment_links WHERE invoice_id = $1 AND status = 'active'`
	l, err := scanPaymentLink(r.db.QueryRow(ctx, query, invoiceID))
	if err != nil {
		return nil, notFound(err, "active payment link for invoice", invoiceID)
	}
	return l, nil
}

func (r *paymentLinkRepo) Update(ctx context.Context, l *models.PaymentLink) error {
	query := `
		UPDATE payment_links
		SET status = $1, used_at = $2, cancelled_at = $3
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, l.Status, l.UsedAt, l.CancelledAt, l.ID)
	return requireAffected(tag, err, "payment link", l.ID)
}

func (r *paymentLinkRepo) ListActiveExpiredBy(ctx context.Context, asOf time.Time) ([]*models.PaymentLink, error) {
	query := `SELECT ` + paymentLinkColumns + ` FROM payment_links WHERE status = 'active' AND expires_at <= $1`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring payment links: %w", err)
	}
	defer rows.Close()

	var links []*models.PaymentLink
	for rows.Next() {
		l, err := scanPaymentLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
