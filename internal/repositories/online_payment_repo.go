package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"receivables/internal/models"
)

type OnlinePaymentRepository interface {
	Create(ctx context.Context, payment *models.OnlinePayment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.OnlinePayment, error)
	Update(ctx context.Context, payment *models.OnlinePayment) error
	ListByLink(ctx context.Context, linkID uuid.UUID) ([]*models.OnlinePayment, error)
}

const onlinePaymentColumns = `id, link_id, invoice_id, amount, method, payer, status, gateway_reference, failure_reason,
		payment_record_id, created_at, processed_at`

type onlinePaymentRepo struct {
	db DBTX
}

func NewOnlinePaymentRepo(db DBTX) OnlinePaymentRepository {
	return &onlinePaymentRepo{db: db}
}

func scanOnlinePayment(row pgx.Row) (*models.OnlinePayment, error) {
	p := &models.OnlinePayment{}
	err := row.Scan(&p.ID, &p.LinkID, &p.InvoiceID, &p.Amount, &p.Method, &p.Payer, &p.Status, &p.GatewayReference,
		&p.FailureReason, &p.PaymentRecordID, &p.CreatedAt, &p.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *onlinePaymentRepo) Create(ctx context.Context, p *models.OnlinePayment) error {
	query := `
		INSERT INTO online_payments (` + onlinePaymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query, p.ID, p.LinkID, p.InvoiceID, p.Amount, p.Method, p.Payer, p.Status,
		p.GatewayReference, p.FailureReason, p.PaymentRecordID, p.CreatedAt, p.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to insert online payment: %w", err)
	}
	return nil
}

func (r *onlinePaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.OnlinePayment, error) {
	query := `SELECT ` + onlinePaymentColumns + ` FROM online_payments WHERE id = $1`
	p, err := scanOnlinePayment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "online payment", id)
	}
	return p, nil
}

func (r *onlinePaymentRepo) Update(ctx context.Context, p *models.OnlinePayment) error {
	query := `
		UPDATE online_payments
		SET status = $1, gateway_reference = $2, failure_reason = $3, payment_record_id = $4, processed_at = $5
		WHERE id = $6
	`
	tag, err := r.db.Exec(ctx, query, p.Status, p.GatewayReference, p.FailureReason, p.PaymentRecordID, p.ProcessedAt, p.ID)
	return requireAffected(tag, err, "online payment", p.ID)
}

func (r *onlinePaymentRepo) ListByLink(ctx context.Context, linkID uuid.UUID) ([]*models.OnlinePayment, error) {
	query := `SELECT ` + onlinePaymentColumns + ` FROM online_payments WHERE link_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list online payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.OnlinePayment
	for rows.Next() {
		p, err := scanOnlinePayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
