package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"receivables/internal/models"
)

// PaymentRepository is append-only: there is no update or delete.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.PaymentRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error)
	GetByOnlinePaymentID(ctx context.Context, onlinePaymentID uuid.UUID) (*models.PaymentRecord, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.PaymentRecord, error)
}

const paymentColumns = `id, invoice_id, amount, method, reference, source, online_payment_id, confirmed, paid_at, created_at`

type paymentRepo struct {
	db DBTX
}

func NewPaymentRepo(db DBTX) PaymentRepository {
	return &paymentRepo{db: db}
}

func scanPayment(row pgx.Row) (*models.PaymentRecord, error) {
	p := &models.PaymentRecord{}
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.Source, &p.OnlinePaymentID,
		&p.Confirmed, &p.PaidAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *paymentRepo) Create(ctx context.Context, p *models.PaymentRecord) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query, p.ID, p.InvoiceID, p.Amount, p.Method, p.Reference, p.Source, p.OnlinePaymentID,
		p.Confirmed, p.PaidAt, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payment", id)
	}
	return p, nil
}

func (r *paymentRepo) GetByOnlinePaymentID(ctx context.Context, onlinePaymentID uuid.UUID) (*models.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE online_payment_id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, onlinePaymentID))
	if err != nil {
		return nil, notFound(err, "payment for online payment", onlinePaymentID)
	}
	return p, nil
}

func (r *paymentRepo) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id = $1 ORDER BY paid_at ASC`
	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
