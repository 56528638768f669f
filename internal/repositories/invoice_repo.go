package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"receivables/internal/models"
)

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	Update(ctx context.Context, invoice *models.Invoice) error
	List(ctx context.Context, filter models.InvoiceFilter) ([]*models.Invoice, error)
	// ListOpen returns every non-cancelled invoice with a positive balance.
	ListOpen(ctx context.Context) ([]*models.Invoice, error)
	RecordReminder(ctx context.Context, id uuid.UUID, at time.Time) error
	NextSequence(ctx context.Context) (int64, error)
}

const invoiceColumns = `id, sequence, number, issue_date, due_date, customer, items, subtotal, discount, discount_amount,
		tax_rate, tax, total, status, payment_ids, paid_amount, outstanding_balance, reminder_count, last_reminder_at,
		subscription_id, payment_link_id, notes, paid_at, cancelled_at, created_at, updated_at`

type invoiceRepo struct {
	db DBTX
}

func NewInvoiceRepo(db DBTX) InvoiceRepository {
	return &invoiceRepo{db: db}
}

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	inv := &models.Invoice{}
	err := row.Scan(&inv.ID, &inv.Sequence, &inv.Number, &inv.IssueDate, &inv.DueDate, &inv.Customer, &inv.Items,
		&inv.Subtotal, &inv.Discount, &inv.DiscountAmount, &inv.TaxRate, &inv.Tax, &inv.Total, &inv.Status,
		&inv.PaymentIDs, &inv.PaidAmount, &inv.OutstandingBalance, &inv.ReminderCount, &inv.LastReminderAt,
		&inv.SubscriptionID, &inv.PaymentLinkID, &inv.Notes, &inv.PaidAt, &inv.CancelledAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func collectInvoices(rows pgx.Rows) ([]*models.Invoice, error) {
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (r *invoiceRepo) Create(ctx context.Context, inv *models.Invoice) error {
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`
	_, err := r.db.Exec(ctx, query, inv.ID, inv.Sequence, inv.Number, inv.IssueDate, inv.DueDate, inv.Customer, inv.Items,
		inv.Subtotal, inv.Discount, inv.DiscountAmount, inv.TaxRate, inv.Tax, inv.Total, inv.Status,
		inv.PaymentIDs, inv.PaidAmount, inv.OutstandingBalance, inv.ReminderCount, inv.LastReminderAt,
		inv.SubscriptionID, inv.PaymentLinkID, inv.Notes, inv.PaidAt, inv.CancelledAt, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

func (r *invoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "invoice", id)
	}
	return inv, nil
}

func (r *invoiceRepo) Update(ctx context.Context, inv *models.Invoice) error {
	query := `
		UPDATE invoices
		SET due_date = $1, status = $2, payment_ids = $3, paid_amount = $4, outstanding_balance = $5,
			payment_link_id = $6, notes = $7, paid_at = $8, cancelled_at = $9, updated_at = $10
		WHERE id = $11
	`
	tag, err := r.db.Exec(ctx, query, inv.DueDate, inv.Status, inv.PaymentIDs, inv.PaidAmount, inv.OutstandingBalance,
		inv.PaymentLinkID, inv.Notes, inv.PaidAt, inv.CancelledAt, inv.UpdatedAt, inv.ID)
	return requireAffected(tag, err, "invoice", inv.ID)
}

func (r *invoiceRepo) List(ctx context.Context, filter models.InvoiceFilter) ([]*models.Invoice, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE ($1 = '' OR status = $1)
			AND ($2 = '' OR customer->>'email' = $2)
			AND ($3::uuid IS NULL OR subscription_id = $3)
		ORDER BY sequence DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.db.Query(ctx, query, string(filter.Status), filter.CustomerEmail, filter.SubscriptionID, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return collectInvoices(rows)
}

func (r *invoiceRepo) ListOpen(ctx context.Context) ([]*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status <> 'cancelled' AND outstanding_balance > 0
		ORDER BY due_date ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open invoices: %w", err)
	}
	return collectInvoices(rows)
}

// RecordReminder only touches the reminder columns so it never races with
// balance updates.
func (r *invoiceRepo) RecordReminder(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE invoices
		SET reminder_count = reminder_count + 1, last_reminder_at = $1
		WHERE id = $2
	`
	tag, err := r.db.Exec(ctx, query, at, id)
	return requireAffected(tag, err, "invoice", id)
}

func (r *invoiceRepo) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to allocate invoice number: %w", err)
	}
	return seq, nil
}
