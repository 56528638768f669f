package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"receivables/internal/billing"
	"receivables/internal/config"
	"receivables/internal/models"
	"receivables/internal/services"
	"receivables/pkg/database"
)

// TestDB holds the database connection for testing
type TestDB struct {
	Pool    *pgxpool.Pool
	Cleanup func()
}

// SetupTestDB connects to TEST_DATABASE_URL, applies the schema and empties
// every table. The test is skipped when the variable is not set.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping Postgres test")
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, config.DatabaseConfig{Driver: config.DriverPostgres, URL: url, MaxConns: 4}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	_, err = pool.Exec(ctx, `TRUNCATE invoices, payments, subscriptions, payment_links, online_payments,
		notifications, notification_history, audit_logs`)
	if err != nil {
		pool.Close()
		t.Fatalf("Failed to reset test database: %v", err)
	}

	return &TestDB{Pool: pool, Cleanup: pool.Close}
}

// NewInvoice builds a pending invoice for customer with a single line item
// priced at amount and no tax.
func NewInvoice(t *testing.T, seq int64, customer string, amount string, issued time.Time) *models.Invoice {
	t.Helper()

	items := []models.LineItem{{
		Description: "Services",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   decimal.RequireFromString(amount),
	}}
	totals, err := billing.ComputeInvoiceTotals(items, nil, decimal.Zero)
	if err != nil {
		t.Fatalf("Failed to compute invoice totals: %v", err)
	}

	issueDate := billing.DateOnly(issued)
	return &models.Invoice{
		ID:                 uuid.New(),
		Sequence:           seq,
		Number:             services.FormatInvoiceNumber(seq),
		IssueDate:          issueDate,
		DueDate:            issueDate.AddDate(0, 0, 30),
		Customer:           models.Customer{Name: customer, Email: "billing@example.test"},
		Items:              totals.Items,
		Subtotal:           totals.Subtotal,
		DiscountAmount:     totals.DiscountAmount,
		TaxRate:            decimal.Zero,
		Tax:                totals.Tax,
		Total:              totals.Total,
		Status:             models.InvoiceStatusPending,
		PaymentIDs:         []uuid.UUID{},
		PaidAmount:         decimal.Zero,
		OutstandingBalance: totals.Total,
		CreatedAt:          issued,
		UpdatedAt:          issued,
	}
}
