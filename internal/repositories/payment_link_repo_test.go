package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receivables/internal/common"
	"receivables/internal/models"
)

var paymentLinkColumnNames = []string{
	"id", "invoice_id", "token", "url", "amount", "allowed_methods", "status", "created_at", "expires_at", "used_at", "cancelled_at",
}

func TestPaymentLinkRepo_GetActiveByInvoice(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentLinkRepo(mock)
	invoiceID := uuid.New()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	link := &models.PaymentLink{
		ID:             uuid.New(),
		InvoiceID:      invoiceID,
		Token:          "tok_abc",
		URL:            "http://localhost/pay/tok_abc",
		Amount:         decimal.NewFromInt(250),
		AllowedMethods: []models.PaymentMethod{models.PaymentMethodCard},
		Status:         models.LinkStatusActive,
		CreatedAt:      created,
		ExpiresAt:      created.AddDate(0, 0, 7),
	}

	mock.ExpectQuery(`FROM payment_links WHERE invoice_id = \$1 AND status = 'active'`).
		WithArgs(invoiceID).
		WillReturnRows(pgxmock.NewRows(paymentLinkColumnNames).AddRow(
			link.ID, link.InvoiceID, link.Token, link.URL, link.Amount, link.AllowedMethods, link.Status,
			link.CreatedAt, link.ExpiresAt, nil, nil,
		))

	got, err := repo.GetActiveByInvoice(context.Background(), invoiceID)
	require.NoError(t, err)
	assert.Equal(t, link.ID, got.ID)
	assert.True(t, got.Allows(models.PaymentMethodCard))
	assert.Nil(t, got.UsedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentLinkRepo_GetByTokenMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentLinkRepo(mock)
	mock.ExpectQuery(`FROM payment_links WHERE token = \$1`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows(paymentLinkColumnNames))

	_, err = repo.GetByToken(context.Background(), "nope")
	assert.True(t, errors.Is(err, common.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentLinkRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentLinkRepo(mock)
	usedAt := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	link := &models.PaymentLink{ID: uuid.New(), Status: models.LinkStatusUsed, UsedAt: &usedAt}

	mock.ExpectExec(`UPDATE payment_links`).
		WithArgs(link.Status, link.UsedAt, link.CancelledAt, link.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.Update(context.Background(), link))
	assert.NoError(t, mock.ExpectationsWereMet())
}
