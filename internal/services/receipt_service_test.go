package services

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"receivables/internal/common"
	"receivables/internal/models"
)

type ReceiptServiceTestSuite struct {
	suite.Suite
	f *fixture
}

func (suite *ReceiptServiceTestSuite) SetupTest() {
	suite.f = newFixture()
}

func TestReceiptServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ReceiptServiceTestSuite))
}

func (suite *ReceiptServiceTestSuite) paidInvoice() (*models.Invoice, *models.PaymentRecord) {
	inv := suite.f.createInvoice("250")
	result, err := suite.f.ledger.RecordPayment(suite.f.ctx, inv.ID, cash("250"))
	require.NoError(suite.T(), err)
	return result.Invoice, result.Payment
}

func (suite *ReceiptServiceTestSuite) TestDispatch_StoresPDFAndEmails() {
	inv, payment := suite.paidInvoice()

	result, err := suite.f.receipts.Dispatch(suite.f.ctx, inv.ID, payment.ID)

	require.NoError(suite.T(), err)
	key := ReceiptObjectKey(inv.ID, payment.ID)
	assert.Equal(suite.T(), "https://files.test/"+key, result.URL)
	assert.True(suite.T(), bytes.HasPrefix(suite.f.objects.objects[key], []byte("%PDF")))

	sent := suite.f.transport.Sent()
	require.Len(suite.T(), sent, 1)
	assert.Equal(suite.T(), models.NotificationKindReceipt, sent[0].Message.Kind)
	assert.Contains(suite.T(), sent[0].Message.Body, result.URL)

	history, _ := suite.f.notifications.History(suite.f.ctx, inv.ID)
	require.Len(suite.T(), history, 1)
	assert.Equal(suite.T(), models.NotificationKindReceipt, history[0].Kind)
}

func (suite *ReceiptServiceTestSuite) TestDispatch_StorageFailure() {
	inv, payment := suite.paidInvoice()
	suite.f.objects.err = errors.New("bucket missing")

	_, err := suite.f.receipts.Dispatch(suite.f.ctx, inv.ID, payment.ID)

	assert.True(suite.T(), errors.Is(err, common.ErrTransport))
	assert.Empty(suite.T(), suite.f.transport.Sent())

	stored, _ := suite.f.invoices.Get(suite.f.ctx, inv.ID)
	assert.Equal(suite.T(), models.InvoiceStatusPaid, stored.Status)
}

func (suite *ReceiptServiceTestSuite) TestDispatch_PaymentOfAnotherInvoice() {
	_, payment := suite.paidInvoice()
	other := suite.f.createInvoice("10")

	_, err := suite.f.receipts.Dispatch(suite.f.ctx, other.ID, payment.ID)
	assert.True(suite.T(), errors.Is(err, common.ErrNotFound))

	_, err = suite.f.receipts.Dispatch(suite.f.ctx, other.ID, uuid.New())
	assert.True(suite.T(), errors.Is(err, common.ErrNotFound))
}

func TestPDFRenderer_RenderInvoice(t *testing.T) {
	renderer := NewPDFRenderer("Acme Billing", "COP")
	inv := &models.Invoice{
		ID:        uuid.New(),
		Number:    "INV-000042",
		IssueDate: day(2025, 3, 1),
		DueDate:   day(2025, 3, 31),
		Customer:  testCustomer(),
		Items: []models.LineItem{
			{Description: "Consulting", Quantity: dec("2"), UnitPrice: dec("50"), Amount: dec("100")},
		},
		Subtotal:           dec("100"),
		Tax:                dec("19"),
		Total:              dec("119"),
		OutstandingBalance: dec("119"),
		Status:             models.InvoiceStatusPending,
	}

	pdf, err := renderer.RenderInvoice(inv)

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}
