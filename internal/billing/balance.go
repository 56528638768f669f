package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"receivables/internal/models"
)

// Balance is the reconciled payment position of an invoice.
type Balance struct {
	Paid        decimal.Decimal
	Outstanding decimal.Decimal
	PaymentIDs  []uuid.UUID
}

// ReconcileBalance sums every confirmed payment (each id counted once) and
// derives the outstanding balance from the full sum, so the result does not
// depend on the order payments arrived in.
func ReconcileBalance(total decimal.Decimal, payments []models.PaymentRecord) Balance {
	confirmed := lo.UniqBy(
		lo.Filter(payments, func(p models.PaymentRecord, _ int) bool { return p.Confirmed }),
		func(p models.PaymentRecord) uuid.UUID { return p.ID },
	)

	paid := decimal.Zero
	for _, p := range confirmed {
		paid = paid.Add(p.Amount)
	}

	return Balance{
		Paid:        paid,
		Outstanding: decimal.Max(decimal.Zero, total.Sub(paid)),
		PaymentIDs:  lo.Map(confirmed, func(p models.PaymentRecord, _ int) uuid.UUID { return p.ID }),
	}
}

// DeriveStatus maps a balance onto the invoice status. Cancellation is
// handled by the caller since it is not a function of the balance.
func DeriveStatus(total, outstanding decimal.Decimal, dueDate, asOf time.Time) models.InvoiceStatus {
	switch {
	case !outstanding.IsPositive():
		return models.InvoiceStatusPaid
	case outstanding.LessThan(total):
		return models.InvoiceStatusPartial
	case OverdueDays(dueDate, asOf) > 0:
		return models.InvoiceStatusOverdue
	default:
		return models.InvoiceStatusPending
	}
}
