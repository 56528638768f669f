package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receivables/internal/models"
)

func payment(amount string, confirmed bool) models.PaymentRecord {
	return models.PaymentRecord{ID: uuid.New(), Amount: dec(amount), Confirmed: confirmed}
}

func TestReconcileBalance_OrderIndependent(t *testing.T) {
	total := dec("100.00")
	p1, p2, p3 := payment("30", true), payment("20.50", true), payment("10", true)

	forward := ReconcileBalance(total, []models.PaymentRecord{p1, p2, p3})
	backward := ReconcileBalance(total, []models.PaymentRecord{p3, p2, p1})

	assert.Equal(t, "60.50", forward.Paid.StringFixed(2))
	assert.Equal(t, "39.50", forward.Outstanding.StringFixed(2))
	assert.True(t, forward.Outstanding.Equal(backward.Outstanding))
	assert.ElementsMatch(t, forward.PaymentIDs, backward.PaymentIDs)
}

func TestReconcileBalance_IgnoresUnconfirmedAndDuplicates(t *testing.T) {
	p := payment("40", true)

	balance := ReconcileBalance(dec("100"), []models.PaymentRecord{p, p, payment("60", false)})

	assert.Equal(t, "40.00", balance.Paid.StringFixed(2))
	assert.Equal(t, "60.00", balance.Outstanding.StringFixed(2))
	assert.Equal(t, []uuid.UUID{p.ID}, balance.PaymentIDs)
}

func TestReconcileBalance_NeverNegative(t *testing.T) {
	balance := ReconcileBalance(dec("50"), []models.PaymentRecord{payment("80", true)})

	assert.True(t, balance.Outstanding.IsZero())
}

func TestDeriveStatus(t *testing.T) {
	due := day("2024-01-31")
	before := day("2024-01-15")
	after := day("2024-02-10")

	assert.Equal(t, models.InvoiceStatusPaid, DeriveStatus(dec("100"), dec("0"), due, after))
	assert.Equal(t, models.InvoiceStatusPartial, DeriveStatus(dec("100"), dec("40"), due, after))
	assert.Equal(t, models.InvoiceStatusOverdue, DeriveStatus(dec("100"), dec("100"), due, after))
	assert.Equal(t, models.InvoiceStatusPending, DeriveStatus(dec("100"), dec("100"), due, before))
	assert.Equal(t, models.InvoiceStatusPending, DeriveStatus(dec("100"), dec("100"), due, due))
}

func openInvoice(balance string, due time.Time) *models.Invoice {
	return &models.Invoice{
		ID:                 uuid.New(),
		Total:              dec(balance),
		OutstandingBalance: dec(balance),
		DueDate:            due,
		Status:             models.InvoiceStatusPending,
	}
}

func TestDetectOverdue(t *testing.T) {
	asOf := day("2024-03-01")
	a := openInvoice("100", day("2024-02-20")) // 10 days
	b := openInvoice("500", day("2024-02-20")) // 10 days, bigger balance
	c := openInvoice("50", day("2024-02-01"))  // 29 days
	d := openInvoice("70", day("2024-02-28"))  // 2 days
	future := openInvoice("90", day("2024-03-15"))
	paid := openInvoice("0", day("2024-01-01"))
	cancelled := openInvoice("300", day("2024-01-01"))
	cancelled.Status = models.InvoiceStatusCancelled

	got := DetectOverdue([]*models.Invoice{a, b, c, d, future, paid, cancelled}, 3, asOf)

	require.Len(t, got, 3)
	assert.Equal(t, c.ID, got[0].Invoice.ID)
	assert.Equal(t, 29, got[0].OverdueDays)
	assert.Equal(t, b.ID, got[1].Invoice.ID)
	assert.Equal(t, a.ID, got[2].Invoice.ID)
}

func TestDetectOverdue_MinDaysThreshold(t *testing.T) {
	asOf := day("2024-03-11")
	fiveDays := openInvoice("100", day("2024-03-06"))
	tenDays := openInvoice("100", day("2024-03-01"))

	got := DetectOverdue([]*models.Invoice{fiveDays, tenDays}, 7, asOf)

	require.Len(t, got, 1)
	assert.Equal(t, tenDays.ID, got[0].Invoice.ID)
	assert.Equal(t, 10, got[0].OverdueDays)
}

func TestShouldNotify(t *testing.T) {
	now := day("2024-03-10").Add(12 * time.Hour)
	reminderAt := func(ago time.Duration) []models.NotificationHistory {
		return []models.NotificationHistory{{Kind: models.NotificationKindReminder, SentAt: now.Add(-ago)}}
	}

	tests := []struct {
		name    string
		cadence models.Cadence
		history []models.NotificationHistory
		want    bool
	}{
		{"empty history once", models.CadenceOnce, nil, true},
		{"empty history weekly", models.CadenceWeekly, nil, true},
		{"once never repeats", models.CadenceOnce, reminderAt(30 * 24 * time.Hour), false},
		{"daily after 12h", models.CadenceDaily, reminderAt(12 * time.Hour), false},
		{"daily after 25h", models.CadenceDaily, reminderAt(25 * time.Hour), true},
		{"weekly after 6 days", models.CadenceWeekly, reminderAt(6 * 24 * time.Hour), false},
		{"weekly after 7 days", models.CadenceWeekly, reminderAt(7 * 24 * time.Hour), true},
		{
			name:    "invoice notices do not count as reminders",
			cadence: models.CadenceOnce,
			history: []models.NotificationHistory{{Kind: models.NotificationKindInvoice, SentAt: now}},
			want:    true,
		},
		{
			name:    "latest reminder wins",
			cadence: models.CadenceDaily,
			history: append(reminderAt(72*time.Hour), reminderAt(2*time.Hour)...),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldNotify(tt.cadence, tt.history, now))
		})
	}
}
