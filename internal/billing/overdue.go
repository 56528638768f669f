package billing

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"receivables/internal/models"
)

// OverdueInvoice pairs an invoice with its overdue day count at detection time.
type OverdueInvoice struct {
	Invoice     *models.Invoice `json:"invoice"`
	OverdueDays int             `json:"overdue_days"`
}

// DetectOverdue selects open invoices that are at least minDays overdue,
// most overdue first and larger balances first among equals.
func DetectOverdue(invoices []*models.Invoice, minDays int, asOf time.Time) []OverdueInvoice {
	candidates := lo.FilterMap(invoices, func(inv *models.Invoice, _ int) (OverdueInvoice, bool) {
		if !inv.IsOpen() {
			return OverdueInvoice{}, false
		}
		days := OverdueDays(inv.DueDate, asOf)
		if days < minDays {
			return OverdueInvoice{}, false
		}
		return OverdueInvoice{Invoice: inv, OverdueDays: days}, true
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].OverdueDays != candidates[j].OverdueDays {
			return candidates[i].OverdueDays > candidates[j].OverdueDays
		}
		return candidates[i].Invoice.OutstandingBalance.GreaterThan(candidates[j].Invoice.OutstandingBalance)
	})
	return candidates
}

// ShouldNotify applies the reminder cadence to the invoice's reminder history.
func ShouldNotify(cadence models.Cadence, history []models.NotificationHistory, now time.Time) bool {
	reminders := lo.Filter(history, func(h models.NotificationHistory, _ int) bool {
		return h.Kind == models.NotificationKindReminder
	})
	if len(reminders) == 0 {
		return true
	}

	last := lo.MaxBy(reminders, func(a, b models.NotificationHistory) bool {
		return a.SentAt.After(b.SentAt)
	}).SentAt
	elapsed := now.Sub(last)

	switch cadence {
	case models.CadenceOnce:
		return false
	case models.CadenceDaily:
		return elapsed >= 24*time.Hour
	case models.CadenceWeekly:
		return elapsed >= 7*24*time.Hour
	default:
		return false
	}
}
