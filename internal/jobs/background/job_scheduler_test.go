package background

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receivables/internal/config"
	"receivables/internal/models"
	"receivables/internal/repositories/memory"
	"receivables/internal/services"
)

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:              true,
		BillingCron:          "0 6 * * *",
		ReminderCron:         "0 9 * * *",
		StatusRefreshMinutes: 60,
		LinkExpiryMinutes:    15,
	}
}

func TestNewJobScheduler_RegistersJobs(t *testing.T) {
	js, err := NewJobScheduler(Services{}, testSchedulerConfig(), clockwork.NewFakeClock(), zerolog.Nop())
	require.NoError(t, err)
	defer js.Stop()

	names := make([]string, 0)
	for _, status := range js.GetJobStatus() {
		names = append(names, status.Name)
	}
	assert.Equal(t, []string{JobStatusRefresh, JobOverdueReminders, JobLinkExpiry, JobSubscriptionBilling}, names)
}

func TestNewJobScheduler_RejectsBadCron(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.BillingCron = "every morning"

	_, err := NewJobScheduler(Services{}, cfg, clockwork.NewFakeClock(), zerolog.Nop())
	assert.Error(t, err)
}

func TestJobScheduler_AddAndRemoveJob(t *testing.T) {
	js, err := NewJobScheduler(Services{}, testSchedulerConfig(), clockwork.NewFakeClock(), zerolog.Nop())
	require.NoError(t, err)
	defer js.Stop()

	require.NoError(t, js.AddJob("ping", time.Minute, func() {}))
	assert.Len(t, js.GetJobStatus(), 5)

	require.NoError(t, js.RemoveJob("ping"))
	assert.Len(t, js.GetJobStatus(), 4)

	// unknown names are ignored
	assert.NoError(t, js.RemoveJob("missing"))
}

func TestJobScheduler_StatusRefreshMarksOverdue(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	invoices := services.NewInvoiceService(memory.NewInvoiceStore(), memory.NewPaymentStore(), memory.NewPaymentLinkStore(),
		services.NewKeyedLocker(), clock, services.InvoiceOptions{TaxRate: decimal.Zero, DueDays: 5}, zerolog.Nop())

	created, err := invoices.Create(ctx, services.InvoiceDraft{
		Customer: models.Customer{Name: "Globex"},
		Items: []models.LineItem{
			{Description: "Support", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(250)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.InvoiceStatusPending, created.Status)

	js, err := NewJobScheduler(Services{Invoices: invoices}, testSchedulerConfig(), clock, zerolog.Nop())
	require.NoError(t, err)
	defer js.Stop()

	require.NoError(t, js.runStatusRefresh(ctx))
	unchanged, err := invoices.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPending, unchanged.Status)

	clock.Advance(7 * 24 * time.Hour)
	require.NoError(t, js.runStatusRefresh(ctx))

	overdue, err := invoices.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusOverdue, overdue.Status)
}

func TestMinutes(t *testing.T) {
	assert.Equal(t, 15*time.Minute, minutes(0, 15))
	assert.Equal(t, 5*time.Minute, minutes(5, 15))
}
