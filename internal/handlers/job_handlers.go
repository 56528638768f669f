package handlers

import (
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"receivables/internal/common"
	"receivables/internal/jobs/background"
	"receivables/internal/services"
)

// JobStatusProvider reports scheduled job timings
type JobStatusProvider interface {
	GetJobStatus() []background.JobStatus
}

// JobHandlers triggers the periodic jobs on demand
type JobHandlers struct {
	subscriptionService services.SubscriptionService
	invoiceService      services.InvoiceService
	linkService         services.PaymentLinkService
	scheduler           JobStatusProvider
	clock               clockwork.Clock
}

func NewJobHandlers(
	subscriptionService services.SubscriptionService,
	invoiceService services.InvoiceService,
	linkService services.PaymentLinkService,
	scheduler JobStatusProvider,
	clock clockwork.Clock,
) *JobHandlers {
	return &JobHandlers{
		subscriptionService: subscriptionService,
		invoiceService:      invoiceService,
		linkService:         linkService,
		scheduler:           scheduler,
		clock:               clock,
	}
}

// RunBilling handles POST /jobs/billing-run?date=YYYY-MM-DD
func (h *JobHandlers) RunBilling(c echo.Context) error {
	today, err := common.ParseDate(c.QueryParam("date"), "date")
	if err != nil {
		return common.SendError(c, err)
	}
	if today.IsZero() {
		today = h.clock.Now()
	}

	result, err := h.subscriptionService.ProcessAllDue(c.Request().Context(), today)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// RefreshStatuses handles POST /jobs/refresh-statuses
func (h *JobHandlers) RefreshStatuses(c echo.Context) error {
	updated, err := h.invoiceService.RefreshStatuses(c.Request().Context(), h.clock.Now())
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": updated})
}

// ExpireLinks handles POST /jobs/expire-links
func (h *JobHandlers) ExpireLinks(c echo.Context) error {
	expired, err := h.linkService.ExpireStale(c.Request().Context(), h.clock.Now())
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"expired": expired})
}

// ListJobs handles GET /jobs
func (h *JobHandlers) ListJobs(c echo.Context) error {
	jobs := []background.JobStatus{}
	if h.scheduler != nil {
		jobs = h.scheduler.GetJobStatus()
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  jobs,
		"total": len(jobs),
	})
}
