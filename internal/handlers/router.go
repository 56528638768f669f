package handlers

import (
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"receivables/internal/caching"
	"receivables/internal/middleware"
)

// Handlers bundles every handler set mounted by the router
type Handlers struct {
	Invoices      *InvoiceHandlers
	Payments      *PaymentHandlers
	Links         *PaymentLinkHandlers
	Subscriptions *SubscriptionHandlers
	Notifications *NotificationHandlers
	Jobs          *JobHandlers
	Webhooks      *WebhookHandlers
	AuditLogs     *AuditLogsHandlers
	Health        *HealthHandlers
}

// RouterOptions configures the shared middleware stack
type RouterOptions struct {
	Audit          *middleware.AuditMiddleware
	PayPageLimiter caching.RateLimiter
	PayPageLimit   int
	PayPageWindow  time.Duration
	RequestLogging bool
}

// NewRouter builds the echo instance with all routes registered
func NewRouter(h *Handlers, opts RouterOptions, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewRequestValidator()

	e.Use(echoMiddleware.RequestID())
	if opts.RequestLogging {
		e.Use(middleware.RequestLogger(logger))
	}
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	versionMiddleware := middleware.NewVersionMiddleware()
	e.Use(versionMiddleware.APIVersionResolver())

	e.GET("/health", h.Health.Health)
	e.GET("/health/ready", h.Health.Ready)

	v1 := e.Group("/v1", versionMiddleware.VersionHeader("v1"))
	if opts.Audit != nil {
		v1.Use(opts.Audit.AuditRequest())
	}

	// invoices
	v1.POST("/invoices", h.Invoices.CreateInvoice)
	v1.GET("/invoices", h.Invoices.ListInvoices)
	v1.GET("/invoices/:id", h.Invoices.GetInvoice)
	v1.POST("/invoices/:id/cancel", h.Invoices.CancelInvoice)
	v1.GET("/invoices/:id/overdue-days", h.Invoices.GetOverdueDays)
	v1.GET("/invoices/:id/pdf", h.Invoices.DownloadInvoicePDF)
	v1.GET("/invoices/:id/notifications", h.Notifications.InvoiceNotifications)
	v1.GET("/invoices/:id/audit-logs", h.AuditLogs.GetInvoiceHistory)

	// payments
	v1.POST("/invoices/:id/payments", h.Payments.RecordPayment)
	v1.POST("/invoices/:id/payments/batch", h.Payments.RecordBatch)
	v1.GET("/invoices/:id/payments", h.Payments.ListPayments)
	v1.POST("/invoices/:id/payments/:paymentId/receipt", h.Payments.SendReceipt)

	// payment links
	v1.POST("/invoices/:id/payment-links", h.Links.IssueLink)
	v1.GET("/payment-links/:id", h.Links.GetLink)
	v1.POST("/payment-links/:id/redeem", h.Links.RedeemLink)
	v1.POST("/payment-links/:id/cancel", h.Links.CancelLink)
	v1.GET("/online-payments/:id", h.Links.GetOnlinePayment)

	payPage := []echo.MiddlewareFunc{}
	if opts.PayPageLimiter != nil && opts.PayPageLimit > 0 {
		payPage = append(payPage, middleware.RateLimit(opts.PayPageLimiter, "pay", opts.PayPageLimit, opts.PayPageWindow, logger))
	}
	v1.GET("/pay/:token", h.Links.GetLinkByToken, payPage...)

	// subscriptions
	v1.POST("/subscriptions", h.Subscriptions.CreateSubscription)
	v1.GET("/subscriptions", h.Subscriptions.ListSubscriptions)
	v1.GET("/subscriptions/:id", h.Subscriptions.GetSubscription)
	v1.POST("/subscriptions/:id/pause", h.Subscriptions.PauseSubscription)
	v1.POST("/subscriptions/:id/resume", h.Subscriptions.ResumeSubscription)
	v1.POST("/subscriptions/:id/cancel", h.Subscriptions.CancelSubscription)
	v1.POST("/subscriptions/:id/process", h.Subscriptions.ProcessSubscription)

	// reminders and notifications
	v1.GET("/reminders/overdue", h.Notifications.ListOverdue)
	v1.POST("/reminders/dispatch", h.Notifications.DispatchReminders)
	v1.GET("/notification-config", h.Notifications.GetConfig)
	v1.PUT("/notification-config", h.Notifications.UpdateConfig)
	v1.GET("/notifications", h.Notifications.Inbox)

	// jobs
	v1.GET("/jobs", h.Jobs.ListJobs)
	v1.POST("/jobs/billing-run", h.Jobs.RunBilling)
	v1.POST("/jobs/refresh-statuses", h.Jobs.RefreshStatuses)
	v1.POST("/jobs/expire-links", h.Jobs.ExpireLinks)

	v1.GET("/audit-logs", h.AuditLogs.ListAuditLogs)
	v1.POST("/webhooks/gateway", h.Webhooks.GatewayWebhook)

	return e
}
