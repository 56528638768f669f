package app

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"receivables/internal/caching"
	"receivables/internal/config"
	"receivables/internal/models"
	"receivables/internal/repositories"
	"receivables/internal/repositories/memory"
	"receivables/internal/services"
)

// Stores groups the persistence ports of every service
type Stores struct {
	Invoices       repositories.InvoiceRepository
	Payments       repositories.PaymentRepository
	Subscriptions  repositories.SubscriptionRepository
	Links          repositories.PaymentLinkRepository
	OnlinePayments repositories.OnlinePaymentRepository
	Notifications  repositories.NotificationRepository
	AuditLogs      repositories.AuditLogsRepository
	Config         services.NotificationConfigStore
}

// MemoryStores keeps every entity in process
func MemoryStores() *Stores {
	return &Stores{
		Invoices:       memory.NewInvoiceStore(),
		Payments:       memory.NewPaymentStore(),
		Subscriptions:  memory.NewSubscriptionStore(),
		Links:          memory.NewPaymentLinkStore(),
		OnlinePayments: memory.NewOnlinePaymentStore(),
		Notifications:  memory.NewNotificationStore(),
		AuditLogs:      memory.NewAuditStore(),
		Config:         caching.NewMemoryConfigStore(),
	}
}

// PostgresStores backs every entity with Postgres; the notification policy
// lives in configStore.
func PostgresStores(db repositories.DBTX, configStore services.NotificationConfigStore) *Stores {
	return &Stores{
		Invoices:       repositories.NewInvoiceRepo(db),
		Payments:       repositories.NewPaymentRepo(db),
		Subscriptions:  repositories.NewSubscriptionRepo(db),
		Links:          repositories.NewPaymentLinkRepo(db),
		OnlinePayments: repositories.NewOnlinePaymentRepo(db),
		Notifications:  repositories.NewNotificationRepo(db),
		AuditLogs:      repositories.NewAuditLogsRepo(db),
		Config:         configStore,
	}
}

// Externals are the side-effecting ports: delivery, storage, gateway and
// background work.
type Externals struct {
	Transport services.NotificationTransport
	Objects   services.ObjectStore
	Gateway   services.PaymentGateway
	Tasks     services.TaskEnqueuer
	Publisher services.EventPublisher
}

// Services is the wired service graph
type Services struct {
	Renderer      services.ReceiptRenderer
	Invoices      services.InvoiceService
	Ledger        services.LedgerService
	Receipts      services.ReceiptService
	Notifications services.NotificationService
	Reminders     services.ReminderService
	Links         services.PaymentLinkService
	Settlement    services.SettlementService
	Subscriptions services.SubscriptionService
	AuditLogs     services.AuditLogsService
}

// NewServices wires the service graph. One keyed locker is shared so that
// ledger, links and settlement serialize on the same invoice.
func NewServices(cfg *config.Config, stores *Stores, ext *Externals, clock clockwork.Clock, logger zerolog.Logger) *Services {
	component := func(name string) zerolog.Logger {
		return logger.With().Str("component", name).Logger()
	}

	locker := services.NewKeyedLocker()
	taxRate := cfg.TaxRate()
	s := &Services{
		Renderer: services.NewPDFRenderer(cfg.Billing.CompanyName, cfg.Billing.Currency),
	}

	s.Invoices = services.NewInvoiceService(stores.Invoices, stores.Payments, stores.Links, locker, clock,
		services.InvoiceOptions{TaxRate: taxRate, DueDays: cfg.Billing.DueDays}, component("invoices"))

	s.Notifications = services.NewNotificationService(ext.Transport, stores.Config, stores.Notifications, clock,
		services.NotificationOptions{
			CompanyName: cfg.Billing.CompanyName,
			Currency:    cfg.Billing.Currency,
			Defaults: services.DefaultNotificationConfig(cfg.Notifications.Cadence, cfg.Notifications.MinOverdueDays,
				cfg.Notifications.Channels, clock.Now()),
		}, component("notifications"))

	presign := time.Duration(cfg.Minio.PresignExpiryMinutes) * time.Minute
	s.Receipts = services.NewReceiptService(stores.Invoices, stores.Payments, s.Renderer, ext.Objects,
		s.Notifications, presign, component("receipts"))

	s.Ledger = services.NewLedgerService(s.Invoices, stores.Invoices, stores.Payments, s.Receipts, ext.Tasks,
		locker, clock, component("ledger"))

	s.Reminders = services.NewReminderService(stores.Invoices, stores.Links, s.Notifications, clock, component("reminders"))

	s.Links = services.NewPaymentLinkService(s.Invoices, stores.Links, stores.OnlinePayments, ext.Tasks, locker, clock,
		services.PaymentLinkOptions{
			PublicBaseURL:  cfg.Server.PublicBaseURL,
			DefaultTTLDays: cfg.Billing.LinkTTLDays,
		}, component("payment_links"))

	s.Settlement = services.NewSettlementService(stores.OnlinePayments, stores.Links, s.Ledger, ext.Gateway,
		ext.Publisher, locker, clock, component("settlement"))

	s.Subscriptions = services.NewSubscriptionService(stores.Subscriptions, s.Invoices, s.Links, s.Notifications,
		locker, clock, taxRate, component("subscriptions"))

	s.AuditLogs = services.NewAuditLogsService(stores.AuditLogs, clock, component("audit"))
	return s
}

// NewTransport routes the system channel to the in-app inbox and the
// customer-facing channels to the relay, or to the log when no relay is set.
func NewTransport(cfg config.NotificationsConfig, inbox repositories.NotificationRepository, clock clockwork.Clock, logger zerolog.Logger) services.NotificationTransport {
	var external services.NotificationTransport = services.NewLogTransport(logger)
	if cfg.RelayURL != "" {
		external = services.NewRelayTransport(cfg.RelayURL, cfg.RelaySecret, cfg.RelayRetryMax, logger)
	}
	return services.NewRoutingTransport(map[models.Channel]services.NotificationTransport{
		models.ChannelSystem:   services.NewSystemInbox(inbox, clock),
		models.ChannelEmail:    external,
		models.ChannelWhatsApp: external,
	})
}

// NewGateway builds the simulated card processor from config
func NewGateway(cfg config.GatewayConfig, clock clockwork.Clock) services.PaymentGateway {
	return services.NewSimulatedGateway(cfg.ApprovalRate, time.Duration(cfg.LatencyMillis)*time.Millisecond, clock)
}
