package services

import (
	"bytes"
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/repositories"
)

// NotificationConfigStore persists the global reminder policy.
type NotificationConfigStore interface {
	Get(ctx context.Context) (*models.NotificationConfig, error)
	Save(ctx context.Context, cfg *models.NotificationConfig) error
}

// NotificationService renders customer messages and delivers them over the
// configured channels.
type NotificationService interface {
	BuildReminder(invoice *models.Invoice, overdueDays int, linkURL string) (models.Message, error)
	BuildInvoiceNotice(invoice *models.Invoice, linkURL string) (models.Message, error)
	BuildReceiptNotice(invoice *models.Invoice, payment *models.PaymentRecord, receiptURL string) (models.Message, error)

	Send(ctx context.Context, invoice *models.Invoice, msg models.Message, channels []models.Channel, overdueDays int) (*DeliveryReport, error)
	SendInvoice(ctx context.Context, invoice *models.Invoice, linkURL string) (*DeliveryReport, error)

	GetConfig(ctx context.Context) (*models.NotificationConfig, error)
	UpdateConfig(ctx context.Context, cfg *models.NotificationConfig) (*models.NotificationConfig, error)
	History(ctx context.Context, invoiceID uuid.UUID) ([]models.NotificationHistory, error)
	Inbox(ctx context.Context, recipient string, limit int) ([]*models.Notification, error)
}

// DeliveryReport lists per-channel outcomes of one message.
type DeliveryReport struct {
	Succeeded []models.Channel          `json:"succeeded"`
	Failed    map[models.Channel]string `json:"failed,omitempty"`
}

func (r *DeliveryReport) Delivered() bool {
	return len(r.Succeeded) > 0
}

const (
	reminderSubject = `Payment reminder: invoice {{.Number}} is {{.OverdueDays}} day{{if ne .OverdueDays 1}}s{{end}} overdue`
	reminderBody    = `Hello {{.CustomerName}},

Invoice {{.Number}} was due on {{.DueDate}} and is now {{.OverdueDays}} day{{if ne .OverdueDays 1}}s{{end}} overdue.
Outstanding balance: {{.Currency}} {{.Balance}}
{{if .LinkURL}}
You can pay online here: {{.LinkURL}}
{{end}}
Thank you,
{{.Company}}`

	invoiceSubject = `New invoice {{.Number}} from {{.Company}}`
	invoiceBody    = `Hello {{.CustomerName}},

Invoice {{.Number}} for {{.Currency}} {{.Total}} was issued on {{.IssueDate}} and is due on {{.DueDate}}.
{{if .LinkURL}}
You can pay online here: {{.LinkURL}}
{{end}}
Thank you,
{{.Company}}`

	receiptSubject = `Payment received for invoice {{.Number}}`
	receiptBody    = `Hello {{.CustomerName}},

We received {{.Currency}} {{.Amount}} by {{.Method}} for invoice {{.Number}}.
Remaining balance: {{.Currency}} {{.Balance}}
{{if .ReceiptURL}}
Your receipt: {{.ReceiptURL}}
{{end}}
Thank you,
{{.Company}}`
)

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustMessageTemplate(name, subject, body string) messageTemplate {
	return messageTemplate{
		subject: template.Must(template.New(name + "_subject").Parse(subject)),
		body:    template.Must(template.New(name + "_body").Parse(body)),
	}
}

func (t messageTemplate) render(invoiceID uuid.UUID, kind models.NotificationKind, data any) (models.Message, error) {
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return models.Message{}, errors.Wrap(err, "failed to render subject")
	}
	if err := t.body.Execute(&body, data); err != nil {
		return models.Message{}, errors.Wrap(err, "failed to render body")
	}
	return models.Message{
		InvoiceID: invoiceID,
		Kind:      kind,
		Subject:   subject.String(),
		Body:      strings.TrimSpace(body.String()),
	}, nil
}

type templateData struct {
	Company      string
	Currency     string
	CustomerName string
	Number       string
	IssueDate    string
	DueDate      string
	Total        string
	Balance      string
	OverdueDays  int
	LinkURL      string
	Amount       string
	Method       string
	ReceiptURL   string
}

// NotificationOptions names the sender and the defaults used when no config
// has been stored yet.
type NotificationOptions struct {
	CompanyName string
	Currency    string
	Defaults    models.NotificationConfig
}

type notificationService struct {
	transport   NotificationTransport
	configStore NotificationConfigStore
	repo        repositories.NotificationRepository
	clock       clockwork.Clock
	opts        NotificationOptions
	templates   map[models.NotificationKind]messageTemplate
	logger      zerolog.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(
	transport NotificationTransport,
	configStore NotificationConfigStore,
	repo repositories.NotificationRepository,
	clock clockwork.Clock,
	opts NotificationOptions,
	logger zerolog.Logger,
) NotificationService {
	return &notificationService{
		transport:   transport,
		configStore: configStore,
		repo:        repo,
		clock:       clock,
		opts:        opts,
		templates: map[models.NotificationKind]messageTemplate{
			models.NotificationKindReminder: mustMessageTemplate("reminder", reminderSubject, reminderBody),
			models.NotificationKindInvoice:  mustMessageTemplate("invoice", invoiceSubject, invoiceBody),
			models.NotificationKindReceipt:  mustMessageTemplate("receipt", receiptSubject, receiptBody),
		},
		logger: logger,
	}
}

func (s *notificationService) baseData(invoice *models.Invoice) templateData {
	return templateData{
		Company:      s.opts.CompanyName,
		Currency:     s.opts.Currency,
		CustomerName: invoice.Customer.Name,
		Number:       invoice.Number,
		IssueDate:    invoice.IssueDate.Format(common.DateLayout),
		DueDate:      invoice.DueDate.Format(common.DateLayout),
		Total:        invoice.Total.StringFixed(2),
		Balance:      invoice.OutstandingBalance.StringFixed(2),
	}
}

func (s *notificationService) BuildReminder(invoice *models.Invoice, overdueDays int, linkURL string) (models.Message, error) {
	data := s.baseData(invoice)
	data.OverdueDays = overdueDays
	data.LinkURL = linkURL
	return s.templates[models.NotificationKindReminder].render(invoice.ID, models.NotificationKindReminder, data)
}

func (s *notificationService) BuildInvoiceNotice(invoice *models.Invoice, linkURL string) (models.Message, error) {
	data := s.baseData(invoice)
	data.LinkURL = linkURL
	return s.templates[models.NotificationKindInvoice].render(invoice.ID, models.NotificationKindInvoice, data)
}

func (s *notificationService) BuildReceiptNotice(invoice *models.Invoice, payment *models.PaymentRecord, receiptURL string) (models.Message, error) {
	data := s.baseData(invoice)
	data.Amount = payment.Amount.StringFixed(2)
	data.Method = strings.ReplaceAll(string(payment.Method), "_", " ")
	data.ReceiptURL = receiptURL
	return s.templates[models.NotificationKindReceipt].render(invoice.ID, models.NotificationKindReceipt, data)
}

// RecipientFor resolves the address a channel delivers to. An empty result
// means the customer cannot be reached on that channel.
func RecipientFor(customer models.Customer, channel models.Channel) string {
	switch channel {
	case models.ChannelEmail:
		return customer.Email
	case models.ChannelWhatsApp:
		return customer.Phone
	case models.ChannelSystem:
		if customer.Email != "" {
			return customer.Email
		}
		return customer.Name
	default:
		return ""
	}
}

// Send delivers msg on every channel independently. A history entry is
// written when at least one channel succeeds; the error is non-nil only when
// every channel failed.
func (s *notificationService) Send(ctx context.Context, invoice *models.Invoice, msg models.Message, channels []models.Channel, overdueDays int) (*DeliveryReport, error) {
	report := &DeliveryReport{Failed: map[models.Channel]string{}}
	var errs []error

	for _, channel := range lo.Uniq(channels) {
		recipient := RecipientFor(invoice.Customer, channel)
		if recipient == "" {
			err := common.WrapTransportError(errors.Newf("customer has no %s contact", channel), string(channel))
			report.Failed[channel] = err.Error()
			errs = append(errs, err)
			continue
		}
		if err := s.transport.Send(ctx, channel, recipient, msg); err != nil {
			if !errors.Is(err, common.ErrTransport) {
				err = common.WrapTransportError(err, string(channel))
			}
			s.logger.Warn().Err(err).
				Str("invoice_id", invoice.ID.String()).
				Str("channel", string(channel)).
				Str("kind", string(msg.Kind)).
				Msg("notification channel failed")
			report.Failed[channel] = err.Error()
			errs = append(errs, err)
			continue
		}
		report.Succeeded = append(report.Succeeded, channel)
	}

	if !report.Delivered() {
		if len(errs) == 0 {
			return report, common.WrapTransportError(errors.New("no channels configured"), "notification")
		}
		var combined error
		for _, err := range errs {
			combined = errors.CombineErrors(combined, err)
		}
		return report, combined
	}

	entry := &models.NotificationHistory{
		ID:          uuid.New(),
		InvoiceID:   invoice.ID,
		Kind:        msg.Kind,
		Channels:    report.Succeeded,
		OverdueDays: overdueDays,
		SentAt:      s.clock.Now(),
	}
	if err := s.repo.AppendHistory(ctx, entry); err != nil {
		return report, errors.Wrap(err, "failed to record notification history")
	}
	return report, nil
}

func (s *notificationService) SendInvoice(ctx context.Context, invoice *models.Invoice, linkURL string) (*DeliveryReport, error) {
	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := s.BuildInvoiceNotice(invoice, linkURL)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, invoice, msg, cfg.Channels, 0)
}

func (s *notificationService) GetConfig(ctx context.Context) (*models.NotificationConfig, error) {
	cfg, err := s.configStore.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load notification config")
	}
	if cfg == nil {
		defaults := s.opts.Defaults
		defaults.Channels = append([]models.Channel(nil), s.opts.Defaults.Channels...)
		return &defaults, nil
	}
	return cfg, nil
}

func (s *notificationService) UpdateConfig(ctx context.Context, cfg *models.NotificationConfig) (*models.NotificationConfig, error) {
	if err := ValidateNotificationConfig(cfg); err != nil {
		return nil, err
	}
	cfg.Channels = lo.Uniq(cfg.Channels)
	cfg.UpdatedAt = s.clock.Now()
	if err := s.configStore.Save(ctx, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to save notification config")
	}
	s.logger.Info().
		Bool("enabled", cfg.Enabled).
		Str("cadence", string(cfg.Cadence)).
		Int("min_overdue_days", cfg.MinOverdueDays).
		Msg("notification config updated")
	return cfg, nil
}

// ValidateNotificationConfig rejects unknown cadences and channels.
func ValidateNotificationConfig(cfg *models.NotificationConfig) error {
	if !cfg.Cadence.Valid() {
		return common.NewValidationError("cadence", "must be one of once, daily, weekly")
	}
	if cfg.MinOverdueDays < 0 {
		return common.NewValidationError("min_overdue_days", "cannot be negative")
	}
	if len(cfg.Channels) == 0 {
		return common.NewValidationError("channels", "at least one channel is required")
	}
	for _, ch := range cfg.Channels {
		switch ch {
		case models.ChannelSystem, models.ChannelEmail, models.ChannelWhatsApp:
		default:
			return common.NewValidationError("channels", "unknown channel %q", ch)
		}
	}
	return nil
}

func (s *notificationService) History(ctx context.Context, invoiceID uuid.UUID) ([]models.NotificationHistory, error) {
	return s.repo.ListHistory(ctx, invoiceID)
}

func (s *notificationService) Inbox(ctx context.Context, recipient string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListNotifications(ctx, recipient, limit)
}

// DefaultNotificationConfig converts configured strings into a policy.
func DefaultNotificationConfig(cadence string, minOverdueDays int, channels []string, now time.Time) models.NotificationConfig {
	return models.NotificationConfig{
		Enabled:        true,
		Cadence:        models.Cadence(cadence),
		MinOverdueDays: minOverdueDays,
		Channels:       lo.Map(channels, func(c string, _ int) models.Channel { return models.Channel(c) }),
		UpdatedAt:      now,
	}
}
