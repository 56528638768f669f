package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/repositories"
)

// NotificationTransport delivers a rendered message on one channel.
type NotificationTransport interface {
	Send(ctx context.Context, channel models.Channel, recipient string, msg models.Message) error
}

// SystemInbox stores messages as in-system notifications.
type SystemInbox struct {
	repo  repositories.NotificationRepository
	clock clockwork.Clock
}

func NewSystemInbox(repo repositories.NotificationRepository, clock clockwork.Clock) *SystemInbox {
	return &SystemInbox{repo: repo, clock: clock}
}

func (t *SystemInbox) Send(ctx context.Context, channel models.Channel, recipient string, msg models.Message) error {
	invoiceID := msg.InvoiceID
	n := &models.Notification{
		ID:        uuid.New(),
		InvoiceID: &invoiceID,
		Recipient: recipient,
		Subject:   msg.Subject,
		Body:      msg.Body,
		CreatedAt: t.clock.Now(),
	}
	if err := t.repo.CreateNotification(ctx, n); err != nil {
		return common.WrapTransportError(err, string(channel))
	}
	return nil
}

// RelayTransport posts messages to an HTTP relay that fans them out to
// email or WhatsApp providers. Bodies are signed with HMAC-SHA256.
type RelayTransport struct {
	client *retryablehttp.Client
	url    string
	secret []byte
}

// RelayPayload is the JSON document sent to the relay
type RelayPayload struct {
	Channel   models.Channel          `json:"channel"`
	Recipient string                  `json:"recipient"`
	InvoiceID uuid.UUID               `json:"invoice_id"`
	Kind      models.NotificationKind `json:"kind"`
	Subject   string                  `json:"subject"`
	Body      string                  `json:"body"`
}

const SignatureHeader = "X-Receivables-Signature"

func NewRelayTransport(url, secret string, retryMax int, logger zerolog.Logger) *RelayTransport {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = relayLogger{logger: logger}
	return &RelayTransport{client: client, url: url, secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (t *RelayTransport) Send(ctx context.Context, channel models.Channel, recipient string, msg models.Message) error {
	body, err := json.Marshal(RelayPayload{
		Channel:   channel,
		Recipient: recipient,
		InvoiceID: msg.InvoiceID,
		Kind:      msg.Kind,
		Subject:   msg.Subject,
		Body:      msg.Body,
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal relay payload")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return common.WrapTransportError(err, string(channel))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(t.secret, body))

	resp, err := t.client.Do(req)
	if err != nil {
		return common.WrapTransportError(err, string(channel))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return common.WrapTransportError(errors.Newf("relay returned status %d", resp.StatusCode), string(channel))
	}
	return nil
}

// relayLogger adapts zerolog to retryablehttp.LeveledLogger.
type relayLogger struct {
	logger zerolog.Logger
}

func (l relayLogger) Error(msg string, kv ...interface{}) { l.logger.Error().Fields(kv).Msg(msg) }
func (l relayLogger) Info(msg string, kv ...interface{})  { l.logger.Debug().Fields(kv).Msg(msg) }
func (l relayLogger) Debug(msg string, kv ...interface{}) { l.logger.Trace().Fields(kv).Msg(msg) }
func (l relayLogger) Warn(msg string, kv ...interface{})  { l.logger.Warn().Fields(kv).Msg(msg) }

// LogTransport only logs messages. Used in development.
type LogTransport struct {
	logger zerolog.Logger
}

func NewLogTransport(logger zerolog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, channel models.Channel, recipient string, msg models.Message) error {
	t.logger.Info().
		Str("channel", string(channel)).
		Str("recipient", recipient).
		Str("invoice_id", msg.InvoiceID.String()).
		Str("subject", msg.Subject).
		Msg("notification sent")
	return nil
}

// RoutingTransport dispatches each channel to its own transport.
type RoutingTransport struct {
	routes map[models.Channel]NotificationTransport
}

func NewRoutingTransport(routes map[models.Channel]NotificationTransport) *RoutingTransport {
	return &RoutingTransport{routes: routes}
}

func (t *RoutingTransport) Send(ctx context.Context, channel models.Channel, recipient string, msg models.Message) error {
	route, ok := t.routes[channel]
	if !ok {
		return common.WrapTransportError(errors.New("no transport configured"), string(channel))
	}
	return route.Send(ctx, channel, recipient, msg)
}
