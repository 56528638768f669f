package handlers

import (
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/services"
)

// GatewaySignatureHeader carries the hex HMAC-SHA256 of the webhook body
const GatewaySignatureHeader = "X-Gateway-Signature"

// WebhookHandlers receives callbacks from the payment gateway
type WebhookHandlers struct {
	linkService   services.PaymentLinkService
	tasks         services.TaskEnqueuer
	webhookSecret string
	logger        zerolog.Logger
}

func NewWebhookHandlers(linkService services.PaymentLinkService, tasks services.TaskEnqueuer, webhookSecret string, logger zerolog.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		linkService:   linkService,
		tasks:         tasks,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// GatewayEvent is the webhook payload
type GatewayEvent struct {
	Event           string `json:"event"`
	OnlinePaymentID string `json:"online_payment_id"`
}

func (h *WebhookHandlers) verifySignature(signature string, body []byte) bool {
	expected := services.Sign([]byte(h.webhookSecret), body)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// GatewayWebhook handles POST /webhooks/gateway. A verified callback
// re-queues settlement of the referenced online payment; settlement itself
// is idempotent.
func (h *WebhookHandlers) GatewayWebhook(c echo.Context) error {
	if h.webhookSecret == "" {
		return c.JSON(http.StatusServiceUnavailable, common.CreateErrorResponse("WEBHOOK_DISABLED", "Gateway webhook is not configured", nil))
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return common.SendClientError(c, "Failed to read request body")
	}

	signature := c.Request().Header.Get(GatewaySignatureHeader)
	if signature == "" {
		return common.SendClientError(c, "Missing gateway signature")
	}
	if !h.verifySignature(signature, body) {
		return c.JSON(http.StatusUnauthorized, common.CreateErrorResponse("INVALID_SIGNATURE", "Invalid webhook signature", nil))
	}

	var event GatewayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return common.SendClientError(c, "Invalid webhook payload")
	}
	id, err := common.ValidateUUID(event.OnlinePaymentID, "online_payment_id")
	if err != nil {
		return common.SendError(c, err)
	}

	ctx := c.Request().Context()
	payment, err := h.linkService.GetOnlinePayment(ctx, id)
	if err != nil {
		return common.SendError(c, err)
	}

	if payment.Status == models.OnlinePaymentPending || payment.Status == models.OnlinePaymentProcessing {
		if err := h.tasks.EnqueueSettlement(ctx, id); err != nil {
			return common.SendError(c, err)
		}
	}

	h.logger.Info().
		Str("event", event.Event).
		Str("online_payment_id", id.String()).
		Str("status", string(payment.Status)).
		Msg("gateway webhook received")

	return c.JSON(http.StatusAccepted, map[string]string{
		"status":            "accepted",
		"online_payment_id": id.String(),
	})
}
