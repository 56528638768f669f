package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/services"
)

// NotificationHandlers covers overdue reminders and the notification policy
type NotificationHandlers struct {
	reminderService     services.ReminderService
	notificationService services.NotificationService
}

func NewNotificationHandlers(reminderService services.ReminderService, notificationService services.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{
		reminderService:     reminderService,
		notificationService: notificationService,
	}
}

type UpdateNotificationConfigRequest struct {
	Enabled        bool             `json:"enabled"`
	Cadence        models.Cadence   `json:"cadence" validate:"required,oneof=once daily weekly"`
	MinOverdueDays int              `json:"min_overdue_days" validate:"min=0"`
	Channels       []models.Channel `json:"channels" validate:"required,min=1,dive,oneof=system email whatsapp"`
}

// ListOverdue handles GET /reminders/overdue?min_days=N
func (h *NotificationHandlers) ListOverdue(c echo.Context) error {
	ctx := c.Request().Context()

	var minDays int
	if raw := c.QueryParam("min_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return common.SendValidationError(c, "min_days", "must be an integer")
		}
		minDays = n
	} else {
		cfg, err := h.notificationService.GetConfig(ctx)
		if err != nil {
			return common.SendError(c, err)
		}
		minDays = cfg.MinOverdueDays
	}

	overdue, err := h.reminderService.ListOverdue(ctx, minDays)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":     overdue,
		"total":    len(overdue),
		"min_days": minDays,
	})
}

// DispatchReminders handles POST /reminders/dispatch
func (h *NotificationHandlers) DispatchReminders(c echo.Context) error {
	summary, err := h.reminderService.RunOverdueReminders(c.Request().Context())
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": summary.String(),
		"summary": summary,
	})
}

// GetConfig handles GET /notification-config
func (h *NotificationHandlers) GetConfig(c echo.Context) error {
	cfg, err := h.notificationService.GetConfig(c.Request().Context())
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// UpdateConfig handles PUT /notification-config
func (h *NotificationHandlers) UpdateConfig(c echo.Context) error {
	var req UpdateNotificationConfigRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendError(c, err)
	}

	cfg, err := h.notificationService.UpdateConfig(c.Request().Context(), &models.NotificationConfig{
		Enabled:        req.Enabled,
		Cadence:        req.Cadence,
		MinOverdueDays: req.MinOverdueDays,
		Channels:       req.Channels,
	})
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// InvoiceNotifications handles GET /invoices/:id/notifications
func (h *NotificationHandlers) InvoiceNotifications(c echo.Context) error {
	invoiceID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	history, err := h.notificationService.History(c.Request().Context(), invoiceID)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  history,
		"total": len(history),
	})
}

// Inbox handles GET /notifications?recipient=...
func (h *NotificationHandlers) Inbox(c echo.Context) error {
	recipient := c.QueryParam("recipient")
	if recipient == "" {
		return common.SendValidationError(c, "recipient", "is required")
	}
	limit, _, err := common.ValidatePaginationParams(c)
	if err != nil {
		return common.SendError(c, err)
	}

	messages, err := h.notificationService.Inbox(c.Request().Context(), recipient, limit)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  messages,
		"total": len(messages),
	})
}
