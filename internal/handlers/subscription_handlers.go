package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/services"
)

// SubscriptionHandlers handles HTTP requests for subscriptions
type SubscriptionHandlers struct {
	subscriptionService services.SubscriptionService
	clock               clockwork.Clock
}

// NewSubscriptionHandlers creates a new subscription handlers instance
func NewSubscriptionHandlers(subscriptionService services.SubscriptionService, clock clockwork.Clock) *SubscriptionHandlers {
	return &SubscriptionHandlers{
		subscriptionService: subscriptionService,
		clock:               clock,
	}
}

// CreateSubscriptionRequest is the body of POST /subscriptions
type CreateSubscriptionRequest struct {
	Customer          customerRequest   `json:"customer"`
	Items             []lineItemRequest `json:"items" validate:"required,min=1,dive"`
	Discount          *discountRequest  `json:"discount" validate:"omitempty"`
	Notes             string            `json:"notes" validate:"max=2000"`
	Frequency         models.Frequency  `json:"frequency" validate:"required,oneof=weekly biweekly monthly quarterly yearly"`
	Anchor            *int              `json:"anchor"`
	StartDate         string            `json:"start_date"`
	EndDate           string            `json:"end_date"`
	SendAutomatically bool              `json:"send_automatically"`
	LinkTTLDays       int               `json:"link_ttl_days" validate:"min=0,max=365"`
}

// CreateSubscription handles POST /subscriptions
func (h *SubscriptionHandlers) CreateSubscription(c echo.Context) error {
	var req CreateSubscriptionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendError(c, err)
	}

	startDate, err := common.ParseDate(req.StartDate, "start_date")
	if err != nil {
		return common.SendError(c, err)
	}
	draft := services.SubscriptionDraft{
		Customer:          req.Customer.toModel(),
		Items:             toLineItems(req.Items),
		Discount:          req.Discount.toModel(),
		Notes:             req.Notes,
		Frequency:         req.Frequency,
		Anchor:            req.Anchor,
		StartDate:         startDate,
		SendAutomatically: req.SendAutomatically,
		LinkTTLDays:       req.LinkTTLDays,
	}
	if req.EndDate != "" {
		endDate, err := common.ParseDate(req.EndDate, "end_date")
		if err != nil {
			return common.SendError(c, err)
		}
		draft.EndDate = &endDate
	}

	subscription, err := h.subscriptionService.Create(c.Request().Context(), draft)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusCreated, subscription)
}

// ListSubscriptions handles GET /subscriptions
func (h *SubscriptionHandlers) ListSubscriptions(c echo.Context) error {
	limit, offset, err := common.ValidatePaginationParams(c)
	if err != nil {
		return common.SendError(c, err)
	}

	subscriptions, err := h.subscriptionService.List(c.Request().Context(), limit, offset)
	if err != nil {
		return common.SendError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   subscriptions,
		"total":  len(subscriptions),
		"limit":  limit,
		"offset": offset,
	})
}

// GetSubscription handles GET /subscriptions/:id
func (h *SubscriptionHandlers) GetSubscription(c echo.Context) error {
	return h.withID(c, h.subscriptionService.Get)
}

// PauseSubscription handles POST /subscriptions/:id/pause
func (h *SubscriptionHandlers) PauseSubscription(c echo.Context) error {
	return h.withID(c, h.subscriptionService.Pause)
}

// ResumeSubscription handles POST /subscriptions/:id/resume
func (h *SubscriptionHandlers) ResumeSubscription(c echo.Context) error {
	return h.withID(c, h.subscriptionService.Resume)
}

// CancelSubscription handles POST /subscriptions/:id/cancel
func (h *SubscriptionHandlers) CancelSubscription(c echo.Context) error {
	return h.withID(c, h.subscriptionService.Cancel)
}

// ProcessSubscription handles POST /subscriptions/:id/process?date=YYYY-MM-DD.
// It emits an invoice when the subscription is due on that date.
func (h *SubscriptionHandlers) ProcessSubscription(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}
	today, err := common.ParseDate(c.QueryParam("date"), "date")
	if err != nil {
		return common.SendError(c, err)
	}
	if today.IsZero() {
		today = h.clock.Now()
	}

	result, err := h.subscriptionService.ProcessDue(c.Request().Context(), id, today)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type subscriptionAction func(ctx context.Context, id uuid.UUID) (*models.Subscription, error)

func (h *SubscriptionHandlers) withID(c echo.Context, action subscriptionAction) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	subscription, err := action(c.Request().Context(), id)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, subscription)
}
