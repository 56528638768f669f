package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/services"
)

// PaymentLinkHandlers serves link issuance and the public payment page
type PaymentLinkHandlers struct {
	linkService services.PaymentLinkService
}

func NewPaymentLinkHandlers(linkService services.PaymentLinkService) *PaymentLinkHandlers {
	return &PaymentLinkHandlers{linkService: linkService}
}

type IssueLinkRequest struct {
	TTLDays        int                    `json:"ttl_days" validate:"min=0,max=365"`
	AllowedMethods []models.PaymentMethod `json:"allowed_methods"`
}

type payerRequest struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	DocumentID string `json:"document_id"`
	Phone      string `json:"phone"`
	CardLast4  string `json:"card_last4" validate:"omitempty,len=4,numeric"`
}

type RedeemLinkRequest struct {
	Method models.PaymentMethod `json:"method" validate:"required"`
	Payer  payerRequest         `json:"payer"`
}

// IssueLink handles POST /invoices/:id/payment-links
func (h *PaymentLinkHandlers) IssueLink(c echo.Context) error {
	invoiceID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	var req IssueLinkRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendError(c, err)
	}

	link, err := h.linkService.Issue(c.Request().Context(), invoiceID, services.IssueLinkInput{
		TTLDays:        req.TTLDays,
		AllowedMethods: req.AllowedMethods,
	})
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusCreated, link)
}

// GetLink handles GET /payment-links/:id
func (h *PaymentLinkHandlers) GetLink(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	link, err := h.linkService.Get(c.Request().Context(), id)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, link)
}

// GetLinkByToken handles GET /pay/:token, the page a customer opens
func (h *PaymentLinkHandlers) GetLinkByToken(c echo.Context) error {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		return common.SendValidationError(c, "token", "is required")
	}

	link, err := h.linkService.GetByToken(c.Request().Context(), token)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, link)
}

// RedeemLink handles POST /payment-links/:id/redeem. Settlement runs in the
// background so the response is 202 with the pending online payment.
func (h *PaymentLinkHandlers) RedeemLink(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	var req RedeemLinkRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendError(c, err)
	}

	payment, err := h.linkService.Redeem(c.Request().Context(), id, services.RedeemInput{
		Method: req.Method,
		Payer: models.PayerDetails{
			Name:       req.Payer.Name,
			Email:      req.Payer.Email,
			DocumentID: req.Payer.DocumentID,
			Phone:      req.Payer.Phone,
			CardLast4:  req.Payer.CardLast4,
		},
	})
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusAccepted, payment)
}

// CancelLink handles POST /payment-links/:id/cancel
func (h *PaymentLinkHandlers) CancelLink(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	link, err := h.linkService.Cancel(c.Request().Context(), id)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, link)
}

// GetOnlinePayment handles GET /online-payments/:id
func (h *PaymentLinkHandlers) GetOnlinePayment(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	payment, err := h.linkService.GetOnlinePayment(c.Request().Context(), id)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, payment)
}
