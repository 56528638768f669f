package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/services"
)

// PaymentHandlers exposes the payment ledger
type PaymentHandlers struct {
	ledgerService services.LedgerService
}

func NewPaymentHandlers(ledgerService services.LedgerService) *PaymentHandlers {
	return &PaymentHandlers{ledgerService: ledgerService}
}

// RecordPaymentRequest is one manual payment against an invoice
type RecordPaymentRequest struct {
	Amount    decimal.Decimal      `json:"amount"`
	Method    models.PaymentMethod `json:"method" validate:"required"`
	Reference string               `json:"reference" validate:"max=255"`
	PaidAt    string               `json:"paid_at"`
}

type RecordBatchRequest struct {
	Payments []RecordPaymentRequest `json:"payments" validate:"required,min=1,dive"`
}

func (r RecordPaymentRequest) toInput(field string) (services.PaymentInput, error) {
	input := services.PaymentInput{
		Amount:    r.Amount,
		Method:    r.Method,
		Reference: r.Reference,
	}
	paidAt, err := common.ParseDate(r.PaidAt, field)
	if err != nil {
		return input, err
	}
	if !paidAt.IsZero() {
		input.PaidAt = &paidAt
	}
	return input, nil
}

// RecordPayment handles POST /invoices/:id/payments
func (h *PaymentHandlers) RecordPayment(c echo.Context) error {
	invoiceID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	var req RecordPaymentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendError(c, err)
	}
	input, err := req.toInput("paid_at")
	if err != nil {
		return common.SendError(c, err)
	}

	result, err := h.ledgerService.RecordPayment(c.Request().Context(), invoiceID, input)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

// RecordBatch handles POST /invoices/:id/payments/batch. The batch is applied
// all or nothing.
func (h *PaymentHandlers) RecordBatch(c echo.Context) error {
	invoiceID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	var req RecordBatchRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendError(c, err)
	}

	inputs := make([]services.PaymentInput, 0, len(req.Payments))
	for _, p := range req.Payments {
		input, err := p.toInput("payments.paid_at")
		if err != nil {
			return common.SendError(c, err)
		}
		inputs = append(inputs, input)
	}

	result, err := h.ledgerService.RecordBatch(c.Request().Context(), invoiceID, inputs)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

// ListPayments handles GET /invoices/:id/payments
func (h *PaymentHandlers) ListPayments(c echo.Context) error {
	invoiceID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	payments, err := h.ledgerService.ListPayments(c.Request().Context(), invoiceID)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  payments,
		"total": len(payments),
	})
}

// SendReceipt handles POST /invoices/:id/payments/:paymentId/receipt
func (h *PaymentHandlers) SendReceipt(c echo.Context) error {
	invoiceID, paymentID, err := parseIDs(c, "paymentId")
	if err != nil {
		return common.SendError(c, err)
	}

	result, err := h.ledgerService.ReconcileReceipt(c.Request().Context(), invoiceID, paymentID)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
