package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/services"
)

// InvoiceHandlers handles HTTP requests for invoices
type InvoiceHandlers struct {
	invoiceService services.InvoiceService
	renderer       services.ReceiptRenderer
	clock          clockwork.Clock
}

// NewInvoiceHandlers creates a new invoice handlers instance
func NewInvoiceHandlers(invoiceService services.InvoiceService, renderer services.ReceiptRenderer, clock clockwork.Clock) *InvoiceHandlers {
	return &InvoiceHandlers{
		invoiceService: invoiceService,
		renderer:       renderer,
		clock:          clock,
	}
}

type customerRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
}

type lineItemRequest struct {
	Description     string          `json:"description" validate:"required"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type discountRequest struct {
	Type   models.DiscountType `json:"type" validate:"required,oneof=percentage fixed reason"`
	Value  decimal.Decimal     `json:"value"`
	Reason string              `json:"reason"`
}

// CreateInvoiceRequest is the body of POST /invoices
type CreateInvoiceRequest struct {
	Customer  customerRequest   `json:"customer"`
	Items     []lineItemRequest `json:"items" validate:"required,min=1,dive"`
	Discount  *discountRequest  `json:"discount" validate:"omitempty"`
	TaxRate   *decimal.Decimal  `json:"tax_rate"`
	IssueDate string            `json:"issue_date"`
	DueDate   string            `json:"due_date"`
	Notes     string            `json:"notes" validate:"max=2000"`
}

func (r customerRequest) toModel() models.Customer {
	return models.Customer{
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		TaxID:   r.TaxID,
		Address: r.Address,
	}
}

func toLineItems(items []lineItemRequest) []models.LineItem {
	out := make([]models.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, models.LineItem{
			Description:     it.Description,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			DiscountPercent: it.DiscountPercent,
		})
	}
	return out
}

func (r *discountRequest) toModel() *models.Discount {
	if r == nil {
		return nil
	}
	return &models.Discount{Type: r.Type, Value: r.Value, Reason: r.Reason}
}

// CreateInvoice handles POST /invoices
func (h *InvoiceHandlers) CreateInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateInvoiceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendError(c, err)
	}

	issueDate, err := common.ParseDate(req.IssueDate, "issue_date")
	if err != nil {
		return common.SendError(c, err)
	}
	draft := services.InvoiceDraft{
		Customer:  req.Customer.toModel(),
		Items:     toLineItems(req.Items),
		Discount:  req.Discount.toModel(),
		TaxRate:   req.TaxRate,
		IssueDate: issueDate,
		Notes:     req.Notes,
	}
	if req.DueDate != "" {
		dueDate, err := common.ParseDate(req.DueDate, "due_date")
		if err != nil {
			return common.SendError(c, err)
		}
		draft.DueDate = &dueDate
	}

	invoice, err := h.invoiceService.Create(ctx, draft)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusCreated, invoice)
}

// ListInvoices handles GET /invoices
func (h *InvoiceHandlers) ListInvoices(c echo.Context) error {
	ctx := c.Request().Context()

	limit, offset, err := common.ValidatePaginationParams(c)
	if err != nil {
		return common.SendError(c, err)
	}

	filter := models.InvoiceFilter{
		CustomerEmail: c.QueryParam("customer_email"),
		Limit:         limit,
		Offset:        offset,
	}
	if status := c.QueryParam("status"); status != "" {
		switch s := models.InvoiceStatus(status); s {
		case models.InvoiceStatusPending, models.InvoiceStatusPartial, models.InvoiceStatusPaid,
			models.InvoiceStatusOverdue, models.InvoiceStatusCancelled:
			filter.Status = s
		default:
			return common.SendValidationError(c, "status", "is not a known invoice status")
		}
	}
	if raw := c.QueryParam("subscription_id"); raw != "" {
		subID, err := common.ValidateUUID(raw, "subscription_id")
		if err != nil {
			return common.SendError(c, err)
		}
		filter.SubscriptionID = &subID
	}

	invoices, err := h.invoiceService.List(ctx, filter)
	if err != nil {
		return common.SendError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   invoices,
		"total":  len(invoices),
		"limit":  limit,
		"offset": offset,
	})
}

// GetInvoice handles GET /invoices/:id
func (h *InvoiceHandlers) GetInvoice(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	invoice, err := h.invoiceService.Get(c.Request().Context(), id)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, invoice)
}

// CancelInvoice handles POST /invoices/:id/cancel
func (h *InvoiceHandlers) CancelInvoice(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	invoice, err := h.invoiceService.MarkCancelled(c.Request().Context(), id)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, invoice)
}

// GetOverdueDays handles GET /invoices/:id/overdue-days?as_of=YYYY-MM-DD
func (h *InvoiceHandlers) GetOverdueDays(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}
	asOf, err := common.ParseDate(c.QueryParam("as_of"), "as_of")
	if err != nil {
		return common.SendError(c, err)
	}
	if asOf.IsZero() {
		asOf = h.clock.Now()
	}

	invoice, err := h.invoiceService.Get(c.Request().Context(), id)
	if err != nil {
		return common.SendError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"invoice_id":   invoice.ID,
		"as_of":        asOf.Format(common.DateLayout),
		"overdue_days": h.invoiceService.ComputeOverdueDays(invoice, asOf),
	})
}

// DownloadInvoicePDF handles GET /invoices/:id/pdf
func (h *InvoiceHandlers) DownloadInvoicePDF(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	invoice, err := h.invoiceService.Get(c.Request().Context(), id)
	if err != nil {
		return common.SendError(c, err)
	}

	pdf, err := h.renderer.RenderInvoice(invoice)
	if err != nil {
		return common.SendError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", invoiceFilename(invoice)))
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

func invoiceFilename(invoice *models.Invoice) string {
	if invoice.Number != "" {
		return invoice.Number + ".pdf"
	}
	return invoice.ID.String() + ".pdf"
}

// parseIDs reads the two path identifiers used by nested payment routes.
func parseIDs(c echo.Context, second string) (uuid.UUID, uuid.UUID, error) {
	first, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	other, err := common.ValidateUUID(c.Param(second), second)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return first, other, nil
}
