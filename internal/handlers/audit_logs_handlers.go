package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/services"
)

// AuditLogsHandlers handles audit logs related HTTP requests
type AuditLogsHandlers struct {
	auditLogsService services.AuditLogsService
}

// NewAuditLogsHandlers creates a new audit logs handlers instance
func NewAuditLogsHandlers(auditLogsService services.AuditLogsService) *AuditLogsHandlers {
	return &AuditLogsHandlers{auditLogsService: auditLogsService}
}

// ListAuditLogs handles GET /audit-logs?entity_type=&entity_id=&action=
func (h *AuditLogsHandlers) ListAuditLogs(c echo.Context) error {
	filters := &models.AuditLogFilters{}
	if entityType := c.QueryParam("entity_type"); entityType != "" {
		filters.EntityType = &entityType
	}
	if entityID := c.QueryParam("entity_id"); entityID != "" {
		filters.EntityID = &entityID
	}
	if action := c.QueryParam("action"); action != "" {
		filters.Action = &action
	}

	// audit reads allow larger pages than the rest of the API
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if c.QueryParam("offset") != "" && err != nil {
		return common.SendValidationError(c, "offset", "must be a non-negative integer")
	}
	filters.Limit = limit
	filters.Offset = offset

	logs, err := h.auditLogsService.ListAuditLogs(c.Request().Context(), filters)
	if err != nil {
		return common.SendError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   logs,
		"total":  len(logs),
		"limit":  filters.Limit,
		"offset": filters.Offset,
	})
}

// GetInvoiceHistory handles GET /invoices/:id/audit-logs
func (h *AuditLogsHandlers) GetInvoiceHistory(c echo.Context) error {
	invoiceID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}
	limit, offset, err := common.ValidatePaginationParams(c)
	if err != nil {
		return common.SendError(c, err)
	}

	logs, err := h.auditLogsService.GetEntityHistory(c.Request().Context(), "invoice", invoiceID.String(), limit, offset)
	if err != nil {
		return common.SendError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   logs,
		"total":  len(logs),
		"limit":  limit,
		"offset": offset,
	})
}
