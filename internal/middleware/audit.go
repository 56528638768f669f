package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"receivables/internal/models"
	"receivables/internal/services"
)

// AuditMiddleware records successful write requests in the audit trail
type AuditMiddleware struct {
	auditService services.AuditLogsService
	logger       zerolog.Logger
}

func NewAuditMiddleware(auditService services.AuditLogsService, logger zerolog.Logger) *AuditMiddleware {
	return &AuditMiddleware{
		auditService: auditService,
		logger:       logger,
	}
}

// AuditRequest logs POST, PUT, PATCH and DELETE requests that did not fail.
func (m *AuditMiddleware) AuditRequest() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			if err != nil || !m.shouldLog(c) {
				return err
			}

			entityType, entityID := auditEntity(c)
			data := models.JSONB{
				"method": c.Request().Method,
				"path":   c.Path(),
				"status": c.Response().Status,
				"ip":     c.RealIP(),
			}

			if auditErr := m.auditService.LogActivity(c.Request().Context(), entityType, entityID,
				models.ActionRequest, models.AuditSourceHTTP, data); auditErr != nil {
				// the request already succeeded
				m.logger.Error().Err(auditErr).Str("path", c.Path()).Msg("failed to log audit activity")
			}
			return nil
		}
	}
}

func (m *AuditMiddleware) shouldLog(c echo.Context) bool {
	switch c.Request().Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	if c.Response().Status >= http.StatusBadRequest {
		return false
	}
	return !strings.Contains(c.Path(), "/webhooks/")
}

// auditEntity derives the entity from the route, "/v1/invoices/:id/cancel"
// becomes ("invoice", id).
func auditEntity(c echo.Context) (string, string) {
	segments := strings.Split(strings.Trim(c.Path(), "/"), "/")
	entityType := "request"
	for _, segment := range segments {
		if segment == "" || strings.HasPrefix(segment, ":") || segment == "v1" {
			continue
		}
		entityType = strings.TrimSuffix(strings.ReplaceAll(segment, "-", "_"), "s")
		break
	}
	return entityType, c.Param("id")
}
