package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receivables/internal/caching"
	"receivables/internal/models"
	"receivables/internal/repositories/memory"
	"receivables/internal/services"
)

func ok(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func serve(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRateLimit_BlocksAfterLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := echo.New()
	e.GET("/pay/:token", ok, RateLimit(caching.NewMemoryRateLimiter(clock), "pay", 2, time.Minute, zerolog.Nop()))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/pay/abc").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/pay/abc").Code)

	rec := serve(e, http.MethodGet, "/pay/abc")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")

	clock.Advance(time.Minute)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/pay/abc").Code)
}

type failingLimiter struct{}

func (failingLimiter) IsRateLimited(ctx context.Context, key string, limit int, period time.Duration) (bool, error) {
	return false, errors.New("redis unavailable")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	e := echo.New()
	e.GET("/pay/:token", ok, RateLimit(failingLimiter{}, "pay", 1, time.Minute, zerolog.Nop()))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/pay/abc").Code)
	}
}

func newAuditFixture(t *testing.T) (*echo.Echo, services.AuditLogsService) {
	t.Helper()
	audit := services.NewAuditLogsService(memory.NewAuditStore(), clockwork.NewFakeClock(), zerolog.Nop())
	e := echo.New()
	g := e.Group("/v1", NewAuditMiddleware(audit, zerolog.Nop()).AuditRequest())
	g.POST("/invoices/:id/cancel", ok)
	g.POST("/payment-links/:id/redeem", func(c echo.Context) error {
		return c.JSON(http.StatusConflict, map[string]string{"error": "already used"})
	})
	g.GET("/invoices/:id", ok)
	g.POST("/webhooks/gateway", ok)
	return e, audit
}

func TestAuditRequest_RecordsSuccessfulWrites(t *testing.T) {
	e, audit := newAuditFixture(t)

	serve(e, http.MethodPost, "/v1/invoices/42/cancel")

	logs, err := audit.ListAuditLogs(context.Background(), &models.AuditLogFilters{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "invoice", logs[0].EntityType)
	assert.Equal(t, "42", logs[0].EntityID)
	assert.Equal(t, models.ActionRequest, logs[0].Action)
	assert.Equal(t, models.AuditSourceHTTP, logs[0].Source)
	assert.Equal(t, "/v1/invoices/:id/cancel", logs[0].Values["path"])
}

func TestAuditRequest_SkipsReadsFailuresAndWebhooks(t *testing.T) {
	e, audit := newAuditFixture(t)

	serve(e, http.MethodGet, "/v1/invoices/42")
	serve(e, http.MethodPost, "/v1/payment-links/7/redeem")
	serve(e, http.MethodPost, "/v1/webhooks/gateway")

	logs, err := audit.ListAuditLogs(context.Background(), &models.AuditLogFilters{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestVersionMiddleware(t *testing.T) {
	vm := NewVersionMiddleware()
	e := echo.New()
	e.Use(vm.APIVersionResolver())
	e.GET("/v1/ping", ok, vm.VersionHeader("v1"))
	e.GET("/health", ok)

	rec := serve(e, http.MethodGet, "/v1/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", rec.Header().Get("X-API-Version"))
	assert.Equal(t, "Current stable API version", rec.Header().Get("X-API-Message"))
	assert.Empty(t, rec.Header().Get("X-API-Deprecated"))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/health").Code)

	rec = serve(e, http.MethodGet, "/v3/ping")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "v1")
}

func TestExtractVersion(t *testing.T) {
	assert.Equal(t, "v1", extractVersion("/v1/invoices"))
	assert.Equal(t, "v12", extractVersion("/v12"))
	assert.Equal(t, "", extractVersion("/health"))
	assert.Equal(t, "", extractVersion("/vendors/1"))
	assert.Equal(t, "", extractVersion("/"))
}
