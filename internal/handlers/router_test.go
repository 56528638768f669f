package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"receivables/internal/app"
	"receivables/internal/config"
	"receivables/internal/handlers"
	"receivables/internal/models"
	"receivables/internal/services"
)

const webhookSecret = "whsec_test"

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

type APITestSuite struct {
	suite.Suite
	ctx   context.Context
	clock *clockwork.FakeClock
	app   *app.App
	e     *echo.Echo
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) SetupTest() {
	cfg := config.Default()
	cfg.Database.Driver = config.DriverMemory
	cfg.Gateway.ApprovalRate = 1
	cfg.Gateway.LatencyMillis = 0
	cfg.Gateway.WebhookSecret = webhookSecret
	cfg.Server.RequestLogging = false
	cfg.Server.PayRateLimit = 2

	s.ctx = context.Background()
	s.clock = clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	a, err := app.New(s.ctx, cfg, s.clock, zerolog.Nop())
	s.Require().NoError(err)
	s.app = a
	s.e = a.Router(nil)
}

func (s *APITestSuite) TearDownTest() {
	s.app.Close()
}

func (s *APITestSuite) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		s.Require().NoError(err)
	}
	return s.doRaw(method, path, payload, nil)
}

func (s *APITestSuite) doRaw(method, path string, payload []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *APITestSuite) decode(rec *httptest.ResponseRecorder, out interface{}) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func (s *APITestSuite) assertError(rec *httptest.ResponseRecorder, status int, code string) errorBody {
	s.Require().Equal(status, rec.Code, rec.Body.String())
	var body errorBody
	s.decode(rec, &body)
	s.Equal(code, body.Error.Code)
	return body
}

func invoiceBody(unitPrice string) map[string]interface{} {
	return map[string]interface{}{
		"customer": map[string]string{"name": "Globex S.A.S.", "email": "ap@globex.test"},
		"items": []map[string]string{
			{"description": "Consulting", "quantity": "2", "unit_price": unitPrice},
		},
	}
}

func (s *APITestSuite) createInvoice(body map[string]interface{}) *models.Invoice {
	rec := s.do(http.MethodPost, "/v1/invoices", body)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var inv models.Invoice
	s.decode(rec, &inv)
	return &inv
}

func (s *APITestSuite) TestCreateInvoice_AppliesConfiguredTax() {
	inv := s.createInvoice(invoiceBody("500"))

	assert.True(s.T(), decimal.RequireFromString("1000").Equal(inv.Subtotal), inv.Subtotal.String())
	assert.True(s.T(), decimal.RequireFromString("190").Equal(inv.Tax), inv.Tax.String())
	assert.True(s.T(), decimal.RequireFromString("1190").Equal(inv.Total), inv.Total.String())
	assert.Equal(s.T(), models.InvoiceStatusPending, inv.Status)
	assert.Equal(s.T(), "2025-04-09", inv.DueDate.Format("2006-01-02"))

	rec := s.do(http.MethodGet, "/v1/invoices/"+inv.ID.String(), nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	assert.Equal(s.T(), "v1", rec.Header().Get("X-API-Version"))
}

func (s *APITestSuite) TestCreateInvoice_ValidationErrors() {
	body := invoiceBody("500")
	delete(body, "items")
	res := s.assertError(s.do(http.MethodPost, "/v1/invoices", body), http.StatusBadRequest, "VALIDATION_ERROR")
	assert.Contains(s.T(), res.Error.Details, "items")

	body = invoiceBody("500")
	body["customer"] = map[string]string{"name": "Globex", "email": "not-an-email"}
	res = s.assertError(s.do(http.MethodPost, "/v1/invoices", body), http.StatusBadRequest, "VALIDATION_ERROR")
	assert.Contains(s.T(), res.Error.Details, "customer.email")

	body = invoiceBody("500")
	body["due_date"] = "10/03/2025"
	res = s.assertError(s.do(http.MethodPost, "/v1/invoices", body), http.StatusBadRequest, "VALIDATION_ERROR")
	assert.Contains(s.T(), res.Error.Details, "due_date")

	rec := s.doRaw(http.MethodPost, "/v1/invoices", []byte("{not json"), nil)
	s.assertError(rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

func (s *APITestSuite) TestGetInvoice_Errors() {
	s.assertError(s.do(http.MethodGet, "/v1/invoices/not-a-uuid", nil), http.StatusBadRequest, "VALIDATION_ERROR")
	s.assertError(s.do(http.MethodGet, "/v1/invoices/"+uuid.NewString(), nil), http.StatusNotFound, "NOT_FOUND")
}

func (s *APITestSuite) TestListInvoices_FiltersByStatus() {
	paid := s.createInvoice(invoiceBody("100"))
	s.createInvoice(invoiceBody("300"))

	rec := s.do(http.MethodPost, "/v1/invoices/"+paid.ID.String()+"/payments", map[string]string{
		"amount": paid.Total.String(),
		"method": "cash",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var page struct {
		Data  []models.Invoice `json:"data"`
		Total int              `json:"total"`
	}
	rec = s.do(http.MethodGet, "/v1/invoices?status=paid", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &page)
	s.Require().Equal(1, page.Total)
	assert.Equal(s.T(), paid.ID, page.Data[0].ID)

	s.assertError(s.do(http.MethodGet, "/v1/invoices?status=lost", nil), http.StatusBadRequest, "VALIDATION_ERROR")
	s.assertError(s.do(http.MethodGet, "/v1/invoices?limit=500", nil), http.StatusBadRequest, "VALIDATION_ERROR")
}

func (s *APITestSuite) TestPayments_PartialThenOverpayment() {
	inv := s.createInvoice(invoiceBody("500"))
	path := "/v1/invoices/" + inv.ID.String() + "/payments"

	rec := s.do(http.MethodPost, path, map[string]string{"amount": "400", "method": "bank_transfer", "reference": "TRX-1"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var result services.PaymentResult
	s.decode(rec, &result)
	assert.Equal(s.T(), models.InvoiceStatusPartial, result.Invoice.Status)
	assert.True(s.T(), decimal.RequireFromString("790").Equal(result.Invoice.OutstandingBalance))

	body := s.assertError(s.do(http.MethodPost, path, map[string]string{"amount": "800", "method": "cash"}),
		http.StatusUnprocessableEntity, "OVERPAYMENT")
	assert.NotEmpty(s.T(), body.Error.Details["hint"])

	s.assertError(s.do(http.MethodPost, path, map[string]string{"amount": "10"}), http.StatusBadRequest, "VALIDATION_ERROR")

	rec = s.do(http.MethodGet, path, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var list struct {
		Total int `json:"total"`
	}
	s.decode(rec, &list)
	assert.Equal(s.T(), 1, list.Total)
}

func (s *APITestSuite) TestPayments_BatchSettlesInvoice() {
	inv := s.createInvoice(invoiceBody("500"))

	rec := s.do(http.MethodPost, "/v1/invoices/"+inv.ID.String()+"/payments/batch", map[string]interface{}{
		"payments": []map[string]string{
			{"amount": "1000", "method": "bank_transfer"},
			{"amount": "190", "method": "cash", "paid_at": "2025-03-09"},
		},
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var result services.BatchPaymentResult
	s.decode(rec, &result)
	assert.Len(s.T(), result.Payments, 2)
	assert.Equal(s.T(), models.InvoiceStatusPaid, result.Invoice.Status)
	assert.True(s.T(), result.Invoice.OutstandingBalance.IsZero())

	// the ledger queued one receipt per payment
	assert.Equal(s.T(), 2, s.app.MemoryQueue.Len())
}

func (s *APITestSuite) TestCancelInvoice_RejectsFurtherPayments() {
	inv := s.createInvoice(invoiceBody("500"))

	rec := s.do(http.MethodPost, "/v1/invoices/"+inv.ID.String()+"/cancel", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var cancelled models.Invoice
	s.decode(rec, &cancelled)
	assert.Equal(s.T(), models.InvoiceStatusCancelled, cancelled.Status)

	s.assertError(s.do(http.MethodPost, "/v1/invoices/"+inv.ID.String()+"/payments",
		map[string]string{"amount": "10", "method": "cash"}), http.StatusConflict, "INVALID_STATE")
}

func (s *APITestSuite) TestOverdueDaysAndReminders() {
	body := invoiceBody("500")
	body["issue_date"] = "2025-02-01"
	body["due_date"] = "2025-02-10"
	inv := s.createInvoice(body)

	rec := s.do(http.MethodGet, "/v1/invoices/"+inv.ID.String()+"/overdue-days", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var overdue struct {
		OverdueDays int    `json:"overdue_days"`
		AsOf        string `json:"as_of"`
	}
	s.decode(rec, &overdue)
	assert.Equal(s.T(), 28, overdue.OverdueDays)
	assert.Equal(s.T(), "2025-03-10", overdue.AsOf)

	rec = s.do(http.MethodGet, "/v1/invoices/"+inv.ID.String()+"/overdue-days?as_of=2025-02-12", nil)
	s.decode(rec, &overdue)
	assert.Equal(s.T(), 2, overdue.OverdueDays)

	rec = s.do(http.MethodGet, "/v1/reminders/overdue?min_days=30", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var list struct {
		Total int `json:"total"`
	}
	s.decode(rec, &list)
	assert.Equal(s.T(), 0, list.Total)

	rec = s.do(http.MethodGet, "/v1/reminders/overdue?min_days=7", nil)
	s.decode(rec, &list)
	assert.Equal(s.T(), 1, list.Total)

	rec = s.do(http.MethodPost, "/v1/reminders/dispatch", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var dispatch struct {
		Message string                   `json:"message"`
		Summary services.DeliverySummary `json:"summary"`
	}
	s.decode(rec, &dispatch)
	assert.Equal(s.T(), 1, dispatch.Summary.Sent)
	assert.Equal(s.T(), "1 of 1 sent", dispatch.Message)

	// the daily cadence throttles a second run on the same day
	rec = s.do(http.MethodPost, "/v1/reminders/dispatch", nil)
	s.decode(rec, &dispatch)
	assert.Equal(s.T(), 0, dispatch.Summary.Sent)
	assert.Equal(s.T(), 1, dispatch.Summary.Skipped)

	rec = s.do(http.MethodGet, "/v1/invoices/"+inv.ID.String()+"/notifications", nil)
	s.decode(rec, &list)
	assert.Equal(s.T(), 1, list.Total)

	s.assertError(s.do(http.MethodGet, "/v1/reminders/overdue?min_days=x", nil), http.StatusBadRequest, "VALIDATION_ERROR")
}

func (s *APITestSuite) TestNotificationConfig() {
	rec := s.do(http.MethodGet, "/v1/notification-config", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var cfg models.NotificationConfig
	s.decode(rec, &cfg)
	assert.Equal(s.T(), models.CadenceDaily, cfg.Cadence)

	rec = s.do(http.MethodPut, "/v1/notification-config", map[string]interface{}{
		"enabled":          true,
		"cadence":          "weekly",
		"min_overdue_days": 5,
		"channels":         []string{"email", "email", "system"},
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.decode(rec, &cfg)
	assert.Equal(s.T(), models.CadenceWeekly, cfg.Cadence)
	assert.Equal(s.T(), []models.Channel{models.ChannelEmail, models.ChannelSystem}, cfg.Channels)

	s.assertError(s.do(http.MethodPut, "/v1/notification-config", map[string]interface{}{
		"cadence":  "hourly",
		"channels": []string{"email"},
	}), http.StatusBadRequest, "VALIDATION_ERROR")

	s.assertError(s.do(http.MethodPut, "/v1/notification-config", map[string]interface{}{
		"cadence":  "daily",
		"channels": []string{"fax"},
	}), http.StatusBadRequest, "VALIDATION_ERROR")
}

func (s *APITestSuite) TestPaymentLink_RedeemAndSettle() {
	inv := s.createInvoice(invoiceBody("500"))

	rec := s.do(http.MethodPost, "/v1/invoices/"+inv.ID.String()+"/payment-links", map[string]interface{}{"ttl_days": 3})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var link models.PaymentLink
	s.decode(rec, &link)
	assert.Equal(s.T(), models.LinkStatusActive, link.Status)
	assert.True(s.T(), inv.Total.Equal(link.Amount))

	rec = s.do(http.MethodGet, "/v1/pay/"+link.Token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/v1/payment-links/"+link.ID.String()+"/redeem", map[string]interface{}{
		"method": "card",
		"payer":  map[string]string{"name": "Jane Doe", "card_last4": "4242"},
	})
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	var online models.OnlinePayment
	s.decode(rec, &online)
	assert.Equal(s.T(), models.OnlinePaymentProcessing, online.Status)

	// settlement then the receipt it queues
	drained := s.app.MemoryQueue.Drain(s.ctx, s.app.Processor.NewServeMux())
	assert.Equal(s.T(), 2, drained.Processed)
	assert.Equal(s.T(), 0, drained.Failed)

	rec = s.do(http.MethodGet, "/v1/online-payments/"+online.ID.String(), nil)
	s.decode(rec, &online)
	assert.Equal(s.T(), models.OnlinePaymentCompleted, online.Status)

	rec = s.do(http.MethodGet, "/v1/invoices/"+inv.ID.String(), nil)
	var paid models.Invoice
	s.decode(rec, &paid)
	assert.Equal(s.T(), models.InvoiceStatusPaid, paid.Status)

	rec = s.do(http.MethodGet, "/v1/payment-links/"+link.ID.String(), nil)
	s.decode(rec, &link)
	assert.Equal(s.T(), models.LinkStatusUsed, link.Status)

	s.assertError(s.do(http.MethodPost, "/v1/payment-links/"+link.ID.String()+"/redeem", map[string]interface{}{
		"method": "card",
		"payer":  map[string]string{"name": "Jane Doe"},
	}), http.StatusConflict, "INVALID_STATE")
}

func (s *APITestSuite) TestPaymentLink_MethodNotAllowedAndCancel() {
	inv := s.createInvoice(invoiceBody("500"))

	rec := s.do(http.MethodPost, "/v1/invoices/"+inv.ID.String()+"/payment-links", map[string]interface{}{
		"allowed_methods": []string{"card"},
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var link models.PaymentLink
	s.decode(rec, &link)

	s.assertError(s.do(http.MethodPost, "/v1/payment-links/"+link.ID.String()+"/redeem", map[string]interface{}{
		"method": "bank_transfer",
		"payer":  map[string]string{"name": "Jane Doe"},
	}), http.StatusUnprocessableEntity, "METHOD_NOT_ALLOWED")

	s.assertError(s.do(http.MethodPost, "/v1/payment-links/"+link.ID.String()+"/redeem", map[string]interface{}{
		"method": "card",
		"payer":  map[string]string{"name": ""},
	}), http.StatusBadRequest, "VALIDATION_ERROR")

	rec = s.do(http.MethodPost, "/v1/payment-links/"+link.ID.String()+"/cancel", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.decode(rec, &link)
	assert.Equal(s.T(), models.LinkStatusCancelled, link.Status)
}

func (s *APITestSuite) TestPaymentLink_ExpiredLinkIsGone() {
	inv := s.createInvoice(invoiceBody("500"))

	rec := s.do(http.MethodPost, "/v1/invoices/"+inv.ID.String()+"/payment-links", map[string]interface{}{"ttl_days": 1})
	s.Require().Equal(http.StatusCreated, rec.Code)
	var link models.PaymentLink
	s.decode(rec, &link)

	s.clock.Advance(48 * time.Hour)

	s.assertError(s.do(http.MethodPost, "/v1/payment-links/"+link.ID.String()+"/redeem", map[string]interface{}{
		"method": "card",
		"payer":  map[string]string{"name": "Jane Doe"},
	}), http.StatusGone, "EXPIRED")
}

func (s *APITestSuite) TestPayPage_IsRateLimited() {
	path := "/v1/pay/unknown-token"
	for i := 0; i < 2; i++ {
		rec := s.do(http.MethodGet, path, nil)
		assert.Equal(s.T(), http.StatusNotFound, rec.Code)
	}

	rec := s.do(http.MethodGet, path, nil)
	s.assertError(rec, http.StatusTooManyRequests, "RATE_LIMITED")
	assert.Equal(s.T(), "60", rec.Header().Get("Retry-After"))

	s.clock.Advance(time.Minute)
	assert.Equal(s.T(), http.StatusNotFound, s.do(http.MethodGet, path, nil).Code)
}

func (s *APITestSuite) TestSubscriptions_Lifecycle() {
	rec := s.do(http.MethodPost, "/v1/subscriptions", map[string]interface{}{
		"customer":   map[string]string{"name": "Initech", "email": "billing@initech.test"},
		"items":      []map[string]string{{"description": "Hosting", "quantity": "1", "unit_price": "100"}},
		"frequency":  "monthly",
		"start_date": "2025-03-10",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var sub models.Subscription
	s.decode(rec, &sub)
	assert.Equal(s.T(), models.SubscriptionActive, sub.State)
	base := "/v1/subscriptions/" + sub.ID.String()

	rec = s.do(http.MethodPost, base+"/process", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var processed services.ProcessResult
	s.decode(rec, &processed)
	assert.True(s.T(), processed.Emitted)
	s.Require().NotNil(processed.Invoice)
	assert.Equal(s.T(), "2025-04-10", processed.Subscription.NextBillingDate.Format("2006-01-02"))

	rec = s.do(http.MethodPost, base+"/pause", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &sub)
	assert.Equal(s.T(), models.SubscriptionPaused, sub.State)

	s.assertError(s.do(http.MethodPost, base+"/pause", nil), http.StatusConflict, "INVALID_STATE")

	rec = s.do(http.MethodPost, base+"/resume", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, base+"/cancel", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &sub)
	assert.Equal(s.T(), models.SubscriptionCancelled, sub.State)

	rec = s.do(http.MethodGet, "/v1/invoices?subscription_id="+sub.ID.String(), nil)
	var page struct {
		Total int `json:"total"`
	}
	s.decode(rec, &page)
	assert.Equal(s.T(), 1, page.Total)

	s.assertError(s.do(http.MethodPost, "/v1/subscriptions", map[string]interface{}{
		"customer":  map[string]string{"name": "Initech"},
		"items":     []map[string]string{{"description": "Hosting", "quantity": "1", "unit_price": "100"}},
		"frequency": "daily",
	}), http.StatusBadRequest, "VALIDATION_ERROR")
}

func (s *APITestSuite) TestJobs_BillingRunAndStatus() {
	rec := s.do(http.MethodPost, "/v1/subscriptions", map[string]interface{}{
		"customer":   map[string]string{"name": "Initech"},
		"items":      []map[string]string{{"description": "Hosting", "quantity": "1", "unit_price": "100"}},
		"frequency":  "weekly",
		"start_date": "2025-03-10",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/v1/jobs/billing-run?date=2025-03-10", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var result services.BatchResult
	s.decode(rec, &result)
	assert.Equal(s.T(), 1, result.Emitted)

	rec = s.do(http.MethodPost, "/v1/jobs/refresh-statuses", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/v1/jobs/expire-links", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/v1/jobs", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var jobs struct {
		Total int `json:"total"`
	}
	s.decode(rec, &jobs)
	assert.Equal(s.T(), 0, jobs.Total)
}

func (s *APITestSuite) TestGatewayWebhook() {
	inv := s.createInvoice(invoiceBody("500"))
	rec := s.do(http.MethodPost, "/v1/invoices/"+inv.ID.String()+"/payment-links", map[string]interface{}{})
	s.Require().Equal(http.StatusCreated, rec.Code)
	var link models.PaymentLink
	s.decode(rec, &link)

	rec = s.do(http.MethodPost, "/v1/payment-links/"+link.ID.String()+"/redeem", map[string]interface{}{
		"method": "digital_wallet",
		"payer":  map[string]string{"name": "Jane Doe"},
	})
	s.Require().Equal(http.StatusAccepted, rec.Code)
	var online models.OnlinePayment
	s.decode(rec, &online)
	s.Require().Equal(1, s.app.MemoryQueue.Len())

	payload := []byte(`{"event":"payment.authorized","online_payment_id":"` + online.ID.String() + `"}`)

	rec = s.doRaw(http.MethodPost, "/v1/webhooks/gateway", payload, map[string]string{
		handlers.GatewaySignatureHeader: "deadbeef",
	})
	s.assertError(rec, http.StatusUnauthorized, "INVALID_SIGNATURE")

	rec = s.doRaw(http.MethodPost, "/v1/webhooks/gateway", payload, nil)
	s.assertError(rec, http.StatusBadRequest, "CLIENT_ERROR")

	rec = s.doRaw(http.MethodPost, "/v1/webhooks/gateway", payload, map[string]string{
		handlers.GatewaySignatureHeader: services.Sign([]byte(webhookSecret), payload),
	})
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(s.T(), 2, s.app.MemoryQueue.Len())

	// the duplicate settlement task is a no-op
	drained := s.app.MemoryQueue.Drain(s.ctx, s.app.Processor.NewServeMux())
	assert.Equal(s.T(), 0, drained.Failed)

	rec = s.do(http.MethodGet, "/v1/invoices/"+inv.ID.String()+"/payments", nil)
	var payments struct {
		Total int `json:"total"`
	}
	s.decode(rec, &payments)
	assert.Equal(s.T(), 1, payments.Total)
}

func (s *APITestSuite) TestAuditTrailRecordsWrites() {
	inv := s.createInvoice(invoiceBody("500"))
	rec := s.do(http.MethodPost, "/v1/invoices/"+inv.ID.String()+"/cancel", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	// failed writes are not audited
	s.do(http.MethodPost, "/v1/invoices/"+inv.ID.String()+"/cancel", nil)

	rec = s.do(http.MethodGet, "/v1/invoices/"+inv.ID.String()+"/audit-logs", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var history struct {
		Data []models.AuditLog `json:"data"`
	}
	s.decode(rec, &history)
	s.Require().Len(history.Data, 1)
	assert.Equal(s.T(), models.ActionRequest, history.Data[0].Action)
	assert.Equal(s.T(), "/v1/invoices/:id/cancel", history.Data[0].Values["path"])

	rec = s.do(http.MethodGet, "/v1/audit-logs?entity_type=invoice", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var all struct {
		Total int `json:"total"`
	}
	s.decode(rec, &all)
	assert.Equal(s.T(), 2, all.Total)
}

func (s *APITestSuite) TestInvoicePDF() {
	inv := s.createInvoice(invoiceBody("500"))

	rec := s.do(http.MethodGet, "/v1/invoices/"+inv.ID.String()+"/pdf", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	assert.Equal(s.T(), "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(s.T(), rec.Header().Get(echo.HeaderContentDisposition), inv.Number+".pdf")
	assert.True(s.T(), bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func (s *APITestSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/health/ready", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var status handlers.HealthStatus
	s.decode(rec, &status)
	assert.Equal(s.T(), "healthy", status.Status)
	assert.Equal(s.T(), app.Version, status.Version)
}

func TestHealthHandlers_ReadyReportsFailingCheck(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := handlers.NewHealthHandlers(map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return assert.AnError },
	}, "test", clock)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/ready", nil), rec)
	require.NoError(t, h.Ready(c))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "healthy", status.Services["database"])
	assert.Contains(t, status.Services["redis"], "unhealthy")
}

func TestUnsupportedAPIVersion(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = config.DriverMemory
	cfg.Server.RequestLogging = false
	a, err := app.New(context.Background(), cfg, clockwork.NewFakeClock(), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Router(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2/invoices", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unsupported API version")
}
