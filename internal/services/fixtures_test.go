package services

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"receivables/internal/caching"
	"receivables/internal/models"
	"receivables/internal/repositories/memory"
)

// Monday 2025-03-10 09:00 UTC
var fixtureNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustDate(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type sentMessage struct {
	Channel   models.Channel
	Recipient string
	Message   models.Message
}

// recordingTransport captures deliveries and fails the listed channels.
type recordingTransport struct {
	mu      sync.Mutex
	sent    []sentMessage
	failing map[models.Channel]bool
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{failing: map[models.Channel]bool{}}
}

func (t *recordingTransport) Send(ctx context.Context, channel models.Channel, recipient string, msg models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failing[channel] {
		return errors.Newf("%s provider unavailable", channel)
	}
	t.sent = append(t.sent, sentMessage{Channel: channel, Recipient: recipient, Message: msg})
	return nil
}

func (t *recordingTransport) Sent() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage(nil), t.sent...)
}

type receiptTask struct {
	InvoiceID uuid.UUID
	PaymentID uuid.UUID
}

type fakeEnqueuer struct {
	mu          sync.Mutex
	settlements []uuid.UUID
	receipts    []receiptTask
	err         error
}

func (f *fakeEnqueuer) EnqueueSettlement(ctx context.Context, onlinePaymentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.settlements = append(f.settlements, onlinePaymentID)
	return nil
}

func (f *fakeEnqueuer) EnqueueReceipt(ctx context.Context, invoiceID, paymentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.receipts = append(f.receipts, receiptTask{InvoiceID: invoiceID, PaymentID: paymentID})
	return nil
}

type publishedEvent struct {
	Topic   string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Payload: payload})
	return nil
}

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]string, len(p.events))
	for i, e := range p.events {
		topics[i] = e.Topic
	}
	return topics
}

type stubGateway struct {
	result GatewayResult
	err    error
	calls  int
}

func (g *stubGateway) Charge(ctx context.Context, payment *models.OnlinePayment) (GatewayResult, error) {
	g.calls++
	return g.result, g.err
}

type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *memObjectStore) Upload(ctx context.Context, objectName, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[objectName] = data
	return nil
}

func (m *memObjectStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	return "https://files.test/" + objectName, nil
}

func (m *memObjectStore) EnsureBucket(ctx context.Context) error {
	return nil
}

// fixture wires every service over in-memory stores and a fake clock.
type fixture struct {
	ctx   context.Context
	clock *clockwork.FakeClock

	invoiceRepo *memory.InvoiceStore
	paymentRepo *memory.PaymentStore
	subRepo     *memory.SubscriptionStore
	linkRepo    *memory.PaymentLinkStore
	onlineRepo  *memory.OnlinePaymentStore
	notifRepo   *memory.NotificationStore
	configStore *caching.MemoryConfigStore

	transport *recordingTransport
	tasks     *fakeEnqueuer
	publisher *recordingPublisher
	gateway   *stubGateway
	objects   *memObjectStore

	invoices      InvoiceService
	ledger        LedgerService
	receipts      ReceiptService
	notifications NotificationService
	reminders     ReminderService
	links         PaymentLinkService
	settlement    SettlementService
	subscriptions SubscriptionService
}

func newFixture() *fixture {
	f := &fixture{
		ctx:         context.Background(),
		clock:       clockwork.NewFakeClockAt(fixtureNow),
		invoiceRepo: memory.NewInvoiceStore(),
		paymentRepo: memory.NewPaymentStore(),
		subRepo:     memory.NewSubscriptionStore(),
		linkRepo:    memory.NewPaymentLinkStore(),
		onlineRepo:  memory.NewOnlinePaymentStore(),
		notifRepo:   memory.NewNotificationStore(),
		configStore: caching.NewMemoryConfigStore(),
		transport:   newRecordingTransport(),
		tasks:       &fakeEnqueuer{},
		publisher:   &recordingPublisher{},
		gateway:     &stubGateway{result: GatewayResult{Approved: true, Reference: "pay_test"}},
		objects:     &memObjectStore{},
	}

	logger := zerolog.Nop()
	locker := NewKeyedLocker()
	taxRate := dec("0.19")

	f.invoices = NewInvoiceService(f.invoiceRepo, f.paymentRepo, f.linkRepo, locker, f.clock,
		InvoiceOptions{TaxRate: taxRate, DueDays: 30}, logger)
	f.notifications = NewNotificationService(f.transport, f.configStore, f.notifRepo, f.clock, NotificationOptions{
		CompanyName: "Acme Billing",
		Currency:    "COP",
		Defaults: models.NotificationConfig{
			Enabled:        true,
			Cadence:        models.CadenceDaily,
			MinOverdueDays: 1,
			Channels:       []models.Channel{models.ChannelSystem, models.ChannelEmail},
		},
	}, logger)
	f.receipts = NewReceiptService(f.invoiceRepo, f.paymentRepo, NewPDFRenderer("Acme Billing", "COP"),
		f.objects, f.notifications, time.Hour, logger)
	f.ledger = NewLedgerService(f.invoices, f.invoiceRepo, f.paymentRepo, f.receipts, f.tasks, locker, f.clock, logger)
	f.reminders = NewReminderService(f.invoiceRepo, f.linkRepo, f.notifications, f.clock, logger)
	f.links = NewPaymentLinkService(f.invoices, f.linkRepo, f.onlineRepo, f.tasks, locker, f.clock,
		PaymentLinkOptions{PublicBaseURL: "https://pay.test/", DefaultTTLDays: 7}, logger)
	f.settlement = NewSettlementService(f.onlineRepo, f.linkRepo, f.ledger, f.gateway, f.publisher, locker, f.clock, logger)
	f.subscriptions = NewSubscriptionService(f.subRepo, f.invoices, f.links, f.notifications, locker, f.clock, taxRate, logger)
	return f
}

func testCustomer() models.Customer {
	return models.Customer{Name: "Globex S.A.S.", Email: "ap@globex.test", Phone: "+573001112233"}
}

// createInvoice issues an invoice totalling exactly total (zero tax).
func (f *fixture) createInvoice(total string) *models.Invoice {
	zero := decimal.Zero
	inv, err := f.invoices.Create(f.ctx, InvoiceDraft{
		Customer: testCustomer(),
		Items:    []models.LineItem{{Description: "Consulting", Quantity: dec("1"), UnitPrice: dec(total)}},
		TaxRate:  &zero,
	})
	if err != nil {
		panic(err)
	}
	return inv
}

func assertMoney(t assert.TestingT, want string, got decimal.Decimal, msgAndArgs ...interface{}) bool {
	return assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}
