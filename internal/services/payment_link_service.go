package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/repositories"
)

// PaymentLinkService issues payment links and accepts redemptions.
type PaymentLinkService interface {
	Issue(ctx context.Context, invoiceID uuid.UUID, input IssueLinkInput) (*models.PaymentLink, error)
	Get(ctx context.Context, linkID uuid.UUID) (*models.PaymentLink, error)
	GetByToken(ctx context.Context, token string) (*models.PaymentLink, error)
	Redeem(ctx context.Context, linkID uuid.UUID, input RedeemInput) (*models.OnlinePayment, error)
	Cancel(ctx context.Context, linkID uuid.UUID) (*models.PaymentLink, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
	GetOnlinePayment(ctx context.Context, id uuid.UUID) (*models.OnlinePayment, error)
}

// IssueLinkInput configures a new link. A non-positive TTLDays uses the
// configured default and empty AllowedMethods allows every online method.
type IssueLinkInput struct {
	TTLDays        int
	AllowedMethods []models.PaymentMethod
}

type RedeemInput struct {
	Method models.PaymentMethod
	Payer  models.PayerDetails
}

// PaymentLinkOptions holds the link defaults.
type PaymentLinkOptions struct {
	PublicBaseURL  string
	DefaultTTLDays int
}

type paymentLinkService struct {
	invoices   InvoiceService
	linkRepo   repositories.PaymentLinkRepository
	onlineRepo repositories.OnlinePaymentRepository
	tasks      TaskEnqueuer
	locker     *KeyedLocker
	clock      clockwork.Clock
	opts       PaymentLinkOptions
	logger     zerolog.Logger
}

func NewPaymentLinkService(
	invoices InvoiceService,
	linkRepo repositories.PaymentLinkRepository,
	onlineRepo repositories.OnlinePaymentRepository,
	tasks TaskEnqueuer,
	locker *KeyedLocker,
	clock clockwork.Clock,
	opts PaymentLinkOptions,
	logger zerolog.Logger,
) PaymentLinkService {
	if opts.DefaultTTLDays <= 0 {
		opts.DefaultTTLDays = 7
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &paymentLinkService{
		invoices:   invoices,
		linkRepo:   linkRepo,
		onlineRepo: onlineRepo,
		tasks:      tasks,
		locker:     locker,
		clock:      clock,
		opts:       opts,
		logger:     logger,
	}
}

// NewLinkToken returns 32 random bytes, URL-safe encoded.
func NewLinkToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to generate link token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func resolveMethods(methods []models.PaymentMethod) ([]models.PaymentMethod, error) {
	if len(methods) == 0 {
		return append([]models.PaymentMethod(nil), models.OnlinePaymentMethods...), nil
	}
	for _, m := range methods {
		if !lo.Contains(models.OnlinePaymentMethods, m) {
			return nil, common.NewValidationError("allowed_methods", "%q cannot be paid online", m)
		}
	}
	return lo.Uniq(methods), nil
}

// Issue returns the invoice's active link when one is still valid, otherwise
// mints a new one for the current outstanding balance.
func (s *paymentLinkService) Issue(ctx context.Context, invoiceID uuid.UUID, input IssueLinkInput) (*models.PaymentLink, error) {
	methods, err := resolveMethods(input.AllowedMethods)
	if err != nil {
		return nil, err
	}
	ttlDays := input.TTLDays
	if ttlDays <= 0 {
		ttlDays = s.opts.DefaultTTLDays
	}

	link, created, err := s.issue(ctx, invoiceID, ttlDays, methods)
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.invoices.AttachPaymentLink(ctx, invoiceID, link.ID); err != nil {
			s.logger.Error().Err(err).Str("link_id", link.ID.String()).Msg("failed to attach payment link to invoice")
		}
	}
	return link, nil
}

func (s *paymentLinkService) issue(ctx context.Context, invoiceID uuid.UUID, ttlDays int, methods []models.PaymentMethod) (*models.PaymentLink, bool, error) {
	unlock := s.locker.Lock(invoiceID)
	defer unlock()

	invoice, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, false, err
	}
	if !invoice.IsOpen() {
		return nil, false, common.NewInvalidStateError("invoice %s has no outstanding balance to collect", invoice.Number)
	}

	now := s.clock.Now()
	existing, err := s.linkRepo.GetActiveByInvoice(ctx, invoiceID)
	switch {
	case err == nil && !existing.IsExpiredAt(now):
		return existing, false, nil
	case err == nil:
		existing.Status = models.LinkStatusExpired
		if err := s.linkRepo.Update(ctx, existing); err != nil {
			return nil, false, errors.Wrap(err, "failed to expire stale payment link")
		}
	case !errors.Is(err, common.ErrNotFound):
		return nil, false, errors.Wrap(err, "failed to look up active payment link")
	}

	token, err := NewLinkToken()
	if err != nil {
		return nil, false, err
	}
	link := &models.PaymentLink{
		ID:             uuid.New(),
		InvoiceID:      invoiceID,
		Token:          token,
		URL:            s.opts.PublicBaseURL + "/pay/" + token,
		Amount:         invoice.OutstandingBalance,
		AllowedMethods: methods,
		Status:         models.LinkStatusActive,
		CreatedAt:      now,
		ExpiresAt:      now.AddDate(0, 0, ttlDays),
	}
	if err := s.linkRepo.Create(ctx, link); err != nil {
		return nil, false, errors.Wrap(err, "failed to create payment link")
	}

	s.logger.Info().
		Str("link_id", link.ID.String()).
		Str("invoice_id", invoiceID.String()).
		Str("amount", link.Amount.StringFixed(2)).
		Time("expires_at", link.ExpiresAt).
		Msg("payment link issued")
	return link, true, nil
}

// withDerivedStatus reports a lapsed active link as expired without writing.
func (s *paymentLinkService) withDerivedStatus(link *models.PaymentLink) *models.PaymentLink {
	if link.IsExpiredAt(s.clock.Now()) {
		link.Status = models.LinkStatusExpired
	}
	return link
}

func (s *paymentLinkService) Get(ctx context.Context, linkID uuid.UUID) (*models.PaymentLink, error) {
	link, err := s.linkRepo.GetByID(ctx, linkID)
	if err != nil {
		return nil, err
	}
	return s.withDerivedStatus(link), nil
}

func (s *paymentLinkService) GetByToken(ctx context.Context, token string) (*models.PaymentLink, error) {
	link, err := s.linkRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.withDerivedStatus(link), nil
}

// Redeem starts an online payment for the link. Settlement happens
// asynchronously; poll the returned payment for the outcome.
func (s *paymentLinkService) Redeem(ctx context.Context, linkID uuid.UUID, input RedeemInput) (*models.OnlinePayment, error) {
	if strings.TrimSpace(input.Payer.Name) == "" {
		return nil, common.NewValidationError("payer.name", "is required")
	}

	unlock := s.locker.Lock(linkID)
	defer unlock()

	link, err := s.linkRepo.GetByID(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link.Status != models.LinkStatusActive {
		return nil, common.NewInvalidStateError("payment link is %s", link.Status)
	}
	now := s.clock.Now()
	if link.IsExpiredAt(now) {
		link.Status = models.LinkStatusExpired
		if err := s.linkRepo.Update(ctx, link); err != nil {
			s.logger.Error().Err(err).Str("link_id", linkID.String()).Msg("failed to mark payment link expired")
		}
		return nil, common.NewExpiredError("payment link expired at %s", link.ExpiresAt.Format(time.RFC3339))
	}
	if !link.Allows(input.Method) {
		return nil, common.NewMethodNotAllowedError(string(input.Method))
	}

	attempts, err := s.onlineRepo.ListByLink(ctx, linkID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load payment attempts")
	}
	for _, attempt := range attempts {
		if attempt.Status == models.OnlinePaymentProcessing || attempt.Status == models.OnlinePaymentPending {
			return nil, common.NewInvalidStateError("a payment for this link is already processing")
		}
	}

	payment := &models.OnlinePayment{
		ID:        uuid.New(),
		LinkID:    linkID,
		InvoiceID: link.InvoiceID,
		Amount:    link.Amount,
		Method:    input.Method,
		Payer:     input.Payer,
		Status:    models.OnlinePaymentProcessing,
		CreatedAt: now,
	}
	if err := s.onlineRepo.Create(ctx, payment); err != nil {
		return nil, errors.Wrap(err, "failed to create online payment")
	}

	if err := s.tasks.EnqueueSettlement(ctx, payment.ID); err != nil {
		payment.Status = models.OnlinePaymentRejected
		payment.FailureReason = "settlement could not be scheduled"
		payment.ProcessedAt = &now
		if uerr := s.onlineRepo.Update(ctx, payment); uerr != nil {
			s.logger.Error().Err(uerr).Str("online_payment_id", payment.ID.String()).Msg("failed to reject unscheduled payment")
		}
		return nil, errors.Wrap(err, "failed to schedule settlement")
	}

	s.logger.Info().
		Str("online_payment_id", payment.ID.String()).
		Str("link_id", linkID.String()).
		Str("method", string(input.Method)).
		Msg("payment link redeemed")
	return payment, nil
}

func (s *paymentLinkService) Cancel(ctx context.Context, linkID uuid.UUID) (*models.PaymentLink, error) {
	unlock := s.locker.Lock(linkID)
	defer unlock()

	link, err := s.linkRepo.GetByID(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link.Status != models.LinkStatusActive || link.IsExpiredAt(s.clock.Now()) {
		return nil, common.NewInvalidStateError("only active payment links can be cancelled, link is %s", s.withDerivedStatus(link).Status)
	}

	now := s.clock.Now()
	link.Status = models.LinkStatusCancelled
	link.CancelledAt = &now
	if err := s.linkRepo.Update(ctx, link); err != nil {
		return nil, errors.Wrap(err, "failed to cancel payment link")
	}
	s.logger.Info().Str("link_id", linkID.String()).Msg("payment link cancelled")
	return link, nil
}

// ExpireStale persists the expired status of lapsed active links.
func (s *paymentLinkService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.linkRepo.ListActiveExpiredBy(ctx, now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list expired payment links")
	}

	expired := 0
	for _, link := range stale {
		link.Status = models.LinkStatusExpired
		if err := s.linkRepo.Update(ctx, link); err != nil {
			s.logger.Error().Err(err).Str("link_id", link.ID.String()).Msg("failed to expire payment link")
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *paymentLinkService) GetOnlinePayment(ctx context.Context, id uuid.UUID) (*models.OnlinePayment, error) {
	return s.onlineRepo.GetByID(ctx, id)
}
