package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/repositories"
)

// PaymentLinkStore implements repositories.PaymentLinkRepository
type PaymentLinkStore struct {
	mu    sync.RWMutex
	links map[uuid.UUID]*models.PaymentLink
}

var _ repositories.PaymentLinkRepository = (*PaymentLinkStore)(nil)

func NewPaymentLinkStore() *PaymentLinkStore {
	return &PaymentLinkStore{links: make(map[uuid.UUID]*models.PaymentLink)}
}

func (s *PaymentLinkStore) Create(ctx context.Context, link *models.PaymentLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.links {
		if existing.Token == link.Token {
			return fmt.Errorf("payment link token already in use")
		}
		if link.Status == models.LinkStatusActive && existing.InvoiceID == link.InvoiceID && existing.Status == models.LinkStatusActive {
			return fmt.Errorf("invoice %s already has an active payment link", link.InvoiceID)
		}
	}
	s.links[link.ID] = link.Clone()
	return nil
}

func (s *PaymentLinkStore) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[id]
	if !ok {
		return nil, common.NewNotFoundError("payment link", id)
	}
	return link.Clone(), nil
}

func (s *PaymentLinkStore) GetByToken(ctx context.Context, token string) (*models.PaymentLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, link := range s.links {
		if link.Token == token {
			return link.Clone(), nil
		}
	}
	return nil, common.NewNotFoundError("payment link", "for token")
}

func (s *PaymentLinkStore) GetActiveByInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.PaymentLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, link := range s.links {
		if link.InvoiceID == invoiceID && link.Status == models.LinkStatusActive {
			return link.Clone(), nil
		}
	}
	return nil, common.NewNotFoundError("active payment link for invoice", invoiceID)
}

func (s *PaymentLinkStore) Update(ctx context.Context, link *models.PaymentLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link.ID]; !ok {
		return common.NewNotFoundError("payment link", link.ID)
	}
	s.links[link.ID] = link.Clone()
	return nil
}

func (s *PaymentLinkStore) ListActiveExpiredBy(ctx context.Context, asOf time.Time) ([]*models.PaymentLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PaymentLink
	for _, link := range s.links {
		if link.IsExpiredAt(asOf) {
			out = append(out, link.Clone())
		}
	}
	return out, nil
}
