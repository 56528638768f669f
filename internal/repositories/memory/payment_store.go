package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/repositories"
)

// PaymentStore implements repositories.PaymentRepository
type PaymentStore struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]models.PaymentRecord
}

var _ repositories.PaymentRepository = (*PaymentStore)(nil)

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{payments: make(map[uuid.UUID]models.PaymentRecord)}
}

func (s *PaymentStore) Create(ctx context.Context, p *models.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.payments[p.ID]; exists {
		return fmt.Errorf("payment %s already exists", p.ID)
	}
	if p.OnlinePaymentID != nil {
		for _, existing := range s.payments {
			if existing.OnlinePaymentID != nil && *existing.OnlinePaymentID == *p.OnlinePaymentID {
				return fmt.Errorf("online payment %s already posted", *p.OnlinePaymentID)
			}
		}
	}
	s.payments[p.ID] = *p
	return nil
}

func (s *PaymentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, common.NewNotFoundError("payment", id)
	}
	return &p, nil
}

func (s *PaymentStore) GetByOnlinePaymentID(ctx context.Context, onlinePaymentID uuid.UUID) (*models.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.OnlinePaymentID != nil && *p.OnlinePaymentID == onlinePaymentID {
			found := p
			return &found, nil
		}
	}
	return nil, common.NewNotFoundError("payment for online payment", onlinePaymentID)
}

func (s *PaymentStore) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PaymentRecord
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.Before(out[j].PaidAt) })
	return out, nil
}
