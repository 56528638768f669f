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

// OnlinePaymentStore implements repositories.OnlinePaymentRepository
type OnlinePaymentStore struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]models.OnlinePayment
}

var _ repositories.OnlinePaymentRepository = (*OnlinePaymentStore)(nil)

func NewOnlinePaymentStore() *OnlinePaymentStore {
	return &OnlinePaymentStore{payments: make(map[uuid.UUID]models.OnlinePayment)}
}

func (s *OnlinePaymentStore) Create(ctx context.Context, p *models.OnlinePayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.payments[p.ID]; exists {
		return fmt.Errorf("online payment %s already exists", p.ID)
	}
	s.payments[p.ID] = *p
	return nil
}

func (s *OnlinePaymentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.OnlinePayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, common.NewNotFoundError("online payment", id)
	}
	return &p, nil
}

func (s *OnlinePaymentStore) Update(ctx context.Context, p *models.OnlinePayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; !ok {
		return common.NewNotFoundError("online payment", p.ID)
	}
	s.payments[p.ID] = *p
	return nil
}

func (s *OnlinePaymentStore) ListByLink(ctx context.Context, linkID uuid.UUID) ([]*models.OnlinePayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.OnlinePayment
	for _, p := range s.payments {
		if p.LinkID == linkID {
			found := p
			out = append(out, &found)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
