package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/repositories"
)

// SubscriptionStore implements repositories.SubscriptionRepository
type SubscriptionStore struct {
	mu            sync.RWMutex
	subscriptions map[uuid.UUID]*models.Subscription
}

var _ repositories.SubscriptionRepository = (*SubscriptionStore)(nil)

func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{subscriptions: make(map[uuid.UUID]*models.Subscription)}
}

func (s *SubscriptionStore) Create(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subscriptions[sub.ID]; exists {
		return fmt.Errorf("subscription %s already exists", sub.ID)
	}
	s.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (s *SubscriptionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, common.NewNotFoundError("subscription", id)
	}
	return sub.Clone(), nil
}

func (s *SubscriptionStore) Update(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[sub.ID]; !ok {
		return common.NewNotFoundError("subscription", sub.ID)
	}
	s.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (s *SubscriptionStore) List(ctx context.Context, limit, offset int) ([]*models.Subscription, error) {
	s.mu.RLock()
	out := make([]*models.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, offset), nil
}

func (s *SubscriptionStore) ListDue(ctx context.Context, asOf time.Time) ([]*models.Subscription, error) {
	s.mu.RLock()
	var out []*models.Subscription
	for _, sub := range s.subscriptions {
		if sub.State == models.SubscriptionActive && !sub.NextBillingDate.After(asOf) {
			out = append(out, sub.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].NextBillingDate.Before(out[j].NextBillingDate) })
	return out, nil
}
