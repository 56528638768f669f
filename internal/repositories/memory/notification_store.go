package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"receivables/internal/models"
	"receivables/internal/repositories"
)

// NotificationStore implements repositories.NotificationRepository
type NotificationStore struct {
	mu            sync.RWMutex
	notifications []*models.Notification
	history       map[uuid.UUID][]models.NotificationHistory
}

var _ repositories.NotificationRepository = (*NotificationStore)(nil)

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{history: make(map[uuid.UUID][]models.NotificationHistory)}
}

func (s *NotificationStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *n
	s.notifications = append(s.notifications, &stored)
	return nil
}

func (s *NotificationStore) ListNotifications(ctx context.Context, recipient string, limit int) ([]*models.Notification, error) {
	s.mu.RLock()
	var out []*models.Notification
	for _, n := range s.notifications {
		if n.Recipient == recipient {
			found := *n
			out = append(out, &found)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, 0), nil
}

func (s *NotificationStore) AppendHistory(ctx context.Context, h *models.NotificationHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := *h
	entry.Channels = append([]models.Channel(nil), h.Channels...)
	s.history[h.InvoiceID] = append(s.history[h.InvoiceID], entry)
	return nil
}

func (s *NotificationStore) ListHistory(ctx context.Context, invoiceID uuid.UUID) ([]models.NotificationHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.NotificationHistory(nil), s.history[invoiceID]...), nil
}
