// Package memory provides map-backed repositories used by tests and by the
// service when it runs without a database.
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

// InvoiceStore implements repositories.InvoiceRepository
type InvoiceStore struct {
	mu       sync.RWMutex
	invoices map[uuid.UUID]*models.Invoice
	sequence int64
}

var _ repositories.InvoiceRepository = (*InvoiceStore)(nil)

func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{invoices: make(map[uuid.UUID]*models.Invoice)}
}

func (s *InvoiceStore) Create(ctx context.Context, inv *models.Invoice) error {
	if inv == nil {
		return fmt.Errorf("invoice cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.invoices[inv.ID]; exists {
		return fmt.Errorf("invoice %s already exists", inv.ID)
	}
	s.invoices[inv.ID] = inv.Clone()
	return nil
}

func (s *InvoiceStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, common.NewNotFoundError("invoice", id)
	}
	return inv.Clone(), nil
}

func (s *InvoiceStore) Update(ctx context.Context, inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.invoices[inv.ID]
	if !ok {
		return common.NewNotFoundError("invoice", inv.ID)
	}
	updated := inv.Clone()
	// reminder columns are owned by RecordReminder
	updated.ReminderCount = existing.ReminderCount
	updated.LastReminderAt = existing.LastReminderAt
	s.invoices[inv.ID] = updated
	return nil
}

func (s *InvoiceStore) List(ctx context.Context, filter models.InvoiceFilter) ([]*models.Invoice, error) {
	s.mu.RLock()
	var out []*models.Invoice
	for _, inv := range s.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.CustomerEmail != "" && inv.Customer.Email != filter.CustomerEmail {
			continue
		}
		if filter.SubscriptionID != nil && (inv.SubscriptionID == nil || *inv.SubscriptionID != *filter.SubscriptionID) {
			continue
		}
		out = append(out, inv.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *InvoiceStore) ListOpen(ctx context.Context) ([]*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Invoice
	for _, inv := range s.invoices {
		if inv.IsOpen() {
			out = append(out, inv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *InvoiceStore) RecordReminder(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return common.NewNotFoundError("invoice", id)
	}
	inv.ReminderCount++
	inv.LastReminderAt = &at
	return nil
}

func (s *InvoiceStore) NextSequence(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return s.sequence, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
