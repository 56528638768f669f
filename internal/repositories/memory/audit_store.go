package memory

import (
	"context"
	"sort"
	"sync"

	"receivables/internal/models"
	"receivables/internal/repositories"
)

// AuditStore implements repositories.AuditLogsRepository
type AuditStore struct {
	mu   sync.RWMutex
	logs []*models.AuditLog
}

var _ repositories.AuditLogsRepository = (*AuditStore)(nil)

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Create(ctx context.Context, auditLog *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *auditLog
	s.logs = append(s.logs, &stored)
	return nil
}

func (s *AuditStore) List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	s.mu.RLock()
	var out []*models.AuditLog
	for _, l := range s.logs {
		if filters.EntityType != nil && l.EntityType != *filters.EntityType {
			continue
		}
		if filters.EntityID != nil && l.EntityID != *filters.EntityID {
			continue
		}
		if filters.Action != nil && l.Action != *filters.Action {
			continue
		}
		found := *l
		out = append(out, &found)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filters.Limit, filters.Offset), nil
}
