package caching

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"receivables/internal/models"
)

// MemoryConfigStore is the single-process notification policy store.
type MemoryConfigStore struct {
	mu  sync.RWMutex
	cfg *models.NotificationConfig
}

func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{}
}

func (m *MemoryConfigStore) Get(ctx context.Context) (*models.NotificationConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cfg == nil {
		return nil, nil
	}
	c := *m.cfg
	c.Channels = append([]models.Channel(nil), m.cfg.Channels...)
	return &c, nil
}

func (m *MemoryConfigStore) Save(ctx context.Context, cfg *models.NotificationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cfg
	c.Channels = append([]models.Channel(nil), cfg.Channels...)
	m.cfg = &c
	return nil
}

func (m *MemoryConfigStore) Ping(ctx context.Context) error {
	return nil
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryRateLimiter mirrors RedisRateLimiter for a single process.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	windows map[string]*window
}

func NewMemoryRateLimiter(clock clockwork.Clock) *MemoryRateLimiter {
	return &MemoryRateLimiter{clock: clock, windows: make(map[string]*window)}
}

func (m *MemoryRateLimiter) IsRateLimited(ctx context.Context, key string, limit int, period time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(period)}
		m.windows[key] = w
	}
	w.count++
	return w.count > limit, nil
}
