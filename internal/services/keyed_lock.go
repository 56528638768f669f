package services

import (
	"sync"

	"github.com/google/uuid"
)

// KeyedLocker serializes work per id. Entries are reference counted and
// dropped once no goroutine holds or waits on them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[uuid.UUID]*keyedEntry)}
}

// Lock blocks until id is free and returns the matching unlock func.
func (k *KeyedLocker) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	entry, ok := k.locks[id]
	if !ok {
		entry = &keyedEntry{}
		k.locks[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
