package services

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKeyedLocker_SerializesSameKey(t *testing.T) {
	locker := NewKeyedLocker()
	id := uuid.New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock(id)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, locker.locks)
}

func TestKeyedLocker_IndependentKeys(t *testing.T) {
	locker := NewKeyedLocker()
	unlockA := locker.Lock(uuid.New())
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locker.Lock(uuid.New())
		unlock()
		close(done)
	}()
	<-done
	assert.Len(t, locker.locks, 1)
}
