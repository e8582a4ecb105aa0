package flowlock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStriped_WithSerializesConcurrentCallersOnSameKey(t *testing.T) {
	locks := New()

	var mu sync.Mutex
	inCriticalSection := false
	overlapped := false

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locks.With("flow-1", func() error {
				mu.Lock()
				if inCriticalSection {
					overlapped = true
				}
				inCriticalSection = true
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inCriticalSection = false
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.False(t, overlapped, "two goroutines locking the same flowId should never run the critical section concurrently")
}

func TestStriped_With_PropagatesFnError(t *testing.T) {
	locks := New()
	err := locks.With("flow-1", func() error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
}

func TestStriped_DifferentKeysDoNotBlockEachOther(t *testing.T) {
	locks := New()

	locks.Lock("flow-1")
	defer locks.Unlock("flow-1")

	done := make(chan struct{})
	go func() {
		locks.Lock("flow-2")
		locks.Unlock("flow-2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking a different flowId should not block on flow-1's stripe unless hashes collide")
	}
}
