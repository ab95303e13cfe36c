package services

import (
	"fmt"
	"sync"
)

// keyedLocks serializes ledger writes per (user, instrument). TryLock is
// non-blocking: a second writer on the same key is rejected immediately
// instead of queueing, which keeps request latency bounded.
type keyedLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{held: make(map[string]bool)}
}

func (k *keyedLocks) TryLock(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.held[key] {
		return false
	}
	k.held[key] = true
	return true
}

func (k *keyedLocks) Unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.held, key)
}

func lockKey(userID, tickerID int64) string {
	return fmt.Sprintf("%d:%d", userID, tickerID)
}
