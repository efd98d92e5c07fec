package access

import (
	"context"
	"sync"
	"time"
)

// RevocationRegistry records tokens revoked before their natural expiry
type RevocationRegistry interface {
	// Revoke marks tokenID revoked; the entry may be dropped once until has passed.
	// It reports false when tokenID was already revoked, and exactly one of any
	// number of concurrent calls for the same tokenID reports true.
	Revoke(ctx context.Context, tokenID string, until time.Time) (bool, error)
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRegistry is a process-local RevocationRegistry
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	clock   func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]time.Time),
		clock:   time.Now,
		stop:    make(chan struct{}),
	}
}

// Revoke records tokenID as revoked until the given time
func (r *MemoryRegistry) Revoke(ctx context.Context, tokenID string, until time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[tokenID]; ok {
		return false, nil
	}
	r.entries[tokenID] = until
	return true, nil
}

// IsRevoked reports whether tokenID was revoked
func (r *MemoryRegistry) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[tokenID]
	return ok, nil
}

// Len returns the number of retained revocations
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// StartCleanup periodically drops revocations of tokens that have expired anyway
func (r *MemoryRegistry) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.cleanup()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop ends the cleanup goroutine
func (r *MemoryRegistry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

func (r *MemoryRegistry) cleanup() {
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, until := range r.entries {
		if !now.Before(until) {
			delete(r.entries, id)
		}
	}
}
