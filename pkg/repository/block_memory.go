package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/SooryaCodes/medchainx-sub000/internal/ledger"
)

// MemoryBlockStore keeps blocks in process memory
type MemoryBlockStore struct {
	mu     sync.RWMutex
	blocks []ledger.Block
}

// NewMemoryBlockStore creates an empty in-memory store
func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{}
}

// Load returns copies of all stored blocks in index order
func (s *MemoryBlockStore) Load(ctx context.Context) ([]ledger.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Block, len(s.blocks))
	for i, b := range s.blocks {
		out[i] = b.Clone()
	}
	return out, nil
}

// Append stores block if it extends the stored sequence by exactly one
func (s *MemoryBlockStore) Append(ctx context.Context, block ledger.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if block.Index != uint64(len(s.blocks)) {
		return fmt.Errorf("append block %d at height %d: %w", block.Index, len(s.blocks), ledger.ErrIndexConflict)
	}
	s.blocks = append(s.blocks, block.Clone())
	return nil
}

// Close is a no-op
func (s *MemoryBlockStore) Close() error {
	return nil
}
