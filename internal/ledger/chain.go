package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

// ErrIndexConflict is returned by a Store when the block index is already committed
var ErrIndexConflict = errors.New("ledger: block index already stored")

// Store persists blocks append-only, one record per block, ordered by index
type Store interface {
	Load(ctx context.Context) ([]Block, error)
	Append(ctx context.Context, block Block) error
}

// Predicate selects blocks during a scan
type Predicate func(Block) bool

// ScanOrder controls the direction of FindByPredicate
type ScanOrder int

const (
	// EarliestFirst scans in insertion order
	EarliestFirst ScanOrder = iota
	// LatestFirst scans from the tail back to genesis
	LatestFirst
)

// Chain is the process-wide append-only ledger.
// Append is serialized by mu; readers share the read lock and only ever see fully linked blocks.
type Chain struct {
	mu     sync.RWMutex
	blocks []Block
	store  Store
	clock  func() time.Time
	logger *logger.Logger
}

// Option configures a Chain
type Option func(*Chain)

// WithClock overrides the time source used to stamp appended blocks
func WithClock(clock func() time.Time) Option {
	return func(c *Chain) {
		c.clock = clock
	}
}

// WithLogger sets the logger used for chain events
func WithLogger(log *logger.Logger) Option {
	return func(c *Chain) {
		c.logger = log
	}
}

// New creates an in-memory chain holding only the genesis block
func New(opts ...Option) *Chain {
	c := &Chain{
		blocks: []Block{Genesis()},
		clock:  time.Now,
		logger: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open loads a persisted chain from store, writing the genesis block to an empty store.
// A loaded chain that fails verification is returned as an integrity violation, never repaired.
func Open(ctx context.Context, store Store, opts ...Option) (*Chain, error) {
	c := New(opts...)
	c.store = store

	blocks, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	if len(blocks) == 0 {
		if err := store.Append(ctx, c.blocks[0].Clone()); err != nil {
			return nil, fmt.Errorf("failed to persist genesis block: %w", err)
		}
		c.logger.WithComponent("ledger").Info("Initialised empty ledger with genesis block")
		return c, nil
	}

	c.blocks = make([]Block, len(blocks))
	for i, b := range blocks {
		c.blocks[i] = b.Clone()
	}
	report := c.Verify()
	if !report.Valid {
		first, _ := report.FirstViolation()
		c.logger.IntegrityViolation(ctx, first.Index, string(first.Reason), len(report.Violations))
		return nil, report.Err()
	}

	c.logger.WithComponent("ledger").WithField("length", len(blocks)).Info("Loaded ledger from store")
	return c, nil
}

// Append commits payload as a new block linked to the current tail and returns a copy of it.
// Either the block is persisted and published, or the chain is left unchanged.
func (c *Chain) Append(ctx context.Context, payload types.Record) (Block, error) {
	if payload.Kind == types.RecordKindGenesis {
		return Block{}, types.NewValidationError(types.ErrCodeInvalidInput, "genesis records cannot be appended", nil)
	}
	if err := payload.Validate(); err != nil {
		return Block{}, err
	}
	record := payload.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	tail := c.blocks[len(c.blocks)-1]
	timestamp := c.clock()
	if timestamp.Before(tail.Timestamp) {
		timestamp = tail.Timestamp
	}

	block, err := NewBlock(tail.Index+1, timestamp, record, tail.Hash)
	if err != nil {
		return Block{}, err
	}
	if block.Index != uint64(len(c.blocks)) {
		return Block{}, types.NewConcurrentAppendError(block.Index, nil)
	}

	if c.store != nil {
		if err := c.store.Append(ctx, block.Clone()); err != nil {
			if errors.Is(err, ErrIndexConflict) {
				c.logger.Security(ctx, "ledger_index_conflict", map[string]interface{}{"index": block.Index})
				return Block{}, types.NewConcurrentAppendError(block.Index, err)
			}
			return Block{}, types.NewInternalError(types.ErrCodeInternalError, "failed to persist block", err)
		}
	}

	c.blocks = append(c.blocks, block)
	return block.Clone(), nil
}

// FindByPredicate returns the first block satisfying pred in the given order.
// The boolean is false when nothing matches; that is an ordinary outcome, not an error.
func (c *Chain) FindByPredicate(pred Predicate, order ScanOrder) (Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.blocks)
	for i := 0; i < n; i++ {
		idx := i
		if order == LatestFirst {
			idx = n - 1 - i
		}
		candidate := c.blocks[idx].Clone()
		if pred(candidate) {
			return candidate, true
		}
	}
	return Block{}, false
}

// FindAll returns every block satisfying pred, in insertion order
func (c *Chain) FindAll(pred Predicate) []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []Block
	for _, b := range c.blocks {
		candidate := b.Clone()
		if pred(candidate) {
			matches = append(matches, candidate)
		}
	}
	return matches
}

// FindByRecordID returns the earliest block whose record carries id
func (c *Chain) FindByRecordID(id string) (Block, bool) {
	if id == "" {
		return Block{}, false
	}
	return c.FindByPredicate(func(b Block) bool {
		return b.Payload.RecordID() == id
	}, EarliestFirst)
}

// GetAll returns a snapshot of all blocks in insertion order
func (c *Chain) GetAll() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Block, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = b.Clone()
	}
	return out
}

// Len returns the number of blocks including genesis
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Tail returns a copy of the most recent block
func (c *Chain) Tail() Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1].Clone()
}

// Verify walks the chain from genesis and reports every violation found
func (c *Chain) Verify() IntegrityReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return VerifyBlocks(c.blocks)
}
