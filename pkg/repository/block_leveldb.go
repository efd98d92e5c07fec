package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/SooryaCodes/medchainx-sub000/internal/ledger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/encryption"
	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

// heightKey is the visible tail pointer: the index of the last committed block
const heightKey = "height_latest"

// levelDBBlock is the stored form; the payload is kept as (optionally sealed) canonical bytes
type levelDBBlock struct {
	Index        uint64    `json:"index"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      []byte    `json:"payload"`
	PreviousHash string    `json:"previousHash"`
	Hash         string    `json:"hash"`
}

// LevelDBBlockStore persists blocks in a LevelDB directory.
// A block becomes visible only after the tail pointer is advanced past it.
type LevelDBBlockStore struct {
	mu        sync.Mutex
	db        *leveldb.DB
	sealer    encryption.Sealer
	logger    *logger.Logger
	writeOpts *opt.WriteOptions
}

// OpenLevelDBBlockStore opens (or creates) a LevelDB store at path
func OpenLevelDBBlockStore(path string, sealer encryption.Sealer, log *logger.Logger) (*LevelDBBlockStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	log.WithComponent("repository").WithField("path", path).Info("LevelDB block store opened")
	return NewLevelDBBlockStore(db, sealer, log), nil
}

// NewLevelDBBlockStore wraps an open LevelDB handle
func NewLevelDBBlockStore(db *leveldb.DB, sealer encryption.Sealer, log *logger.Logger) *LevelDBBlockStore {
	return &LevelDBBlockStore{
		db:        db,
		sealer:    sealer,
		logger:    log,
		writeOpts: &opt.WriteOptions{Sync: true},
	}
}

func blockKey(index uint64) []byte {
	return []byte(fmt.Sprintf("block_%020d", index))
}

// height returns the number of visible blocks
func (s *LevelDBBlockStore) height() (uint64, error) {
	raw, err := s.db.Get([]byte(heightKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read tail pointer: %w", err)
	}
	last, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt tail pointer %q: %w", raw, err)
	}
	return last + 1, nil
}

// Load reads blocks 0..tail; anything written past the tail pointer is ignored
func (s *LevelDBBlockStore) Load(ctx context.Context) ([]ledger.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.height()
	if err != nil {
		return nil, err
	}

	blocks := make([]ledger.Block, 0, n)
	for i := uint64(0); i < n; i++ {
		raw, err := s.db.Get(blockKey(i), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read block %d: %w", i, err)
		}

		var stored levelDBBlock
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, fmt.Errorf("failed to decode block %d: %w", i, err)
		}

		record, err := openPayload(s.sealer, stored.Payload)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}

		blocks = append(blocks, ledger.Block{
			Index:        stored.Index,
			Timestamp:    stored.Timestamp.UTC(),
			Payload:      record,
			PreviousHash: stored.PreviousHash,
			Hash:         stored.Hash,
		})
	}
	return blocks, nil
}

// Append writes the block, then advances the tail pointer. Both writes are synced.
func (s *LevelDBBlockStore) Append(ctx context.Context, block ledger.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.height()
	if err != nil {
		return err
	}
	if block.Index != n {
		return fmt.Errorf("append block %d at height %d: %w", block.Index, n, ledger.ErrIndexConflict)
	}

	payload, err := sealPayload(s.sealer, block.Payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(levelDBBlock{
		Index:        block.Index,
		Timestamp:    block.Timestamp,
		Payload:      payload,
		PreviousHash: block.PreviousHash,
		Hash:         block.Hash,
	})
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to encode block", err)
	}

	if err := s.db.Put(blockKey(block.Index), raw, s.writeOpts); err != nil {
		return fmt.Errorf("failed to write block %d: %w", block.Index, err)
	}
	if err := s.db.Put([]byte(heightKey), []byte(strconv.FormatUint(block.Index, 10)), s.writeOpts); err != nil {
		return fmt.Errorf("failed to advance tail pointer to %d: %w", block.Index, err)
	}

	s.logger.WithComponent("repository").WithField("index", block.Index).Debug("Block written to leveldb")
	return nil
}

// Close closes the underlying database
func (s *LevelDBBlockStore) Close() error {
	return s.db.Close()
}
