package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/SooryaCodes/medchainx-sub000/internal/ledger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/encryption"
	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// PostgresBlockStore persists blocks to the append-only ledger_blocks table
type PostgresBlockStore struct {
	db     *sql.DB
	sealer encryption.Sealer
	logger *logger.Logger
}

// NewPostgresBlockStore creates a PostgreSQL block store. sealer may be nil.
func NewPostgresBlockStore(db *sql.DB, sealer encryption.Sealer, log *logger.Logger) *PostgresBlockStore {
	return &PostgresBlockStore{
		db:     db,
		sealer: sealer,
		logger: log,
	}
}

// Load reads every block ordered by index
func (s *PostgresBlockStore) Load(ctx context.Context) ([]ledger.Block, error) {
	start := time.Now()
	query := `
		SELECT idx, block_timestamp, payload, previous_hash, hash
		FROM ledger_blocks
		ORDER BY idx ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.logger.DatabaseOperation(ctx, "select", "ledger_blocks", time.Since(start).Milliseconds(), false, nil)
		return nil, fmt.Errorf("failed to query ledger blocks: %w", err)
	}
	defer rows.Close()

	var blocks []ledger.Block
	for rows.Next() {
		var (
			idx     int64
			payload []byte
			block   ledger.Block
		)
		if err := rows.Scan(&idx, &block.Timestamp, &payload, &block.PreviousHash, &block.Hash); err != nil {
			return nil, fmt.Errorf("failed to scan ledger block: %w", err)
		}

		record, err := openPayload(s.sealer, payload)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", idx, err)
		}

		block.Index = uint64(idx)
		block.Timestamp = block.Timestamp.UTC()
		block.Payload = record
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger blocks: %w", err)
	}

	s.logger.DatabaseOperation(ctx, "select", "ledger_blocks", time.Since(start).Milliseconds(), true, map[string]interface{}{
		"rows": len(blocks),
	})
	return blocks, nil
}

// Append inserts block. A duplicate index is reported as ledger.ErrIndexConflict.
func (s *PostgresBlockStore) Append(ctx context.Context, block ledger.Block) error {
	start := time.Now()

	payload, err := sealPayload(s.sealer, block.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ledger_blocks (idx, block_timestamp, payload, previous_hash, hash)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.db.ExecContext(ctx, query,
		int64(block.Index),
		block.Timestamp,
		payload,
		block.PreviousHash,
		block.Hash,
	)
	s.logger.DatabaseOperation(ctx, "insert", "ledger_blocks", time.Since(start).Milliseconds(), err == nil, map[string]interface{}{
		"index": block.Index,
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("insert block %d: %w", block.Index, ledger.ErrIndexConflict)
		}
		return fmt.Errorf("failed to insert block %d: %w", block.Index, err)
	}

	return nil
}

// Close is a no-op; the *sql.DB is owned by the caller
func (s *PostgresBlockStore) Close() error {
	return nil
}
