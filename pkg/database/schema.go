package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the append-only ledger table.
// UPDATE and DELETE are rejected by trigger so committed blocks cannot be edited in place.
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.WithComponent("database").Info("Creating ledger schema")

	for _, stmt := range []string{
		createLedgerBlocksTable,
		createImmutabilityFunction,
		dropImmutabilityTrigger,
		createImmutabilityTrigger,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create ledger schema: %w", err)
		}
	}

	return nil
}

const (
	createLedgerBlocksTable = `
		CREATE TABLE IF NOT EXISTS ledger_blocks (
			idx BIGINT PRIMARY KEY CHECK (idx >= 0),
			block_timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
			payload BYTEA NOT NULL,
			previous_hash VARCHAR(64) NOT NULL,
			hash VARCHAR(64) NOT NULL UNIQUE,
			committed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);`

	createImmutabilityFunction = `
		CREATE OR REPLACE FUNCTION ledger_blocks_immutable() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'ledger_blocks is append-only';
		END;
		$$ LANGUAGE plpgsql;`

	dropImmutabilityTrigger = `DROP TRIGGER IF EXISTS ledger_blocks_no_mutation ON ledger_blocks;`

	createImmutabilityTrigger = `
		CREATE TRIGGER ledger_blocks_no_mutation
			BEFORE UPDATE OR DELETE ON ledger_blocks
			FOR EACH ROW EXECUTE FUNCTION ledger_blocks_immutable();`
)
