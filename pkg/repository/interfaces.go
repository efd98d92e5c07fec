package repository

import (
	"encoding/json"
	"fmt"

	"github.com/SooryaCodes/medchainx-sub000/internal/ledger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/encryption"
	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

// BlockStore is a closable ledger.Store
type BlockStore interface {
	ledger.Store
	Close() error
}

// sealPayload serializes a record canonically and encrypts it when a sealer is configured
func sealPayload(sealer encryption.Sealer, record types.Record) ([]byte, error) {
	data, err := record.Canonical()
	if err != nil {
		return nil, err
	}
	if sealer == nil {
		return data, nil
	}
	sealed, err := sealer.Encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("failed to seal payload: %w", err)
	}
	return sealed, nil
}

// openPayload reverses sealPayload
func openPayload(sealer encryption.Sealer, data []byte) (types.Record, error) {
	if sealer != nil {
		opened, err := sealer.Decrypt(data)
		if err != nil {
			return types.Record{}, fmt.Errorf("failed to open payload: %w", err)
		}
		data = opened
	}

	var record types.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return types.Record{}, fmt.Errorf("failed to decode payload: %w", err)
	}
	return record, nil
}
