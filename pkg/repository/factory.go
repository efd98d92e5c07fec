package repository

import (
	"context"
	"fmt"

	"github.com/SooryaCodes/medchainx-sub000/pkg/config"
	"github.com/SooryaCodes/medchainx-sub000/pkg/database"
	"github.com/SooryaCodes/medchainx-sub000/pkg/encryption"
	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
)

// Backend is an opened block store plus the database it runs on, if any
type Backend struct {
	Store BlockStore
	DB    *database.DB
}

// Close releases the store and its database
func (b *Backend) Close() error {
	err := b.Store.Close()
	if b.DB != nil {
		if dbErr := b.DB.Close(); err == nil {
			err = dbErr
		}
	}
	return err
}

// OpenBackend opens the block store selected by cfg.Ledger.Store.
// The PostgreSQL schema is created when missing.
func OpenBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Backend, error) {
	var sealer encryption.Sealer
	if cfg.Ledger.EncryptionKey != "" {
		aes, err := encryption.NewAESEncryption(cfg.Ledger.EncryptionKey)
		if err != nil {
			return nil, err
		}
		sealer = aes
	}

	switch cfg.Ledger.Store {
	case config.StoreMemory, "":
		return &Backend{Store: NewMemoryBlockStore()}, nil

	case config.StorePostgres:
		db, err := database.NewConnection(&cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if err := db.CreateSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &Backend{Store: NewPostgresBlockStore(db.DB, sealer, log), DB: db}, nil

	case config.StoreLevelDB:
		store, err := OpenLevelDBBlockStore(cfg.Ledger.LevelDBPath, sealer, log)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: store}, nil

	default:
		return nil, fmt.Errorf("unknown ledger store %q", cfg.Ledger.Store)
	}
}
