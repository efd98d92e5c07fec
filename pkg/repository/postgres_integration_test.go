//go:build integration

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/SooryaCodes/medchainx-sub000/internal/ledger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/config"
	"github.com/SooryaCodes/medchainx-sub000/pkg/database"
	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

// startPostgres runs a throwaway PostgreSQL container with the ledger schema applied
func startPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "medchainx_test",
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "testpass",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		Name:     "medchainx_test",
		User:     "test",
		Password: "testpass",
		SSLMode:  "disable",
	}
	sqlDB, err := sql.Open("postgres", database.BuildConnectionString(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db := database.Wrap(sqlDB, cfg, logger.NewNop())
	require.Eventually(t, func() bool { return db.Health(ctx) == nil }, 30*time.Second, time.Second)
	require.NoError(t, db.CreateSchema(ctx))
	return db
}

func TestPostgresBlockStore_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	store := NewPostgresBlockStore(db.DB, nil, logger.NewNop())

	chain, err := ledger.Open(ctx, store)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		_, err := chain.Append(ctx, types.Record{
			Kind:    types.RecordKindPatient,
			Patient: &types.PatientRecord{ID: fmt.Sprintf("P%d", i), Name: "Asha"},
		})
		require.NoError(t, err)
	}

	reopened, err := ledger.Open(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, chain.GetAll(), reopened.GetAll())
	assert.True(t, reopened.Verify().Valid)

	// the table refuses in-place edits
	_, err = db.ExecContext(ctx, `UPDATE ledger_blocks SET hash = 'x' WHERE idx = 2`)
	assert.Error(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM ledger_blocks WHERE idx = 2`)
	assert.Error(t, err)

	// a second writer racing on the same index loses
	err = store.Append(ctx, chain.GetAll()[3])
	assert.True(t, errors.Is(err, ledger.ErrIndexConflict))
}
