package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SooryaCodes/medchainx-sub000/pkg/config"
	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
)

func TestCreateSchema(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db := Wrap(sqlDB, &config.DatabaseConfig{}, logger.NewNop())

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ledger_blocks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE OR REPLACE FUNCTION ledger_blocks_immutable").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP TRIGGER IF EXISTS ledger_blocks_no_mutation").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TRIGGER ledger_blocks_no_mutation").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.CreateSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSchema_PropagatesErrors(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db := Wrap(sqlDB, &config.DatabaseConfig{}, logger.NewNop())
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ledger_blocks").WillReturnError(errors.New("permission denied"))

	err = db.CreateSchema(context.Background())
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	db := Wrap(sqlDB, &config.DatabaseConfig{}, logger.NewNop())
	mock.ExpectPing()

	assert.NoError(t, db.Health(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildConnectionString(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "ledger",
		Password: "pw",
		Name:     "medchainx",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5432 user=ledger password=pw dbname=medchainx sslmode=disable", BuildConnectionString(cfg))
}
