package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS asset_types`,
		`CREATE TABLE IF NOT EXISTS accounts`,
		`CREATE TABLE IF NOT EXISTS transactions`,
		`CREATE TABLE IF NOT EXISTS ledger_entries`,
		`CREATE INDEX IF NOT EXISTS ix_ledger_account_asset`,
	} {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	assert.NoError(t, Bootstrap(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeed_AlreadySeeded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM asset_types\)`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM accounts WHERE type = 'system' AND name = 'Treasury'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM ledger_entries\)`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	assert.NoError(t, Seed(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
