package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playcredits/backend/internal/models"
)

const accountColumnsQuery = `SELECT id, type, external_user_id, name\s+FROM accounts`

func TestAccountService_GetUserByExternalID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)

	t.Run("existing user", func(t *testing.T) {
		mock.ExpectQuery(accountColumnsQuery + `\s+WHERE type = \$1 AND external_user_id = \$2`).
			WithArgs("user", "user_alice").
			WillReturnRows(sqlmock.NewRows([]string{"id", "type", "external_user_id", "name"}).
				AddRow(5, "user", "user_alice", "Alice"))

		account, err := service.GetUserByExternalID(context.Background(), "user_alice")
		require.NoError(t, err)
		assert.Equal(t, int64(5), account.ID)
		assert.Equal(t, models.AccountTypeUser, account.Type)
		require.NotNil(t, account.ExternalUserID)
		assert.Equal(t, "user_alice", *account.ExternalUserID)
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectQuery(accountColumnsQuery).
			WithArgs("user", "user_nobody").
			WillReturnError(sql.ErrNoRows)

		_, err := service.GetUserByExternalID(context.Background(), "user_nobody")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_GetSystemByName(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)

	t.Run("treasury resolves with nil external id", func(t *testing.T) {
		mock.ExpectQuery(accountColumnsQuery + `\s+WHERE type = \$1 AND name = \$2`).
			WithArgs("system", "Treasury").
			WillReturnRows(sqlmock.NewRows([]string{"id", "type", "external_user_id", "name"}).
				AddRow(1, "system", nil, "Treasury"))

		account, err := service.GetSystemByName(context.Background(), "Treasury")
		require.NoError(t, err)
		assert.Equal(t, int64(1), account.ID)
		assert.Equal(t, models.AccountTypeSystem, account.Type)
		assert.Nil(t, account.ExternalUserID)
	})

	t.Run("missing system account", func(t *testing.T) {
		mock.ExpectQuery(accountColumnsQuery).
			WithArgs("system", "Vault").
			WillReturnError(sql.ErrNoRows)

		_, err := service.GetSystemByName(context.Background(), "Vault")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)

	mock.ExpectQuery(accountColumnsQuery + `\s+WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "external_user_id", "name"}).
			AddRow(5, "user", "user_bob", "Bob"))

	account, err := service.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Bob", account.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
