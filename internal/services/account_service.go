package services

import (
	"context"
	"database/sql"

	"github.com/playcredits/backend/internal/models"
)

// AccountService resolves account identity. Accounts and asset types are
// read-only reference data after creation, so none of these lookups take
// locks.
type AccountService struct {
	db *sql.DB
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{db: db}
}

func (s *AccountService) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, type, external_user_id, name
		FROM accounts
		WHERE id = $1`, id))
}

// GetUserByExternalID maps the identifier the outside world knows (e.g. the
// game's player id) to the internal user account.
func (s *AccountService) GetUserByExternalID(ctx context.Context, externalUserID string) (*models.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, type, external_user_id, name
		FROM accounts
		WHERE type = $1 AND external_user_id = $2`,
		string(models.AccountTypeUser), externalUserID))
}

// GetSystemByName finds a system account such as the Treasury. Called once at
// startup; the resolved id is injected into the ledger engine.
func (s *AccountService) GetSystemByName(ctx context.Context, name string) (*models.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, type, external_user_id, name
		FROM accounts
		WHERE type = $1 AND name = $2`,
		string(models.AccountTypeSystem), name))
}

func (s *AccountService) scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Type, &a.ExternalUserID, &a.Name)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, mapStorageError(err)
	}
	return &a, nil
}
