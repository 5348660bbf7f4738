package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeSystem AccountType = "system"
	AccountTypeUser   AccountType = "user"
)

type TransactionType string

const (
	TransactionTypeTopUp TransactionType = "top_up"
	TransactionTypeBonus TransactionType = "bonus"
	TransactionTypeSpend TransactionType = "spend"
)

// AssetType is immutable reference data, e.g. "Gold Coins"/"GOLD".
type AssetType struct {
	ID     int64  `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Symbol string `json:"symbol" db:"symbol"`
}

// Account is either the system Treasury (counterparty for every operation)
// or a user account bound to one external user identifier. Accounts are
// immutable once created; the id doubles as the global lock-ordering key.
type Account struct {
	ID             int64       `json:"id" db:"id"`
	Type           AccountType `json:"type" db:"type"`
	ExternalUserID *string     `json:"external_user_id,omitempty" db:"external_user_id"`
	Name           string      `json:"name" db:"name"`
}

// Transaction is the parent record of a double-entry movement. The amounts
// of its ledger entries sum to zero per asset type.
type Transaction struct {
	ID             int64           `json:"id" db:"id"`
	Type           TransactionType `json:"type" db:"type"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// LedgerEntry is one signed line of a transaction. Positive amount = credit,
// negative = debit. Entries are append-only, never updated or deleted.
type LedgerEntry struct {
	ID            int64           `json:"id" db:"id"`
	TransactionID int64           `json:"transaction_id" db:"transaction_id"`
	AccountID     int64           `json:"account_id" db:"account_id"`
	AssetTypeID   int64           `json:"asset_type_id" db:"asset_type_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
}
