package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Idempotent DDL for the ledger schema. Entries are append-only; the RESTRICT
// foreign keys make sure a transaction can never lose its entries.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS asset_types (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(64) NOT NULL UNIQUE,
		symbol VARCHAR(16) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		type VARCHAR(16) NOT NULL CHECK (type IN ('system', 'user')),
		external_user_id VARCHAR(128) UNIQUE,
		name VARCHAR(128) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		type VARCHAR(16) NOT NULL CHECK (type IN ('top_up', 'bonus', 'spend')),
		idempotency_key VARCHAR(128) UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id BIGSERIAL PRIMARY KEY,
		transaction_id BIGINT NOT NULL REFERENCES transactions(id) ON DELETE RESTRICT,
		account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE RESTRICT,
		asset_type_id BIGINT NOT NULL REFERENCES asset_types(id) ON DELETE RESTRICT,
		amount NUMERIC(20,4) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_ledger_account_asset
		ON ledger_entries (account_id, asset_type_id)`,
}

// Bootstrap creates the schema when it does not exist yet.
func Bootstrap(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema bootstrap failed: %w", err)
		}
	}
	log.Println("Schema bootstrap complete")
	return nil
}
