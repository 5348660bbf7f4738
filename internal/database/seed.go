package database

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Seed loads reference data (asset types, Treasury) and demo users with
// starter balances. Idempotent: runs to completion once, then no-ops. The
// Treasury is funded from a dedicated Seed system account so every entry in
// the store, including seeded ones, belongs to a balanced transaction.
func Seed(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	defer tx.Rollback()

	var haveAssets bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM asset_types)`).Scan(&haveAssets); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if !haveAssets {
		for _, at := range [][2]string{
			{"Gold Coins", "GOLD"},
			{"Diamonds", "DMND"},
			{"Loyalty Points", "PTS"},
		} {
			if _, err := tx.Exec(`INSERT INTO asset_types (name, symbol) VALUES ($1, $2)`, at[0], at[1]); err != nil {
				return fmt.Errorf("seed asset types: %w", err)
			}
		}
	}

	var haveTreasury bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM accounts WHERE type = 'system' AND name = 'Treasury')`).Scan(&haveTreasury); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if !haveTreasury {
		if _, err := tx.Exec(`INSERT INTO accounts (type, name) VALUES ('system', 'Treasury')`); err != nil {
			return fmt.Errorf("seed treasury: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO accounts (type, external_user_id, name) VALUES ('user', 'user_alice', 'Alice'), ('user', 'user_bob', 'Bob')`); err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
	}

	var haveEntries bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM ledger_entries)`).Scan(&haveEntries); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if haveEntries {
		log.Println("[SEED] Already seeded")
		return tx.Commit()
	}

	var seedID int64
	if err := tx.QueryRow(`INSERT INTO accounts (type, name) VALUES ('system', 'Seed') RETURNING id`).Scan(&seedID); err != nil {
		return fmt.Errorf("seed account: %w", err)
	}

	treasuryID, err := accountIDByName(tx, "Treasury")
	if err != nil {
		return err
	}
	aliceID, err := accountIDByExternalID(tx, "user_alice")
	if err != nil {
		return err
	}
	bobID, err := accountIDByExternalID(tx, "user_bob")
	if err != nil {
		return err
	}

	assets := map[string]int64{}
	rows, err := tx.Query(`SELECT id, symbol FROM asset_types`)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var symbol string
		if err := rows.Scan(&id, &symbol); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		assets[symbol] = id
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	grants := []struct {
		from, to, asset int64
		amount          string
	}{
		{seedID, treasuryID, assets["GOLD"], "10000"},
		{seedID, treasuryID, assets["DMND"], "5000"},
		{seedID, treasuryID, assets["PTS"], "20000"},
		{treasuryID, aliceID, assets["GOLD"], "100"},
		{treasuryID, aliceID, assets["DMND"], "50"},
		{treasuryID, aliceID, assets["PTS"], "500"},
		{treasuryID, bobID, assets["GOLD"], "80"},
		{treasuryID, bobID, assets["DMND"], "30"},
		{treasuryID, bobID, assets["PTS"], "200"},
	}
	for _, g := range grants {
		if err := grant(tx, g.from, g.to, g.asset, decimal.RequireFromString(g.amount)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}
	log.Println("[SEED] Seeded asset types, Treasury, user_alice and user_bob with starter balances")
	return nil
}

// grant records one balanced bonus transaction moving amount from one account
// to another.
func grant(tx *sql.Tx, fromID, toID, assetTypeID int64, amount decimal.Decimal) error {
	var txID int64
	key := "seed-" + uuid.NewString()
	if err := tx.QueryRow(`
		INSERT INTO transactions (type, idempotency_key, created_at)
		VALUES ('bonus', $1, NOW())
		RETURNING id`, key).Scan(&txID); err != nil {
		return fmt.Errorf("seed grant: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO ledger_entries (transaction_id, account_id, asset_type_id, amount)
		VALUES ($1, $2, $3, $4), ($1, $5, $3, $6)`,
		txID, fromID, assetTypeID, amount.Neg().String(), toID, amount.String()); err != nil {
		return fmt.Errorf("seed grant: %w", err)
	}
	return nil
}

func accountIDByName(tx *sql.Tx, name string) (int64, error) {
	var id int64
	if err := tx.QueryRow(`SELECT id FROM accounts WHERE name = $1`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("seed lookup %q: %w", name, err)
	}
	return id, nil
}

func accountIDByExternalID(tx *sql.Tx, externalUserID string) (int64, error) {
	var id int64
	if err := tx.QueryRow(`SELECT id FROM accounts WHERE external_user_id = $1`, externalUserID).Scan(&id); err != nil {
		return 0, fmt.Errorf("seed lookup %q: %w", externalUserID, err)
	}
	return id, nil
}
