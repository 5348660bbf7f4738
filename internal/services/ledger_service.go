package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/playcredits/backend/internal/models"
)

// Postgres SQLSTATE codes the engine reacts to.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// LedgerService is the transactional engine behind every balance movement.
// Each operation runs as one unit of work: idempotency check (no locks),
// FOR UPDATE locks on the involved accounts in ascending id order, balance
// read, balanced entry insert, commit. Balances are never stored; they are
// always the sum of ledger entries for an (account, asset type) pair.
type LedgerService struct {
	db         *sql.DB
	treasuryID int64
}

// NewLedgerService wires the engine to the store and the Treasury account.
// The Treasury id is resolved once at startup and injected so the engine
// never looks it up per request.
func NewLedgerService(db *sql.DB, treasuryID int64) *LedgerService {
	return &LedgerService{db: db, treasuryID: treasuryID}
}

// OperationResult is what every successful write operation returns. NewBalance
// is recomputed from the entry log after the insert, inside the same unit of
// work, so it matches what any subsequent read will see.
type OperationResult struct {
	TransactionID int64           `json:"transaction_id"`
	NewBalance    decimal.Decimal `json:"new_balance"`
}

// GetBalance sums the ledger entries for the pair. Read-only, lock-free,
// safe to serve from a replica. An account with no entries has balance zero.
func (s *LedgerService) GetBalance(ctx context.Context, accountID, assetTypeID int64) (decimal.Decimal, error) {
	return sumEntries(ctx, s.db, accountID, assetTypeID)
}

// TopUp credits a user account against the Treasury (the money was already
// collected by the payment provider). No balance precondition.
func (s *LedgerService) TopUp(ctx context.Context, accountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*OperationResult, error) {
	return s.execute(ctx, models.TransactionTypeTopUp, accountID, assetTypeID, amount, idempotencyKey)
}

// Bonus issues free credits (referral rewards, promotions). Identical entry
// shape to TopUp; only the recorded transaction type differs.
func (s *LedgerService) Bonus(ctx context.Context, accountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*OperationResult, error) {
	return s.execute(ctx, models.TransactionTypeBonus, accountID, assetTypeID, amount, idempotencyKey)
}

// Spend debits a user account in favour of the Treasury. Fails with
// ErrInsufficientBalance when the locked balance is below amount, before any
// entry is written.
func (s *LedgerService) Spend(ctx context.Context, accountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*OperationResult, error) {
	return s.execute(ctx, models.TransactionTypeSpend, accountID, assetTypeID, amount, idempotencyKey)
}

func (s *LedgerService) execute(ctx context.Context, txType models.TransactionType, accountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*OperationResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	// Duplicate requests are answered from the transactions table without
	// taking any locks. First write wins: type and amount of the retry are
	// ignored, the original transaction id is returned.
	if idempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			log.Printf("[LEDGER] Duplicate request short-circuited: key=%s tx=%d", idempotencyKey, existing.ID)
			balance, err := s.GetBalance(ctx, accountID, assetTypeID)
			if err != nil {
				return nil, err
			}
			return &OperationResult{TransactionID: existing.ID, NewBalance: balance}, nil
		}
	}

	if err := s.checkAssetType(ctx, assetTypeID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapStorageError(err)
	}
	defer tx.Rollback()

	if err := s.lockAccounts(ctx, tx, []int64{s.treasuryID, accountID}); err != nil {
		return nil, err
	}

	if txType == models.TransactionTypeSpend {
		balance, err := sumEntries(ctx, tx, accountID, assetTypeID)
		if err != nil {
			return nil, err
		}
		if balance.LessThan(amount) {
			return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance, amount)
		}
	}

	entries := s.buildEntries(txType, accountID, assetTypeID, amount)
	if err := checkBalanced(entries); err != nil {
		// Never caused by client input. Abort loudly and keep the store clean.
		log.Printf("[LEDGER] FATAL invariant violation, aborting unit of work: %v", err)
		return nil, err
	}

	txID, err := s.insertTransaction(ctx, tx, txType, idempotencyKey)
	if err != nil {
		if isUniqueViolation(err) && idempotencyKey != "" {
			// Lost the race for the key against a concurrent request. Roll
			// back and answer with the winner's transaction, same as a plain
			// duplicate.
			tx.Rollback()
			return s.resolveIdempotencyConflict(ctx, accountID, assetTypeID, idempotencyKey)
		}
		return nil, mapStorageError(err)
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (transaction_id, account_id, asset_type_id, amount)
			VALUES ($1, $2, $3, $4)`,
			txID, e.AccountID, e.AssetTypeID, e.Amount.String()); err != nil {
			return nil, mapStorageError(err)
		}
	}

	newBalance, err := sumEntries(ctx, tx, accountID, assetTypeID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, mapStorageError(err)
	}

	log.Printf("[LEDGER] Committed %s: tx=%d account=%d asset=%d amount=%s balance=%s",
		txType, txID, accountID, assetTypeID, amount, newBalance)
	return &OperationResult{TransactionID: txID, NewBalance: newBalance}, nil
}

// buildEntries produces the balanced two-entry set for an operation. Spend
// debits the user and credits the Treasury; top-up and bonus do the opposite.
func (s *LedgerService) buildEntries(txType models.TransactionType, accountID, assetTypeID int64, amount decimal.Decimal) []models.LedgerEntry {
	if txType == models.TransactionTypeSpend {
		return []models.LedgerEntry{
			{AccountID: accountID, AssetTypeID: assetTypeID, Amount: amount.Neg()},
			{AccountID: s.treasuryID, AssetTypeID: assetTypeID, Amount: amount},
		}
	}
	return []models.LedgerEntry{
		{AccountID: s.treasuryID, AssetTypeID: assetTypeID, Amount: amount.Neg()},
		{AccountID: accountID, AssetTypeID: assetTypeID, Amount: amount},
	}
}

// lockAccounts takes exclusive row locks on every listed account, always in
// ascending id order. The fixed global order is the sole deadlock-avoidance
// mechanism: overlapping units of work request locks in the same relative
// order, so no circular wait can form. Locks are held until commit/rollback.
func (s *LedgerService) lockAccounts(ctx context.Context, tx *sql.Tx, accountIDs []int64) error {
	ordered := dedupeAscending(accountIDs)
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM accounts
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, pq.Array(ordered))
	if err != nil {
		return mapStorageError(err)
	}
	defer rows.Close()

	locked := 0
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return mapStorageError(err)
		}
		locked++
	}
	if err := rows.Err(); err != nil {
		return mapStorageError(err)
	}
	if locked != len(ordered) {
		return ErrAccountNotFound
	}
	return nil
}

func (s *LedgerService) insertTransaction(ctx context.Context, tx *sql.Tx, txType models.TransactionType, idempotencyKey string) (int64, error) {
	key := sql.NullString{String: idempotencyKey, Valid: idempotencyKey != ""}
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO transactions (type, idempotency_key, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id`, string(txType), key).Scan(&id)
	return id, err
}

func (s *LedgerService) findByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, idempotency_key, created_at
		FROM transactions
		WHERE idempotency_key = $1`, key).
		Scan(&t.ID, &t.Type, &t.IdempotencyKey, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapStorageError(err)
	}
	return &t, nil
}

func (s *LedgerService) resolveIdempotencyConflict(ctx context.Context, accountID, assetTypeID int64, key string) (*OperationResult, error) {
	winner, err := s.findByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		// Key vanished between conflict and lookup; only possible if the
		// winner's transaction rolled back. Retryable.
		return nil, fmt.Errorf("%w: idempotency key conflict did not resolve", ErrTransient)
	}
	log.Printf("[LEDGER] Idempotency race lost, returning winner: key=%s tx=%d", key, winner.ID)
	balance, err := s.GetBalance(ctx, accountID, assetTypeID)
	if err != nil {
		return nil, err
	}
	return &OperationResult{TransactionID: winner.ID, NewBalance: balance}, nil
}

func (s *LedgerService) checkAssetType(ctx context.Context, assetTypeID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM asset_types WHERE id = $1)`, assetTypeID).Scan(&exists)
	if err != nil {
		return mapStorageError(err)
	}
	if !exists {
		return ErrUnknownAssetType
	}
	return nil
}

// queryRower lets the balance aggregate run on the pool (lock-free reads) or
// inside a unit of work (lock-protected reads) with the same code.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sumEntries(ctx context.Context, q queryRower, accountID, assetTypeID int64) (decimal.Decimal, error) {
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM ledger_entries
		WHERE account_id = $1 AND asset_type_id = $2`,
		accountID, assetTypeID).Scan(&raw)
	if err != nil {
		return decimal.Zero, mapStorageError(err)
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return balance, nil
}

// checkBalanced verifies the zero-sum invariant per asset type. The two-entry
// shape guarantees it mechanically today; the check stays so future operation
// types with more entries cannot violate it silently.
func checkBalanced(entries []models.LedgerEntry) error {
	totals := make(map[int64]decimal.Decimal)
	for _, e := range entries {
		totals[e.AssetTypeID] = totals[e.AssetTypeID].Add(e.Amount)
	}
	for assetTypeID, total := range totals {
		if !total.IsZero() {
			return fmt.Errorf("%w: asset type %d sums to %s", ErrUnbalancedEntries, assetTypeID, total)
		}
	}
	return nil
}

func dedupeAscending(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}

// mapStorageError folds deadlocks, lock timeouts and lost connections into
// ErrTransient so callers can retry with the same idempotency key.
func mapStorageError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}
