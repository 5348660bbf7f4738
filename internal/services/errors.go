package services

import "errors"

// The only error conditions that cross the service boundary. The HTTP layer
// maps these to status codes; everything else is an internal failure.
var (
	// Validation failures. Rejected before any lock is taken, no side effects.
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrUnknownAssetType = errors.New("unknown asset type")
	ErrAccountNotFound  = errors.New("account not found")

	// ErrInsufficientBalance is returned by Spend after the balance check,
	// before any entry is written.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTransient marks aborted units of work (lock wait timeout, deadlock,
	// lost connection). No partial writes exist; retrying with the same
	// idempotency key is safe.
	ErrTransient = errors.New("transient storage failure")

	// ErrUnbalancedEntries means an entry set did not sum to zero for some
	// asset type. This is an internal consistency violation, never caused by
	// client input, and requires operator attention.
	ErrUnbalancedEntries = errors.New("ledger entries do not sum to zero")
)
