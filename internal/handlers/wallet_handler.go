package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/playcredits/backend/internal/models"
	"github.com/playcredits/backend/internal/services"
)

// WalletHandler exposes the ledger engine over HTTP. It owns identity
// resolution (external user id -> account) and error-to-status mapping; all
// transactional behaviour lives in the ledger service.
type WalletHandler struct {
	ledger    *services.LedgerService
	accounts  *services.AccountService
	cache     *services.BalanceCache
	validator *services.ValidationHelper
}

func NewWalletHandler(ledger *services.LedgerService, accounts *services.AccountService, cache *services.BalanceCache) *WalletHandler {
	return &WalletHandler{
		ledger:    ledger,
		accounts:  accounts,
		cache:     cache,
		validator: services.NewValidationHelper(),
	}
}

type transactionRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	AssetTypeID    int64           `json:"asset_type_id" validate:"required,gt=0"`
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=128"`
}

type transactionResponse struct {
	TransactionID int64           `json:"transaction_id"`
	NewBalance    decimal.Decimal `json:"new_balance"`
}

type balanceResponse struct {
	Balance     decimal.Decimal `json:"balance"`
	AccountID   int64           `json:"account_id"`
	AssetTypeID int64           `json:"asset_type_id"`
}

// GetBalance returns the derived balance for a user and asset type.
// Lock-free; served from cache when possible.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	assetTypeID, err := strconv.ParseInt(r.URL.Query().Get("asset_type_id"), 10, 64)
	if err != nil || assetTypeID <= 0 {
		services.SendErrorResponse(w, "asset_type_id query parameter is required", http.StatusBadRequest, nil)
		return
	}

	if balance, hit := h.cache.Get(r.Context(), account.ID, assetTypeID); hit {
		writeJSON(w, http.StatusOK, balanceResponse{Balance: balance, AccountID: account.ID, AssetTypeID: assetTypeID})
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), account.ID, assetTypeID)
	if err != nil {
		h.sendOperationError(w, err)
		return
	}
	h.cache.Set(r.Context(), account.ID, assetTypeID, balance)

	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance, AccountID: account.ID, AssetTypeID: assetTypeID})
}

// TopUp credits the user's wallet after a real-money purchase has already
// been collected. Idempotent when idempotency_key is sent.
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	h.writeOperation(w, r, h.ledger.TopUp)
}

// Bonus issues free credits (referrals, promotions). Idempotent when
// idempotency_key is sent.
func (h *WalletHandler) Bonus(w http.ResponseWriter, r *http.Request) {
	h.writeOperation(w, r, h.ledger.Bonus)
}

// Spend debits the user's wallet, e.g. for an in-app purchase. Responds 402
// when the balance is insufficient.
func (h *WalletHandler) Spend(w http.ResponseWriter, r *http.Request) {
	h.writeOperation(w, r, h.ledger.Spend)
}

type ledgerOperation func(ctx context.Context, accountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*services.OperationResult, error)

func (h *WalletHandler) writeOperation(w http.ResponseWriter, r *http.Request, op ledgerOperation) {
	account, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	var req transactionRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := op(r.Context(), account.ID, req.AssetTypeID, req.Amount, req.IdempotencyKey)
	if err != nil {
		h.sendOperationError(w, err)
		return
	}

	// Synchronous with the commit: the next read must not see a stale value.
	h.cache.Invalidate(r.Context(), account.ID, req.AssetTypeID)

	writeJSON(w, http.StatusOK, transactionResponse{
		TransactionID: result.TransactionID,
		NewBalance:    result.NewBalance,
	})
}

func (h *WalletHandler) resolveAccount(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	externalUserID := chi.URLParam(r, "externalUserId")
	if externalUserID == "" {
		services.SendErrorResponse(w, "External user id is required", http.StatusBadRequest, nil)
		return nil, false
	}

	acc, err := h.accounts.GetUserByExternalID(r.Context(), externalUserID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			services.SendErrorResponse(w, "User account not found", http.StatusNotFound, nil)
		} else {
			h.sendOperationError(w, err)
		}
		return nil, false
	}
	return acc, true
}

func (h *WalletHandler) sendOperationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrUnknownAssetType):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrAccountNotFound):
		services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
	case errors.Is(err, services.ErrInsufficientBalance):
		services.SendErrorResponse(w, "Payment could not be processed: insufficient balance", http.StatusPaymentRequired, nil)
	case errors.Is(err, services.ErrTransient):
		w.Header().Set("Retry-After", "2")
		services.SendErrorResponse(w, "Temporary failure, please retry", http.StatusServiceUnavailable, nil)
	default:
		log.Printf("[WALLET] Internal error: %v", err)
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
