package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prestadia/backend/internal/cache"
	"github.com/prestadia/backend/internal/models"
	"github.com/prestadia/backend/internal/services"
)

// WalletHandler exposes the actor-facing wallet operations over HTTP. All
// money semantics live in the services; this layer only decodes, validates
// and maps errors to status codes.
type WalletHandler struct {
	ledger     *services.LedgerService
	transfers  *services.TransferService
	reconciler *services.ReconcileService
	balances   *cache.BalanceCache
	validator  *services.ValidationHelper
	logger     *zap.Logger
}

func NewWalletHandler(ledger *services.LedgerService, transfers *services.TransferService, reconciler *services.ReconcileService, balances *cache.BalanceCache, logger *zap.Logger) *WalletHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletHandler{
		ledger:     ledger,
		transfers:  transfers,
		reconciler: reconciler,
		balances:   balances,
		validator:  services.NewValidationHelper(),
		logger:     logger,
	}
}

type moneyRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=200"`
	ActorID     string          `json:"actorId"`
	LoanID      *string         `json:"loanId,omitempty"`
}

type transferRequest struct {
	OriginOwnerID string          `json:"originOwnerId" validate:"required"`
	OriginKind    string          `json:"originKind" validate:"required"`
	DestOwnerID   string          `json:"destOwnerId" validate:"required"`
	DestKind      string          `json:"destKind" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"max=200"`
	InitiatorID   string          `json:"initiatorId"`
}

// Deposit credits the owner's general wallet.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	req, ok := h.decodeMoney(w, r)
	if !ok {
		return
	}

	entry, err := h.ledger.Deposit(r.Context(), ownerID, actorOr(req.ActorID, ownerID), req.Amount, req.Description)
	if err != nil {
		h.fail(w, "deposit failed", err)
		return
	}
	h.balances.Invalidate(r.Context(), ownerID, models.GeneralWallet)
	writeJSON(w, http.StatusCreated, entry)
}

// Withdraw debits the owner's general wallet.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	req, ok := h.decodeMoney(w, r)
	if !ok {
		return
	}

	entry, err := h.ledger.Withdraw(r.Context(), ownerID, actorOr(req.ActorID, ownerID), req.Amount, req.Description)
	if err != nil {
		h.fail(w, "withdrawal failed", err)
		return
	}
	h.balances.Invalidate(r.Context(), ownerID, models.GeneralWallet)
	writeJSON(w, http.StatusCreated, entry)
}

// RecordCollection credits the manager's collection wallet.
func (h *WalletHandler) RecordCollection(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	req, ok := h.decodeMoney(w, r)
	if !ok {
		return
	}

	entry, err := h.ledger.RecordCollection(r.Context(), ownerID, actorOr(req.ActorID, ownerID), req.Amount, req.LoanID, req.Description)
	if err != nil {
		h.fail(w, "collection failed", err)
		return
	}
	h.balances.Invalidate(r.Context(), ownerID, models.CollectionWallet)
	writeJSON(w, http.StatusCreated, entry)
}

// RecordExpense debits the owner's general wallet with an EXPENSE entry.
func (h *WalletHandler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	req, ok := h.decodeMoney(w, r)
	if !ok {
		return
	}

	entry, err := h.ledger.RecordExpense(r.Context(), ownerID, actorOr(req.ActorID, ownerID), req.Amount, req.Description)
	if err != nil {
		h.fail(w, "expense failed", err)
		return
	}
	h.balances.Invalidate(r.Context(), ownerID, models.GeneralWallet)
	writeJSON(w, http.StatusCreated, entry)
}

type adjustmentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind" validate:"required"`
	Description string          `json:"description" validate:"max=200"`
	ActorID     string          `json:"actorId"`
	Technical   bool            `json:"technical"`
}

// RecordAdjustment credits a CASH_ADJUSTMENT onto one of the owner's accounts.
func (h *WalletHandler) RecordAdjustment(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")

	var req adjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	kind, err := models.ParseAccountKind(req.Kind)
	if err != nil {
		services.SendErrorResponse(w, "Unknown account kind", http.StatusBadRequest, nil)
		return
	}

	entry, err := h.ledger.RecordCashAdjustment(r.Context(), ownerID, kind,
		actorOr(req.ActorID, ownerID), req.Amount, req.Description, req.Technical)
	if err != nil {
		h.fail(w, "adjustment failed", err)
		return
	}
	h.balances.Invalidate(r.Context(), ownerID, kind)
	writeJSON(w, http.StatusCreated, entry)
}

// PaymentReset appends a pre-signed PAYMENT_RESET entry, typically negative,
// zeroing out a period's accumulated payments.
func (h *WalletHandler) PaymentReset(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")

	var req adjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	kind, err := models.ParseAccountKind(req.Kind)
	if err != nil {
		services.SendErrorResponse(w, "Unknown account kind", http.StatusBadRequest, nil)
		return
	}

	entry, err := h.ledger.PaymentReset(r.Context(), ownerID, kind, req.Amount,
		req.Description, models.EntryMeta{ActorID: actorOr(req.ActorID, ownerID)})
	if err != nil {
		h.fail(w, "payment reset failed", err)
		return
	}
	h.balances.Invalidate(r.Context(), ownerID, kind)
	writeJSON(w, http.StatusCreated, entry)
}

// Transfer executes an atomic two-account movement. The amount is signed:
// negative pulls funds from the destination side.
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	originKind, err := models.ParseAccountKind(req.OriginKind)
	if err != nil {
		services.SendErrorResponse(w, "Unknown origin account kind", http.StatusBadRequest, nil)
		return
	}
	destKind, err := models.ParseAccountKind(req.DestKind)
	if err != nil {
		services.SendErrorResponse(w, "Unknown destination account kind", http.StatusBadRequest, nil)
		return
	}

	result, err := h.transfers.Transfer(r.Context(), services.TransferRequest{
		OriginOwnerID: req.OriginOwnerID,
		OriginKind:    originKind,
		DestOwnerID:   req.DestOwnerID,
		DestKind:      destKind,
		Amount:        req.Amount,
		Description:   req.Description,
		InitiatorID:   req.InitiatorID,
	})
	if err != nil {
		h.fail(w, "transfer failed", err)
		return
	}
	h.balances.Invalidate(r.Context(), req.OriginOwnerID, originKind)
	h.balances.Invalidate(r.Context(), req.DestOwnerID, destKind)
	writeJSON(w, http.StatusCreated, result)
}

// GetBalance returns the reconciled balance for (owner, kind), served from
// the Redis cache when warm.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	kind, err := parseKindParam(r)
	if err != nil {
		services.SendErrorResponse(w, "Unknown account kind", http.StatusBadRequest, nil)
		return
	}

	if balance, hit, err := h.balances.Get(r.Context(), ownerID, kind); err == nil && hit {
		writeJSON(w, http.StatusOK, balanceResponse(ownerID, kind, balance))
		return
	}

	balance, err := h.reconciler.ReconciledBalance(r.Context(), ownerID, kind)
	if err != nil {
		h.fail(w, "balance query failed", err)
		return
	}
	if err := h.balances.Set(r.Context(), ownerID, kind, balance); err != nil {
		h.logger.Warn("balance cache write failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, balanceResponse(ownerID, kind, balance))
}

// History pages through an account's transaction log, newest first.
func (h *WalletHandler) History(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	kind, err := parseKindParam(r)
	if err != nil {
		services.SendErrorResponse(w, "Unknown account kind", http.StatusBadRequest, nil)
		return
	}

	filter := models.EntryFilter{}
	if s := r.URL.Query().Get("entryKind"); s != "" {
		entryKind := models.EntryKind(s)
		filter.Kind = &entryKind
	}
	if s := r.URL.Query().Get("from"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.From = &t
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.To = &t
		}
	}
	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.ledger.Query(r.Context(), ownerID, kind, filter)
	if err != nil {
		h.fail(w, "history query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// AggregateBalance sums the reconciled collection-wallet balances of every
// manager under a subadmin.
func (h *WalletHandler) AggregateBalance(w http.ResponseWriter, r *http.Request) {
	subadminID := chi.URLParam(r, "ownerId")
	total, err := h.reconciler.AggregateCollectionBalance(r.Context(), subadminID)
	if err != nil {
		h.fail(w, "aggregate balance failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ownerId": subadminID,
		"balance": total,
	})
}

func (h *WalletHandler) decodeMoney(w http.ResponseWriter, r *http.Request) (*moneyRequest, bool) {
	var req moneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return nil, false
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return nil, false
	}
	if !req.Amount.IsPositive() {
		services.SendErrorResponse(w, "Amount must be positive", http.StatusBadRequest, nil)
		return nil, false
	}
	return &req, true
}

func (h *WalletHandler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	services.SendErrorResponse(w, err.Error(), status, nil)
}

func balanceResponse(ownerID string, kind models.AccountKind, balance decimal.Decimal) map[string]any {
	return map[string]any{
		"ownerId": ownerID,
		"kind":    kind,
		"balance": balance,
	}
}

func parseKindParam(r *http.Request) (models.AccountKind, error) {
	s := r.URL.Query().Get("kind")
	if s == "" {
		return models.GeneralWallet, nil
	}
	return models.ParseAccountKind(s)
}

func actorOr(actorID, fallback string) string {
	if actorID != "" {
		return actorID
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFromError(err error) int {
	switch {
	case models.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden
	case models.IsRetryable(err):
		return http.StatusConflict
	case models.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
