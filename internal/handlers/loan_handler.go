package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prestadia/backend/internal/services"
)

// LoanHandler covers the loan/payment boundary of the ledger: disbursement,
// payment capture and loan deletion with its compensating adjustment.
type LoanHandler struct {
	loans     *services.LoanService
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewLoanHandler(loans *services.LoanService, logger *zap.Logger) *LoanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanHandler{
		loans:     loans,
		validator: services.NewValidationHelper(),
		logger:    logger,
	}
}

type disburseRequest struct {
	OwnerID    string          `json:"ownerId" validate:"required"`
	ActorID    string          `json:"actorId" validate:"required"`
	ClientName string          `json:"clientName" validate:"required,max=120"`
	Principal  decimal.Decimal `json:"principal"`
	RouteID    *string         `json:"routeId,omitempty"`
}

type paymentRequest struct {
	ActorID string          `json:"actorId" validate:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

func (h *LoanHandler) Disburse(w http.ResponseWriter, r *http.Request) {
	var req disburseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	loan, entry, err := h.loans.Disburse(r.Context(), req.OwnerID, req.ActorID, req.ClientName, req.Principal, req.RouteID)
	if err != nil {
		h.fail(w, "disbursement failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"loan": loan, "entry": entry})
}

func (h *LoanHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "loanId")

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	payment, entry, err := h.loans.RecordPayment(r.Context(), loanID, req.ActorID, req.Amount)
	if err != nil {
		h.fail(w, "payment failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"payment": payment, "entry": entry})
}

func (h *LoanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "loanId")
	actorID := r.URL.Query().Get("actorId")

	if err := h.loans.Delete(r.Context(), loanID, actorID); err != nil {
		h.fail(w, "loan delete failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LoanHandler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	services.SendErrorResponse(w, err.Error(), status, nil)
}
