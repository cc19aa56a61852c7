package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prestadia/backend/internal/services"
)

// ClosingHandler serves period summaries and the route-closing operations.
type ClosingHandler struct {
	closing   *services.ClosingService
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewClosingHandler(closing *services.ClosingService, logger *zap.Logger) *ClosingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClosingHandler{
		closing:   closing,
		validator: services.NewValidationHelper(),
		logger:    logger,
	}
}

type routeExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,max=200"`
	ActorID     string          `json:"actorId" validate:"required"`
}

// PeriodSummary aggregates an owner's collected, expensed, lent, withdrawn
// and adjusted figures over a date range. Dates are civil dates (YYYY-MM-DD)
// in the closing time zone; both default to today.
func (h *ClosingHandler) PeriodSummary(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")

	from, ok := h.dateParam(w, r, "from", time.Now())
	if !ok {
		return
	}
	to, ok := h.dateParam(w, r, "to", time.Now())
	if !ok {
		return
	}

	summary, err := h.closing.PeriodSummary(r.Context(), ownerID, from, to)
	if err != nil {
		h.fail(w, "period summary failed", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// CloseRoute freezes the day's totals onto the route and marks it CLOSED.
func (h *ClosingHandler) CloseRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")

	route, err := h.closing.CloseRoute(r.Context(), routeID)
	if err != nil {
		h.fail(w, "route close failed", err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

// AddRouteExpense records an expense against an active route.
func (h *ClosingHandler) AddRouteExpense(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")

	var req routeExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	expense, err := h.closing.AddRouteExpense(r.Context(), routeID, req.ActorID, req.Amount, req.Description)
	if err != nil {
		h.fail(w, "route expense failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (h *ClosingHandler) dateParam(w http.ResponseWriter, r *http.Request, name string, fallback time.Time) (time.Time, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, true
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		services.SendErrorResponse(w, "Invalid "+name+" date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
		return time.Time{}, false
	}
	return t, true
}

func (h *ClosingHandler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	services.SendErrorResponse(w, err.Error(), status, nil)
}
