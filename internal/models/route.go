package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RouteStatus string

const (
	RouteActive RouteStatus = "ACTIVE"
	RouteClosed RouteStatus = "CLOSED"
)

// Route is one collection day for one manager. Closing a route is a one-way
// ACTIVE -> CLOSED transition that freezes the day's totals onto the row;
// a closed route's expenses are immutable.
type Route struct {
	ID             string          `json:"id" db:"id"`
	OwnerID        string          `json:"owner_id" db:"owner_id"`
	RouteDate      time.Time       `json:"route_date" db:"route_date"`
	Status         RouteStatus     `json:"status" db:"status"`
	TotalCollected decimal.Decimal `json:"total_collected" db:"total_collected"`
	TotalExpenses  decimal.Decimal `json:"total_expenses" db:"total_expenses"`
	TotalLoaned    decimal.Decimal `json:"total_loaned" db:"total_loaned"`
	NetAmount      decimal.Decimal `json:"net_amount" db:"net_amount"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty" db:"closed_at"`
}

type RouteExpense struct {
	ID          string          `json:"id" db:"id"`
	RouteID     string          `json:"route_id" db:"route_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Description string          `json:"description" db:"description"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Loan is the domain record behind a LOAN_DISBURSEMENT entry. The interest
// and schedule math lives outside the ledger engine; the engine only needs
// the owner, the principal and the currency.
type Loan struct {
	ID         string          `json:"id" db:"id"`
	OwnerID    string          `json:"owner_id" db:"owner_id"`
	ClientName string          `json:"client_name" db:"client_name"`
	Principal  decimal.Decimal `json:"principal" db:"principal"`
	Currency   string          `json:"currency" db:"currency"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Payment is the authoritative business record for "collected" figures.
// Period aggregation sums payments, not COLLECTION ledger entries, because
// the ledger may carry corrective entries the payment table does not.
type Payment struct {
	ID        string          `json:"id" db:"id"`
	LoanID    string          `json:"loan_id" db:"loan_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
