package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind enumerates every money-affecting event recorded in the ledger.
type EntryKind string

const (
	EntryDeposit          EntryKind = "DEPOSIT"
	EntryWithdrawal       EntryKind = "WITHDRAWAL"
	EntryExpense          EntryKind = "EXPENSE"
	EntryCollection       EntryKind = "COLLECTION"
	EntryRouteExpense     EntryKind = "ROUTE_EXPENSE"
	EntryLoanDisbursement EntryKind = "LOAN_DISBURSEMENT"
	EntryCashAdjustment   EntryKind = "CASH_ADJUSTMENT"
	EntryPaymentReset     EntryKind = "PAYMENT_RESET"
	EntryTransferIn       EntryKind = "TRANSFER_IN"
	EntryTransferOut      EntryKind = "TRANSFER_OUT"
)

// IsCredit reports whether the kind increases the account balance.
// PAYMENT_RESET is neither: it carries its own sign and is added as stored.
func (k EntryKind) IsCredit() bool {
	switch k {
	case EntryDeposit, EntryCollection, EntryCashAdjustment, EntryTransferIn:
		return true
	}
	return false
}

// IsDebit reports whether the kind decreases the account balance.
func (k EntryKind) IsDebit() bool {
	switch k {
	case EntryWithdrawal, EntryExpense, EntryRouteExpense, EntryLoanDisbursement, EntryTransferOut:
		return true
	}
	return false
}

// Effect converts a positive magnitude into the signed amount stored on the
// entry. Entries always store the signed value, so replaying a log is a plain
// sum of amounts. PAYMENT_RESET amounts arrive pre-signed and pass through.
func (k EntryKind) Effect(amount decimal.Decimal) decimal.Decimal {
	switch {
	case k.IsCredit():
		return amount
	case k.IsDebit():
		return amount.Neg()
	default: // EntryPaymentReset
		return amount
	}
}

// TransactionEntry is one immutable record in an account's history. Entries
// are never updated or deleted; corrections append a compensating entry.
// BalanceBefore/BalanceAfter snapshot the account around the write so the log
// alone can answer "how did we get here".
type TransactionEntry struct {
	ID               string          `json:"id" db:"id"`
	AccountID        string          `json:"account_id" db:"account_id"`
	ActorID          string          `json:"actor_id" db:"actor_id"` // who triggered it; may differ from the account owner
	Kind             EntryKind       `json:"kind" db:"kind"`
	Amount           decimal.Decimal `json:"amount" db:"amount"` // signed
	Currency         string          `json:"currency" db:"currency"`
	Description      string          `json:"description" db:"description"`
	BalanceBefore    decimal.Decimal `json:"balance_before" db:"balance_before"`
	BalanceAfter     decimal.Decimal `json:"balance_after" db:"balance_after"`
	RelatedActorID   *string         `json:"related_actor_id,omitempty" db:"related_actor_id"`
	RelatedAccountID *string         `json:"related_account_id,omitempty" db:"related_account_id"`
	LoanID           *string         `json:"loan_id,omitempty" db:"loan_id"`
	RouteID          *string         `json:"route_id,omitempty" db:"route_id"`
	Technical        bool            `json:"technical" db:"technical"` // bookkeeping fix-up, excluded from operator-facing aggregation
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// EntryMeta carries the optional correlation fields for a new entry.
type EntryMeta struct {
	ActorID          string
	RelatedActorID   *string
	RelatedAccountID *string
	LoanID           *string
	RouteID          *string
	Technical        bool
}

// EntryFilter narrows a transaction log query. Zero Page means first page;
// zero Limit falls back to the service default.
type EntryFilter struct {
	Kind  *EntryKind
	From  *time.Time
	To    *time.Time
	Page  int
	Limit int
}
