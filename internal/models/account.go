package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind identifies one of the three money-holding accounts every actor
// can own: the general wallet, the cash safe and the field-collection wallet.
type AccountKind string

const (
	GeneralWallet    AccountKind = "GENERAL_WALLET"
	Safe             AccountKind = "SAFE"
	CollectionWallet AccountKind = "COLLECTION_WALLET"
)

// ParseAccountKind validates a kind supplied by a caller (query params, config).
func ParseAccountKind(s string) (AccountKind, error) {
	switch AccountKind(s) {
	case GeneralWallet, Safe, CollectionWallet:
		return AccountKind(s), nil
	}
	return "", fmt.Errorf("%w: unknown account kind %q", ErrInvalidAmount, s)
}

// Account is a balance holder bound 1:1 to (owner, kind). The balance column
// is a cache; the ledger_entries log is the authoritative balance. At most one
// account exists per (owner_id, kind), enforced by a unique constraint and
// lazily created on first use.
type Account struct {
	ID        string          `json:"id" db:"id"`
	OwnerID   string          `json:"owner_id" db:"owner_id"`
	Kind      AccountKind     `json:"kind" db:"kind"`
	Currency  string          `json:"currency" db:"currency"`
	Balance   decimal.Decimal `json:"balance" db:"balance"` // cached, non-authoritative
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
