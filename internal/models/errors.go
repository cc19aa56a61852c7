package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the ledger engine. The HTTP layer maps these to status
// codes; services wrap them with context via fmt.Errorf("...: %w", err).
var (
	// ErrNotFound is returned when a referenced account, owner, loan, route
	// or related actor does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAmount is returned for amounts <= 0 or unparseable input.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrCurrencyMismatch is returned when the two sides of a transfer use
	// different currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrPermissionDenied is returned when the hierarchical relationship a
	// transfer requires is absent.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidState is returned for operations on closed or immutable
	// entities, e.g. adding an expense to a closed route.
	ErrInvalidState = errors.New("invalid state")

	// ErrConcurrencyConflict is surfaced after a serialization-failure retry
	// loop is exhausted. This is the only error worth retrying automatically.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrInsufficientFunds is returned by debits on account kinds whose
	// negative-balance policy forbids going below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// InsufficientFundsError carries the shortfall details for a rejected debit.
type InsufficientFundsError struct {
	OwnerID   string
	Kind      AccountKind
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on %s/%s: available %s, requested %s",
		e.OwnerID, e.Kind, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// IsRetryable reports whether the operation might succeed if repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError reports whether the failure is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInsufficientFunds)
}

// IsNotFound reports whether the failure is a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
