package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEntryKind_Effect(t *testing.T) {
	amount := decimal.NewFromInt(500)

	t.Run("credit kinds keep the sign", func(t *testing.T) {
		for _, kind := range []EntryKind{EntryDeposit, EntryCollection, EntryCashAdjustment, EntryTransferIn} {
			assert.True(t, kind.IsCredit(), string(kind))
			assert.False(t, kind.IsDebit(), string(kind))
			assert.True(t, kind.Effect(amount).Equal(amount), string(kind))
		}
	})

	t.Run("debit kinds negate", func(t *testing.T) {
		for _, kind := range []EntryKind{EntryWithdrawal, EntryExpense, EntryRouteExpense, EntryLoanDisbursement, EntryTransferOut} {
			assert.True(t, kind.IsDebit(), string(kind))
			assert.False(t, kind.IsCredit(), string(kind))
			assert.True(t, kind.Effect(amount).Equal(amount.Neg()), string(kind))
		}
	})

	t.Run("payment reset passes the amount through pre-signed", func(t *testing.T) {
		signed := decimal.NewFromInt(-1200)
		assert.False(t, EntryPaymentReset.IsCredit())
		assert.False(t, EntryPaymentReset.IsDebit())
		assert.True(t, EntryPaymentReset.Effect(signed).Equal(signed))
	})
}

func TestPeriodSummary_ComputeNet(t *testing.T) {
	s := PeriodSummary{
		Collected:    decimal.NewFromInt(30000),
		Expensed:     decimal.NewFromInt(2000),
		Lent:         decimal.NewFromInt(8000),
		Withdrawn:    decimal.NewFromInt(1500),
		CashAdjusted: decimal.NewFromInt(500),
	}
	s.ComputeNet()
	assert.True(t, s.Net.Equal(decimal.NewFromInt(19000)), s.Net.String())
}

func TestErrorHelpers(t *testing.T) {
	t.Run("insufficient funds unwraps to the sentinel", func(t *testing.T) {
		err := &InsufficientFundsError{
			OwnerID:   "owner-1",
			Kind:      GeneralWallet,
			Available: decimal.NewFromInt(100),
			Requested: decimal.NewFromInt(600),
		}
		assert.True(t, errors.Is(err, ErrInsufficientFunds))
		assert.True(t, IsClientError(err))
		assert.Contains(t, err.Error(), "owner-1")
	})

	t.Run("classification", func(t *testing.T) {
		assert.True(t, IsRetryable(ErrConcurrencyConflict))
		assert.False(t, IsRetryable(ErrInvalidAmount))
		assert.True(t, IsClientError(ErrCurrencyMismatch))
		assert.True(t, IsClientError(ErrInvalidState))
		assert.True(t, IsNotFound(ErrNotFound))
		assert.False(t, IsNotFound(ErrPermissionDenied))
	})
}

func TestParseAccountKind(t *testing.T) {
	kind, err := ParseAccountKind("SAFE")
	assert.NoError(t, err)
	assert.Equal(t, Safe, kind)

	_, err = ParseAccountKind("VAULT")
	assert.True(t, errors.Is(err, ErrInvalidAmount))
}
