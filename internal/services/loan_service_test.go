package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/prestadia/backend/internal/models"
)

func loanRows(id, ownerID, clientName, principal string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "client_name", "principal", "currency", "created_at"}).
		AddRow(id, ownerID, clientName, principal, "ARS", time.Now())
}

func TestLoanService_Disburse(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLoanService(db, testConfig(), nil)

	t.Run("loan insert and wallet debit commit together", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectExec("INSERT INTO loans").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectQuery("SELECT id, owner_id, kind, currency, balance, created_at, updated_at").
			WithArgs("manager-1", models.CollectionWallet).
			WillReturnRows(accountRows("coll-1", "manager-1", models.CollectionWallet, "ARS", "10000"))

		mock.ExpectQuery("SELECT balance_after FROM ledger_entries").
			WithArgs("coll-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance_after"}).AddRow("10000"))

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "coll-1", "actor-1", "LOAN_DISBURSEMENT",
				decimal.NewFromInt(-5000), "ARS", "loan disbursed to Maria",
				decimal.NewFromInt(10000), decimal.NewFromInt(5000),
				nil, nil, sqlmock.AnyArg(), nil, false, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("UPDATE accounts SET balance").
			WithArgs(decimal.NewFromInt(5000), sqlmock.AnyArg(), "coll-1").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		loan, entry, err := service.Disburse(context.Background(), "manager-1", "actor-1",
			"Maria", decimal.NewFromInt(5000), nil)
		assert.NoError(t, err)
		assert.Equal(t, "manager-1", loan.OwnerID)
		assert.Equal(t, models.EntryLoanDisbursement, entry.Kind)
		assert.True(t, entry.Amount.Equal(decimal.NewFromInt(-5000)))
		assert.Equal(t, loan.ID, *entry.LoanID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive principal", func(t *testing.T) {
		_, _, err := service.Disburse(context.Background(), "manager-1", "actor-1",
			"Maria", decimal.Zero, nil)
		assert.True(t, errors.Is(err, models.ErrInvalidAmount))
	})
}

func TestLoanService_RecordPayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLoanService(db, testConfig(), nil)

	mock.ExpectBegin()

	mock.ExpectQuery("SELECT id, owner_id, client_name, principal, currency, created_at").
		WithArgs("loan-1").
		WillReturnRows(loanRows("loan-1", "manager-1", "Maria", "5000"))

	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery("SELECT id, owner_id, kind, currency, balance, created_at, updated_at").
		WithArgs("manager-1", models.CollectionWallet).
		WillReturnRows(accountRows("coll-1", "manager-1", models.CollectionWallet, "ARS", "5000"))

	mock.ExpectQuery("SELECT balance_after FROM ledger_entries").
		WithArgs("coll-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance_after"}).AddRow("5000"))

	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(sqlmock.AnyArg(), "coll-1", "actor-1", "COLLECTION",
			decimal.NewFromInt(800), "ARS", "payment from Maria",
			decimal.NewFromInt(5000), decimal.NewFromInt(5800),
			nil, nil, "loan-1", nil, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec("UPDATE accounts SET balance").
		WithArgs(decimal.NewFromInt(5800), sqlmock.AnyArg(), "coll-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectCommit()

	payment, entry, err := service.RecordPayment(context.Background(), "loan-1", "actor-1",
		decimal.NewFromInt(800))
	assert.NoError(t, err)
	assert.Equal(t, "loan-1", payment.LoanID)
	assert.Equal(t, models.EntryCollection, entry.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanService_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLoanService(db, testConfig(), nil)
	ctx := context.Background()

	t.Run("disbursed loan gets a compensating technical adjustment", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT id, owner_id, client_name, principal, currency, created_at").
			WithArgs("loan-1").
			WillReturnRows(loanRows("loan-1", "manager-1", "Maria", "5000"))

		mock.ExpectQuery("FROM ledger_entries").
			WithArgs("loan-1").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("5000"))

		mock.ExpectQuery("SELECT id, owner_id, kind, currency, balance, created_at, updated_at").
			WithArgs("manager-1", models.CollectionWallet).
			WillReturnRows(accountRows("coll-1", "manager-1", models.CollectionWallet, "ARS", "-2000"))

		mock.ExpectQuery("SELECT balance_after FROM ledger_entries").
			WithArgs("coll-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance_after"}).AddRow("-2000"))

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "coll-1", "admin-1", "CASH_ADJUSTMENT",
				decimal.NewFromInt(5000), "ARS", "reversal of disbursement for deleted loan loan-1",
				decimal.NewFromInt(-2000), decimal.NewFromInt(3000),
				nil, nil, "loan-1", nil, true, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("UPDATE accounts SET balance").
			WithArgs(decimal.NewFromInt(3000), sqlmock.AnyArg(), "coll-1").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("DELETE FROM loans").
			WithArgs("loan-1").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		err := service.Delete(ctx, "loan-1", "admin-1")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("never-disbursed loan is deleted without an adjustment", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT id, owner_id, client_name, principal, currency, created_at").
			WithArgs("loan-2").
			WillReturnRows(loanRows("loan-2", "manager-1", "Jorge", "3000"))

		mock.ExpectQuery("FROM ledger_entries").
			WithArgs("loan-2").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("0"))

		mock.ExpectExec("DELETE FROM loans").
			WithArgs("loan-2").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		err := service.Delete(ctx, "loan-2", "admin-1")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown loan is reported as not found", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, owner_id, client_name, principal, currency, created_at").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := service.Delete(ctx, "ghost", "admin-1")
		assert.True(t, errors.Is(err, models.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
