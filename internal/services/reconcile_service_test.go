package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/prestadia/backend/internal/models"
)

func newReconcileFixture(t *testing.T) (*ReconcileService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	cfg := testConfig()
	ledger := NewLedgerService(db, cfg, nil)
	service := NewReconcileService(db, ledger, cfg, nil)
	return service, mock, func() { db.Close() }
}

func TestReconcileService_Recalculate(t *testing.T) {
	ctx := context.Background()

	t.Run("replay matching the cache is a no-op", func(t *testing.T) {
		service, mock, done := newReconcileFixture(t)
		defer done()

		mock.ExpectQuery("SELECT id, owner_id, kind, currency, balance, created_at, updated_at").
			WithArgs("owner-1", models.GeneralWallet).
			WillReturnRows(accountRows("acc-1", "owner-1", models.GeneralWallet, "ARS", "150"))

		mock.ExpectQuery("SELECT amount FROM ledger_entries").
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"amount"}).
				AddRow("100").
				AddRow("75").
				AddRow("-25"))

		balance, corrected, err := service.Recalculate(ctx, "owner-1", models.GeneralWallet)
		assert.NoError(t, err)
		assert.False(t, corrected)
		assert.True(t, balance.Equal(decimal.NewFromInt(150)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("drift beyond tolerance overwrites the cache", func(t *testing.T) {
		service, mock, done := newReconcileFixture(t)
		defer done()

		mock.ExpectQuery("SELECT id, owner_id, kind, currency, balance, created_at, updated_at").
			WithArgs("owner-1", models.GeneralWallet).
			WillReturnRows(accountRows("acc-1", "owner-1", models.GeneralWallet, "ARS", "100"))

		mock.ExpectQuery("SELECT amount FROM ledger_entries").
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"amount"}).
				AddRow("200.50").
				AddRow("-25"))

		mock.ExpectExec("UPDATE accounts SET balance").
			WithArgs(decimal.RequireFromString("175.5"), "acc-1").
			WillReturnResult(sqlmock.NewResult(1, 1))

		balance, corrected, err := service.Recalculate(ctx, "owner-1", models.GeneralWallet)
		assert.NoError(t, err)
		assert.True(t, corrected)
		assert.True(t, balance.Equal(decimal.RequireFromString("175.5")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sub-cent drift is tolerated", func(t *testing.T) {
		service, mock, done := newReconcileFixture(t)
		defer done()

		mock.ExpectQuery("SELECT id, owner_id, kind, currency, balance, created_at, updated_at").
			WithArgs("owner-1", models.GeneralWallet).
			WillReturnRows(accountRows("acc-1", "owner-1", models.GeneralWallet, "ARS", "100.005"))

		mock.ExpectQuery("SELECT amount FROM ledger_entries").
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow("100"))

		_, corrected, err := service.Recalculate(ctx, "owner-1", models.GeneralWallet)
		assert.NoError(t, err)
		assert.False(t, corrected)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty log replays to zero", func(t *testing.T) {
		service, mock, done := newReconcileFixture(t)
		defer done()

		mock.ExpectQuery("SELECT id, owner_id, kind, currency, balance, created_at, updated_at").
			WithArgs("owner-1", models.Safe).
			WillReturnRows(accountRows("safe-1", "owner-1", models.Safe, "ARS", "0"))

		mock.ExpectQuery("SELECT amount FROM ledger_entries").
			WithArgs("safe-1").
			WillReturnRows(sqlmock.NewRows([]string{"amount"}))

		balance, corrected, err := service.Recalculate(ctx, "owner-1", models.Safe)
		assert.NoError(t, err)
		assert.False(t, corrected)
		assert.True(t, balance.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReconcileService_AggregateCollectionBalance(t *testing.T) {
	service, mock, done := newReconcileFixture(t)
	defer done()

	mock.ExpectQuery("SELECT id FROM actors WHERE parent_id").
		WithArgs("subadmin-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow("manager-1").
			AddRow("manager-2"))

	mock.ExpectQuery("SELECT id, owner_id, kind, currency, balance, created_at, updated_at").
		WithArgs("manager-1", models.CollectionWallet).
		WillReturnRows(accountRows("m1-c", "manager-1", models.CollectionWallet, "ARS", "1200"))
	mock.ExpectQuery("SELECT amount FROM ledger_entries").
		WithArgs("m1-c").
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow("1200"))

	mock.ExpectQuery("SELECT id, owner_id, kind, currency, balance, created_at, updated_at").
		WithArgs("manager-2", models.CollectionWallet).
		WillReturnRows(accountRows("m2-c", "manager-2", models.CollectionWallet, "ARS", "-300"))
	mock.ExpectQuery("SELECT amount FROM ledger_entries").
		WithArgs("m2-c").
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow("-300"))

	total, err := service.AggregateCollectionBalance(context.Background(), "subadmin-1")
	assert.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(900)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
