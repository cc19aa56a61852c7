package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prestadia/backend/internal/config"
	"github.com/prestadia/backend/internal/database"
	"github.com/prestadia/backend/internal/models"
)

// LoanService is the boundary between the ledger engine and the loan/payment
// domain records. Amortization and interest math live elsewhere; this
// service only guarantees that every loan event and its ledger entry commit
// together.
type LoanService struct {
	db     *sql.DB
	cfg    *config.LedgerConfig
	logger *zap.Logger
	audit  *AuditLogger
}

func NewLoanService(db *sql.DB, cfg *config.LedgerConfig, logger *zap.Logger) *LoanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanService{db: db, cfg: cfg, logger: logger, audit: NewAuditLogger(logger)}
}

// Disburse creates the loan record and debits the manager's collection
// wallet with a LOAN_DISBURSEMENT entry in one atomic unit.
func (s *LoanService) Disburse(ctx context.Context, ownerID, actorID, clientName string, principal decimal.Decimal, routeID *string) (*models.Loan, *models.TransactionEntry, error) {
	if !principal.IsPositive() {
		return nil, nil, fmt.Errorf("%w: loan principal must be positive, got %s", models.ErrInvalidAmount, principal)
	}

	var (
		loan  *models.Loan
		entry *models.TransactionEntry
	)
	err := database.WithSerializableTx(ctx, s.db, s.cfg.MaxTxAttempts, s.cfg.TxRetryBackoff, func(tx *sql.Tx) error {
		loan = &models.Loan{
			ID:         uuid.NewString(),
			OwnerID:    ownerID,
			ClientName: clientName,
			Principal:  principal,
			Currency:   s.cfg.DefaultCurrency,
			CreatedAt:  time.Now(),
		}
		_, err := tx.Exec(`
			INSERT INTO loans (id, owner_id, client_name, principal, currency, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			loan.ID, loan.OwnerID, loan.ClientName, loan.Principal, loan.Currency, loan.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}

		account, err := lockAccountTx(tx, ownerID, models.CollectionWallet, s.cfg.DefaultCurrency)
		if err != nil {
			return err
		}
		entry, err = appendEntryTx(tx, account, models.EntryLoanDisbursement, principal.Neg(),
			s.cfg.AllowNegative(models.CollectionWallet),
			fmt.Sprintf("loan disbursed to %s", clientName),
			models.EntryMeta{ActorID: actorID, LoanID: &loan.ID, RouteID: routeID})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.audit.LogEntry(entry)
	return loan, entry, nil
}

// RecordPayment stores the payment record and credits the owner's collection
// wallet with a COLLECTION entry, atomically. The payment row, not the
// ledger entry, is what period aggregation counts as "collected".
func (s *LoanService) RecordPayment(ctx context.Context, loanID, actorID string, amount decimal.Decimal) (*models.Payment, *models.TransactionEntry, error) {
	if !amount.IsPositive() {
		return nil, nil, fmt.Errorf("%w: payment amount must be positive, got %s", models.ErrInvalidAmount, amount)
	}

	var (
		payment *models.Payment
		entry   *models.TransactionEntry
	)
	err := database.WithSerializableTx(ctx, s.db, s.cfg.MaxTxAttempts, s.cfg.TxRetryBackoff, func(tx *sql.Tx) error {
		loan, err := selectLoanTx(tx, loanID)
		if err != nil {
			return err
		}

		payment = &models.Payment{
			ID:        uuid.NewString(),
			LoanID:    loanID,
			Amount:    amount,
			CreatedAt: time.Now(),
		}
		_, err = tx.Exec(`
			INSERT INTO payments (id, loan_id, amount, created_at)
			VALUES ($1, $2, $3, $4)`,
			payment.ID, payment.LoanID, payment.Amount, payment.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		account, err := lockAccountTx(tx, loan.OwnerID, models.CollectionWallet, s.cfg.DefaultCurrency)
		if err != nil {
			return err
		}
		entry, err = appendEntryTx(tx, account, models.EntryCollection, amount, true,
			fmt.Sprintf("payment from %s", loan.ClientName),
			models.EntryMeta{ActorID: actorID, LoanID: &loanID})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.audit.LogEntry(entry)
	return payment, entry, nil
}

// Delete removes a loan. If the loan was disbursed, a compensating technical
// CASH_ADJUSTMENT is appended in the same transaction as the delete, so the
// log stays self-consistent without orphan-detection sweeps. The original
// disbursement entry remains in raw history; aggregation excludes it once
// the loan row is gone.
func (s *LoanService) Delete(ctx context.Context, loanID, actorID string) error {
	var entry *models.TransactionEntry
	err := database.WithSerializableTx(ctx, s.db, s.cfg.MaxTxAttempts, s.cfg.TxRetryBackoff, func(tx *sql.Tx) error {
		loan, err := selectLoanTx(tx, loanID)
		if err != nil {
			return err
		}

		disbursed, err := sumTx(tx, `
			SELECT COALESCE(SUM(-amount), 0)
			FROM ledger_entries
			WHERE loan_id = $1 AND kind = 'LOAN_DISBURSEMENT'`, loanID)
		if err != nil {
			return fmt.Errorf("sum disbursements: %w", err)
		}

		if disbursed.IsPositive() {
			account, err := lockAccountTx(tx, loan.OwnerID, models.CollectionWallet, s.cfg.DefaultCurrency)
			if err != nil {
				return err
			}
			entry, err = appendEntryTx(tx, account, models.EntryCashAdjustment, disbursed, true,
				fmt.Sprintf("reversal of disbursement for deleted loan %s", loanID),
				models.EntryMeta{ActorID: actorID, LoanID: &loanID, Technical: true})
			if err != nil {
				return err
			}
		}

		_, err = tx.Exec(`DELETE FROM loans WHERE id = $1`, loanID)
		if err != nil {
			return fmt.Errorf("delete loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if entry != nil {
		s.audit.LogEntry(entry)
	}
	s.logger.Info("loan deleted", zap.String("loan_id", loanID), zap.String("actor_id", actorID))
	return nil
}

func selectLoanTx(tx *sql.Tx, loanID string) (*models.Loan, error) {
	var loan models.Loan
	err := tx.QueryRow(`
		SELECT id, owner_id, client_name, principal, currency, created_at
		FROM loans
		WHERE id = $1`, loanID).
		Scan(&loan.ID, &loan.OwnerID, &loan.ClientName, &loan.Principal, &loan.Currency, &loan.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: loan %s", models.ErrNotFound, loanID)
	}
	if err != nil {
		return nil, fmt.Errorf("select loan: %w", err)
	}
	return &loan, nil
}
