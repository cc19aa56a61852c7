package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prestadia/backend/internal/config"
	"github.com/prestadia/backend/internal/models"
)

// ReconcileService treats accounts.balance as a cache and the entry log as
// ground truth. It uses the full-replay strategy: the balance is the fold of
// every signed entry amount from zero, so a single bad write anywhere in the
// history is healed, not just a bad most-recent one.
type ReconcileService struct {
	db        *sql.DB
	ledger    *LedgerService
	cfg       *config.LedgerConfig
	logger    *zap.Logger
	tolerance decimal.Decimal
}

func NewReconcileService(db *sql.DB, ledger *LedgerService, cfg *config.LedgerConfig, logger *zap.Logger) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	tolerance, err := decimal.NewFromString(cfg.DriftTolerance)
	if err != nil {
		tolerance = decimal.RequireFromString("0.01")
	}
	return &ReconcileService{
		db:        db,
		ledger:    ledger,
		cfg:       cfg,
		logger:    logger,
		tolerance: tolerance,
	}
}

// Recalculate replays the account's full history and, when the cached value
// drifts beyond the tolerance, overwrites the cache and reports corrected.
// Drift is logged as a warning: it means a prior write was inconsistent, not
// that this call failed.
func (s *ReconcileService) Recalculate(ctx context.Context, ownerID string, kind models.AccountKind) (decimal.Decimal, bool, error) {
	account, err := s.ledger.GetOrCreateAccount(ctx, ownerID, kind)
	if err != nil {
		return decimal.Zero, false, err
	}

	replayed, err := s.replay(ctx, account.ID)
	if err != nil {
		return decimal.Zero, false, err
	}

	drift := replayed.Sub(account.Balance).Abs()
	if drift.LessThanOrEqual(s.tolerance) {
		return replayed, false, nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE accounts SET balance = $1, updated_at = now() WHERE id = $2`,
		replayed, account.ID)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("correct cached balance: %w", err)
	}

	s.logger.Warn("balance drift corrected",
		zap.String("account_id", account.ID),
		zap.String("owner_id", ownerID),
		zap.String("kind", string(kind)),
		zap.String("cached", account.Balance.StringFixed(2)),
		zap.String("replayed", replayed.StringFixed(2)),
	)
	return replayed, true, nil
}

// ReconciledBalance is the read-path entry point: reconcile, but degrade to
// the cached value on failure instead of failing the balance query.
func (s *ReconcileService) ReconciledBalance(ctx context.Context, ownerID string, kind models.AccountKind) (decimal.Decimal, error) {
	balance, _, err := s.Recalculate(ctx, ownerID, kind)
	if err == nil {
		return balance, nil
	}
	if models.IsNotFound(err) {
		return decimal.Zero, err
	}

	s.logger.Warn("reconciliation failed, using cached balance",
		zap.String("owner_id", ownerID),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	account, accErr := s.ledger.GetOrCreateAccount(ctx, ownerID, kind)
	if accErr != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// AggregateCollectionBalance sums the reconciled collection-wallet balances
// of every manager under a subadmin. Supervisors never hold a stored
// aggregate; the sum is always recomputed from the subordinate ledgers.
func (s *ReconcileService) AggregateCollectionBalance(ctx context.Context, subadminID string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM actors WHERE parent_id = $1`, subadminID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("select subordinates: %w", err)
	}
	defer rows.Close()

	var managerIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return decimal.Zero, err
		}
		managerIDs = append(managerIDs, id)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, managerID := range managerIDs {
		balance, _, err := s.Recalculate(ctx, managerID, models.CollectionWallet)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(balance)
	}
	return total, nil
}

// replay folds every signed amount in the account's log, oldest first.
func (s *ReconcileService) replay(ctx context.Context, accountID string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT amount FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at ASC, id ASC`, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	balance := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		balance = balance.Add(amount)
	}
	return balance, rows.Err()
}
