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

const defaultPageLimit = 50

// LedgerService owns the debit/credit primitives of the ledger engine.
// Every balance-affecting call runs inside one serializable transaction that
// reads the authoritative balance from the log, appends the entry and
// refreshes the cached accounts.balance, all-or-nothing.
type LedgerService struct {
	db     *sql.DB
	cfg    *config.LedgerConfig
	logger *zap.Logger
	audit  *AuditLogger
}

func NewLedgerService(db *sql.DB, cfg *config.LedgerConfig, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		db:     db,
		cfg:    cfg,
		logger: logger,
		audit:  NewAuditLogger(logger),
	}
}

// GetOrCreateAccount returns the (owner, kind) account, creating it with a
// zero balance on first reference. Safe to call repeatedly.
func (s *LedgerService) GetOrCreateAccount(ctx context.Context, ownerID string, kind models.AccountKind) (*models.Account, error) {
	account, err := s.getAccount(ctx, ownerID, kind)
	if err == nil {
		return account, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("select account: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, owner_id, kind, currency, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		ON CONFLICT (owner_id, kind) DO NOTHING`,
		uuid.NewString(), ownerID, kind, s.cfg.DefaultCurrency, now)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	account, err = s.getAccount(ctx, ownerID, kind)
	if err != nil {
		return nil, fmt.Errorf("select account after create: %w", err)
	}
	return account, nil
}

// GetBalance returns the balance consistent with the latest committed ledger
// entry, not the possibly stale cached counter.
func (s *LedgerService) GetBalance(ctx context.Context, ownerID string, kind models.AccountKind) (decimal.Decimal, string, error) {
	account, err := s.GetOrCreateAccount(ctx, ownerID, kind)
	if err != nil {
		return decimal.Zero, "", err
	}

	var balance decimal.Decimal
	err = s.db.QueryRowContext(ctx, `
		SELECT balance_after FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, account.ID).Scan(&balance)
	if err == sql.ErrNoRows {
		return account.Balance, account.Currency, nil
	}
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("select last entry: %w", err)
	}
	return balance, account.Currency, nil
}

// Credit appends a positive-effect entry. The entry kind must belong to the
// credit family; there is no upper bound on the amount.
func (s *LedgerService) Credit(ctx context.Context, ownerID string, kind models.AccountKind, entryKind models.EntryKind, amount decimal.Decimal, description string, meta models.EntryMeta) (*models.TransactionEntry, error) {
	if !entryKind.IsCredit() {
		return nil, fmt.Errorf("%w: %s is not a credit kind", models.ErrInvalidAmount, entryKind)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: credit amount must be positive, got %s", models.ErrInvalidAmount, amount)
	}
	return s.apply(ctx, ownerID, kind, entryKind, amount, true, description, meta)
}

// Debit appends a negative-effect entry. Whether the resulting balance may go
// negative is the per-kind policy from configuration, checked here and only
// here.
func (s *LedgerService) Debit(ctx context.Context, ownerID string, kind models.AccountKind, entryKind models.EntryKind, amount decimal.Decimal, description string, meta models.EntryMeta) (*models.TransactionEntry, error) {
	if !entryKind.IsDebit() {
		return nil, fmt.Errorf("%w: %s is not a debit kind", models.ErrInvalidAmount, entryKind)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: debit amount must be positive, got %s", models.ErrInvalidAmount, amount)
	}
	return s.apply(ctx, ownerID, kind, entryKind, amount.Neg(), s.cfg.AllowNegative(kind), description, meta)
}

// PaymentReset appends a pre-signed PAYMENT_RESET entry. The amount arrives
// already negative and is added, not subtracted.
func (s *LedgerService) PaymentReset(ctx context.Context, ownerID string, kind models.AccountKind, signedAmount decimal.Decimal, description string, meta models.EntryMeta) (*models.TransactionEntry, error) {
	if signedAmount.IsZero() {
		return nil, fmt.Errorf("%w: payment reset amount must be non-zero", models.ErrInvalidAmount)
	}
	return s.apply(ctx, ownerID, kind, models.EntryPaymentReset, signedAmount, s.cfg.AllowNegative(kind), description, meta)
}

// apply runs the atomic unit shared by all single-account writes.
func (s *LedgerService) apply(ctx context.Context, ownerID string, kind models.AccountKind, entryKind models.EntryKind, signed decimal.Decimal, allowNegative bool, description string, meta models.EntryMeta) (*models.TransactionEntry, error) {
	var entry *models.TransactionEntry
	err := database.WithSerializableTx(ctx, s.db, s.cfg.MaxTxAttempts, s.cfg.TxRetryBackoff, func(tx *sql.Tx) error {
		account, err := lockAccountTx(tx, ownerID, kind, s.cfg.DefaultCurrency)
		if err != nil {
			return err
		}
		entry, err = appendEntryTx(tx, account, entryKind, signed, allowNegative, description, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogEntry(entry)
	return entry, nil
}

// Deposit credits the owner's general wallet.
func (s *LedgerService) Deposit(ctx context.Context, ownerID, actorID string, amount decimal.Decimal, description string) (*models.TransactionEntry, error) {
	return s.Credit(ctx, ownerID, models.GeneralWallet, models.EntryDeposit, amount, description, models.EntryMeta{ActorID: actorID})
}

// Withdraw debits the owner's general wallet.
func (s *LedgerService) Withdraw(ctx context.Context, ownerID, actorID string, amount decimal.Decimal, description string) (*models.TransactionEntry, error) {
	return s.Debit(ctx, ownerID, models.GeneralWallet, models.EntryWithdrawal, amount, description, models.EntryMeta{ActorID: actorID})
}

// RecordExpense debits the owner's general wallet with an EXPENSE entry.
func (s *LedgerService) RecordExpense(ctx context.Context, ownerID, actorID string, amount decimal.Decimal, description string) (*models.TransactionEntry, error) {
	return s.Debit(ctx, ownerID, models.GeneralWallet, models.EntryExpense, amount, description, models.EntryMeta{ActorID: actorID})
}

// RecordCollection credits the manager's collection wallet, optionally
// correlated to the loan the client paid against.
func (s *LedgerService) RecordCollection(ctx context.Context, ownerID, actorID string, amount decimal.Decimal, loanID *string, description string) (*models.TransactionEntry, error) {
	return s.Credit(ctx, ownerID, models.CollectionWallet, models.EntryCollection, amount, description, models.EntryMeta{ActorID: actorID, LoanID: loanID})
}

// RecordCashAdjustment credits a CASH_ADJUSTMENT. Technical adjustments are
// bookkeeping fix-ups that period aggregation leaves out of operator totals.
func (s *LedgerService) RecordCashAdjustment(ctx context.Context, ownerID string, kind models.AccountKind, actorID string, amount decimal.Decimal, description string, technical bool) (*models.TransactionEntry, error) {
	return s.Credit(ctx, ownerID, kind, models.EntryCashAdjustment, amount, description, models.EntryMeta{ActorID: actorID, Technical: technical})
}

// Query pages through an account's history, newest first. A missing account
// yields an empty history rather than an error.
func (s *LedgerService) Query(ctx context.Context, ownerID string, kind models.AccountKind, filter models.EntryFilter) ([]models.TransactionEntry, error) {
	account, err := s.getAccount(ctx, ownerID, kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}

	query := `
		SELECT id, account_id, actor_id, kind, amount, currency, description,
		       balance_before, balance_after, related_actor_id, related_account_id,
		       loan_id, route_id, technical, created_at
		FROM ledger_entries
		WHERE account_id = $1`
	args := []any{account.ID}

	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, (page-1)*limit)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []models.TransactionEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// LastEntry returns the most recent entry for an account, or nil when the
// log is empty. Its BalanceAfter is the account's true current balance.
func (s *LedgerService) LastEntry(ctx context.Context, accountID string) (*models.TransactionEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, actor_id, kind, amount, currency, description,
		       balance_before, balance_after, related_actor_id, related_account_id,
		       loan_id, route_id, technical, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, accountID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select last entry: %w", err)
	}
	return entry, nil
}

func (s *LedgerService) getAccount(ctx context.Context, ownerID string, kind models.AccountKind) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, kind, currency, balance, created_at, updated_at
		FROM accounts
		WHERE owner_id = $1 AND kind = $2`, ownerID, kind)
	return scanAccount(row)
}

// ----------------------------------------------------------------------------
// Transaction-scoped helpers shared with the transfer, loan and closing
// services. All of them require the caller to hold an open *sql.Tx.
// ----------------------------------------------------------------------------

// lockAccountTx locks the (owner, kind) account row for the duration of the
// transaction, creating the account if it does not exist yet.
func lockAccountTx(tx *sql.Tx, ownerID string, kind models.AccountKind, currency string) (*models.Account, error) {
	row := tx.QueryRow(`
		SELECT id, owner_id, kind, currency, balance, created_at, updated_at
		FROM accounts
		WHERE owner_id = $1 AND kind = $2
		FOR UPDATE`, ownerID, kind)
	account, err := scanAccount(row)
	if err == nil {
		return account, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("lock account: %w", err)
	}

	// Two first-use operations can race here; ON CONFLICT lets the loser fall
	// through to the re-select and lock the winner's row instead of failing
	// with a unique violation.
	now := time.Now()
	_, err = tx.Exec(`
		INSERT INTO accounts (id, owner_id, kind, currency, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		ON CONFLICT (owner_id, kind) DO NOTHING`,
		uuid.NewString(), ownerID, kind, currency, now)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	row = tx.QueryRow(`
		SELECT id, owner_id, kind, currency, balance, created_at, updated_at
		FROM accounts
		WHERE owner_id = $1 AND kind = $2
		FOR UPDATE`, ownerID, kind)
	account, err = scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("lock account after create: %w", err)
	}
	return account, nil
}

// lastBalanceTx reads the authoritative balance from the log: the most recent
// entry's balance_after, or zero for an empty log.
func lastBalanceTx(tx *sql.Tx, accountID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(`
		SELECT balance_after FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("select last balance: %w", err)
	}
	return balance, nil
}

// appendEntryTx appends one signed entry and refreshes the cached balance.
// The two writes share the caller's transaction, so both or neither persist.
func appendEntryTx(tx *sql.Tx, account *models.Account, kind models.EntryKind, signed decimal.Decimal, allowNegative bool, description string, meta models.EntryMeta) (*models.TransactionEntry, error) {
	before, err := lastBalanceTx(tx, account.ID)
	if err != nil {
		return nil, err
	}
	after := before.Add(signed)

	if after.IsNegative() && !allowNegative {
		return nil, &models.InsufficientFundsError{
			OwnerID:   account.OwnerID,
			Kind:      account.Kind,
			Available: before,
			Requested: signed.Abs(),
		}
	}

	actorID := meta.ActorID
	if actorID == "" {
		actorID = account.OwnerID
	}

	entry := &models.TransactionEntry{
		ID:               uuid.NewString(),
		AccountID:        account.ID,
		ActorID:          actorID,
		Kind:             kind,
		Amount:           signed,
		Currency:         account.Currency,
		Description:      description,
		BalanceBefore:    before,
		BalanceAfter:     after,
		RelatedActorID:   meta.RelatedActorID,
		RelatedAccountID: meta.RelatedAccountID,
		LoanID:           meta.LoanID,
		RouteID:          meta.RouteID,
		Technical:        meta.Technical,
		CreatedAt:        time.Now(),
	}

	_, err = tx.Exec(`
		INSERT INTO ledger_entries (id, account_id, actor_id, kind, amount, currency, description,
		                            balance_before, balance_after, related_actor_id, related_account_id,
		                            loan_id, route_id, technical, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		entry.ID, entry.AccountID, entry.ActorID, entry.Kind, entry.Amount, entry.Currency,
		entry.Description, entry.BalanceBefore, entry.BalanceAfter,
		entry.RelatedActorID, entry.RelatedAccountID, entry.LoanID, entry.RouteID,
		entry.Technical, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3`,
		entry.BalanceAfter, entry.CreatedAt, entry.AccountID)
	if err != nil {
		return nil, fmt.Errorf("update cached balance: %w", err)
	}

	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.Kind, &a.Currency, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanEntry(row rowScanner) (*models.TransactionEntry, error) {
	var (
		e                            models.TransactionEntry
		relatedActor, relatedAccount sql.NullString
		loanID, routeID              sql.NullString
	)
	err := row.Scan(&e.ID, &e.AccountID, &e.ActorID, &e.Kind, &e.Amount, &e.Currency, &e.Description,
		&e.BalanceBefore, &e.BalanceAfter, &relatedActor, &relatedAccount,
		&loanID, &routeID, &e.Technical, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.RelatedActorID = nullableString(relatedActor)
	e.RelatedAccountID = nullableString(relatedAccount)
	e.LoanID = nullableString(loanID)
	e.RouteID = nullableString(routeID)
	return &e, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
