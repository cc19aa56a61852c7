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

// ClosingService is the read-side aggregator: period/commission summaries
// and the daily route closing. It consumes the entry log plus the payment,
// loan and route-expense tables and never mutates ledger state; the only
// write it performs is freezing totals onto a route at close time.
//
// "Collected" deliberately comes from the payments table, not from
// COLLECTION entries: after corrective entries the two can diverge, and the
// payment record is the authoritative business figure.
type ClosingService struct {
	db     *sql.DB
	cfg    *config.LedgerConfig
	logger *zap.Logger
}

func NewClosingService(db *sql.DB, cfg *config.LedgerConfig, logger *zap.Logger) *ClosingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClosingService{db: db, cfg: cfg, logger: logger}
}

// PeriodSummary aggregates one owner's result over [from, to]. Both bounds
// are interpreted as civil dates in the closing time zone; the range covers
// the start of from's day up to the end of to's day.
func (s *ClosingService) PeriodSummary(ctx context.Context, ownerID string, from, to time.Time) (*models.PeriodSummary, error) {
	loc := s.cfg.Location()
	start := startOfDay(from, loc)
	end := startOfDay(to, loc).Add(24 * time.Hour)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: period end before start", models.ErrInvalidAmount)
	}

	summary := &models.PeriodSummary{OwnerID: ownerID, From: start, To: end}
	var err error

	summary.Collected, err = s.sum(ctx, `
		SELECT COALESCE(SUM(p.amount), 0)
		FROM payments p
		JOIN loans l ON p.loan_id = l.id
		WHERE l.owner_id = $1 AND p.created_at >= $2 AND p.created_at < $3`,
		ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("sum collected: %w", err)
	}

	summary.Expensed, err = s.sum(ctx, `
		SELECT COALESCE(SUM(e.amount), 0)
		FROM route_expenses e
		JOIN routes r ON e.route_id = r.id
		WHERE r.owner_id = $1 AND e.created_at >= $2 AND e.created_at < $3`,
		ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("sum expensed: %w", err)
	}

	// The join to loans drops disbursement entries whose loan no longer
	// exists: orphaned entries stay visible in raw history but are not
	// "lent" money anymore.
	summary.Lent, err = s.sum(ctx, `
		SELECT COALESCE(SUM(-e.amount), 0)
		FROM ledger_entries e
		JOIN accounts a ON e.account_id = a.id
		JOIN loans l ON e.loan_id = l.id
		WHERE a.owner_id = $1 AND e.kind = 'LOAN_DISBURSEMENT'
		  AND e.created_at >= $2 AND e.created_at < $3`,
		ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("sum lent: %w", err)
	}

	summary.Withdrawn, err = s.sum(ctx, `
		SELECT COALESCE(SUM(-e.amount), 0)
		FROM ledger_entries e
		JOIN accounts a ON e.account_id = a.id
		WHERE a.owner_id = $1 AND e.kind = 'WITHDRAWAL'
		  AND e.created_at >= $2 AND e.created_at < $3`,
		ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("sum withdrawn: %w", err)
	}

	summary.CashAdjusted, err = s.sum(ctx, `
		SELECT COALESCE(SUM(e.amount), 0)
		FROM ledger_entries e
		JOIN accounts a ON e.account_id = a.id
		WHERE a.owner_id = $1 AND e.kind = 'CASH_ADJUSTMENT' AND NOT e.technical
		  AND e.created_at >= $2 AND e.created_at < $3`,
		ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("sum cash adjusted: %w", err)
	}

	summary.ComputeNet()

	var rate decimal.Decimal
	err = s.db.QueryRowContext(ctx, `
		SELECT commission_rate FROM actors WHERE id = $1`, ownerID).Scan(&rate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: actor %s", models.ErrNotFound, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("select commission rate: %w", err)
	}
	summary.Commission = summary.Collected.Mul(rate).Round(2)

	return summary, nil
}

// CloseRoute freezes the day's figures onto the route and flips it to
// CLOSED. Closing is one-way: a second close attempt fails with
// ErrInvalidState and a closed route's expenses become immutable.
func (s *ClosingService) CloseRoute(ctx context.Context, routeID string) (*models.Route, error) {
	loc := s.cfg.Location()

	var route *models.Route
	err := database.WithSerializableTx(ctx, s.db, s.cfg.MaxTxAttempts, s.cfg.TxRetryBackoff, func(tx *sql.Tx) error {
		var err error
		route, err = lockRouteTx(tx, routeID)
		if err != nil {
			return err
		}
		if route.Status == models.RouteClosed {
			return fmt.Errorf("%w: route %s is already closed", models.ErrInvalidState, routeID)
		}

		start := startOfDay(route.RouteDate, loc)
		end := start.Add(24 * time.Hour)

		collected, err := sumTx(tx, `
			SELECT COALESCE(SUM(p.amount), 0)
			FROM payments p
			JOIN loans l ON p.loan_id = l.id
			WHERE l.owner_id = $1 AND p.created_at >= $2 AND p.created_at < $3`,
			route.OwnerID, start, end)
		if err != nil {
			return fmt.Errorf("sum route collected: %w", err)
		}

		expenses, err := sumTx(tx, `
			SELECT COALESCE(SUM(amount), 0)
			FROM route_expenses
			WHERE route_id = $1`, routeID)
		if err != nil {
			return fmt.Errorf("sum route expenses: %w", err)
		}

		loaned, err := sumTx(tx, `
			SELECT COALESCE(SUM(-e.amount), 0)
			FROM ledger_entries e
			JOIN accounts a ON e.account_id = a.id
			JOIN loans l ON e.loan_id = l.id
			WHERE a.owner_id = $1 AND e.kind = 'LOAN_DISBURSEMENT'
			  AND e.created_at >= $2 AND e.created_at < $3`,
			route.OwnerID, start, end)
		if err != nil {
			return fmt.Errorf("sum route loaned: %w", err)
		}

		now := time.Now()
		route.Status = models.RouteClosed
		route.TotalCollected = collected
		route.TotalExpenses = expenses
		route.TotalLoaned = loaned
		route.NetAmount = collected.Sub(expenses).Sub(loaned)
		route.ClosedAt = &now

		_, err = tx.Exec(`
			UPDATE routes
			SET status = $1, total_collected = $2, total_expenses = $3,
			    total_loaned = $4, net_amount = $5, closed_at = $6
			WHERE id = $7`,
			route.Status, route.TotalCollected, route.TotalExpenses,
			route.TotalLoaned, route.NetAmount, now, routeID)
		if err != nil {
			return fmt.Errorf("freeze route totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("route closed",
		zap.String("route_id", route.ID),
		zap.String("owner_id", route.OwnerID),
		zap.String("net_amount", route.NetAmount.StringFixed(2)),
	)
	return route, nil
}

// AddRouteExpense records an expense against an active route and debits the
// owner's collection wallet, atomically.
func (s *ClosingService) AddRouteExpense(ctx context.Context, routeID, actorID string, amount decimal.Decimal, description string) (*models.RouteExpense, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: expense amount must be positive, got %s", models.ErrInvalidAmount, amount)
	}

	var expense *models.RouteExpense
	err := database.WithSerializableTx(ctx, s.db, s.cfg.MaxTxAttempts, s.cfg.TxRetryBackoff, func(tx *sql.Tx) error {
		route, err := lockRouteTx(tx, routeID)
		if err != nil {
			return err
		}
		if route.Status == models.RouteClosed {
			return fmt.Errorf("%w: route %s is closed", models.ErrInvalidState, routeID)
		}

		expense = &models.RouteExpense{
			ID:          uuid.NewString(),
			RouteID:     routeID,
			Amount:      amount,
			Description: description,
			CreatedAt:   time.Now(),
		}
		_, err = tx.Exec(`
			INSERT INTO route_expenses (id, route_id, amount, description, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			expense.ID, expense.RouteID, expense.Amount, expense.Description, expense.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert route expense: %w", err)
		}

		account, err := lockAccountTx(tx, route.OwnerID, models.CollectionWallet, s.cfg.DefaultCurrency)
		if err != nil {
			return err
		}
		_, err = appendEntryTx(tx, account, models.EntryRouteExpense, amount.Neg(),
			s.cfg.AllowNegative(models.CollectionWallet), description, models.EntryMeta{
				ActorID: actorID,
				RouteID: &routeID,
			})
		return err
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

func (s *ClosingService) sum(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&total)
	return total, err
}

func sumTx(tx *sql.Tx, query string, args ...any) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.QueryRow(query, args...).Scan(&total)
	return total, err
}

func lockRouteTx(tx *sql.Tx, routeID string) (*models.Route, error) {
	var (
		r        models.Route
		closedAt sql.NullTime
	)
	err := tx.QueryRow(`
		SELECT id, owner_id, route_date, status, total_collected, total_expenses,
		       total_loaned, net_amount, closed_at
		FROM routes
		WHERE id = $1
		FOR UPDATE`, routeID).
		Scan(&r.ID, &r.OwnerID, &r.RouteDate, &r.Status, &r.TotalCollected,
			&r.TotalExpenses, &r.TotalLoaned, &r.NetAmount, &closedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: route %s", models.ErrNotFound, routeID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock route: %w", err)
	}
	if closedAt.Valid {
		r.ClosedAt = &closedAt.Time
	}
	return &r, nil
}

// startOfDay cuts t to midnight in the closing time zone.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
