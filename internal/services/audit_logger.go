package services

import (
	"go.uber.org/zap"

	"github.com/prestadia/backend/internal/models"
)

// AuditLogger emits one structured event per money-affecting operation.
// Auditing is purely observational: a failed audit write never fails the
// underlying money operation.
type AuditLogger struct {
	logger *zap.Logger
}

func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{logger: logger.Named("audit")}
}

func (a *AuditLogger) LogEntry(entry *models.TransactionEntry) {
	a.logger.Info("ledger entry",
		zap.String("entry_id", entry.ID),
		zap.String("account_id", entry.AccountID),
		zap.String("actor_id", entry.ActorID),
		zap.String("kind", string(entry.Kind)),
		zap.String("amount", entry.Amount.StringFixed(2)),
		zap.String("balance_after", entry.BalanceAfter.StringFixed(2)),
		zap.Time("at", entry.CreatedAt),
	)
}

func (a *AuditLogger) LogTransfer(origin, dest *models.TransactionEntry) {
	a.logger.Info("transfer",
		zap.String("origin_entry_id", origin.ID),
		zap.String("origin_account_id", origin.AccountID),
		zap.String("dest_entry_id", dest.ID),
		zap.String("dest_account_id", dest.AccountID),
		zap.String("amount", dest.Amount.StringFixed(2)),
		zap.Time("at", dest.CreatedAt),
	)
}
