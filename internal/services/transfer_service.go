package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prestadia/backend/internal/config"
	"github.com/prestadia/backend/internal/database"
	"github.com/prestadia/backend/internal/models"
)

// TransferService coordinates atomic two-account money movements. Every
// transfer, hierarchical or not, is represented the same way: two linked
// entries, one TRANSFER_OUT on the origin and one TRANSFER_IN on the
// destination, each referencing the other side's account and owner.
type TransferService struct {
	db        *sql.DB
	cfg       *config.LedgerConfig
	directory ActorDirectory
	logger    *zap.Logger
	audit     *AuditLogger
}

func NewTransferService(db *sql.DB, cfg *config.LedgerConfig, directory ActorDirectory, logger *zap.Logger) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{
		db:        db,
		cfg:       cfg,
		directory: directory,
		logger:    logger,
		audit:     NewAuditLogger(logger),
	}
}

// TransferRequest describes one movement. Amount is signed: positive moves
// origin -> destination, negative pulls funds destination -> origin. The
// sign only selects the direction; the stored entries always carry the
// normalized magnitudes.
type TransferRequest struct {
	OriginOwnerID string
	OriginKind    models.AccountKind
	DestOwnerID   string
	DestKind      models.AccountKind
	Amount        decimal.Decimal
	Description   string
	InitiatorID   string
}

// TransferResult holds the linked pair of entries produced by one transfer.
type TransferResult struct {
	OriginEntry *models.TransactionEntry `json:"origin_entry"`
	DestEntry   *models.TransactionEntry `json:"dest_entry"`
}

// Transfer validates the role relationship, then debits the origin and
// credits the destination inside one serializable transaction. Any failure
// rolls the whole unit back; there is no partial debit or credit.
func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.Amount.IsZero() {
		return nil, fmt.Errorf("%w: transfer amount must be non-zero", models.ErrInvalidAmount)
	}

	// Direction is inferred from the sign.
	originOwner, originKind := req.OriginOwnerID, req.OriginKind
	destOwner, destKind := req.DestOwnerID, req.DestKind
	amount := req.Amount
	if amount.IsNegative() {
		originOwner, destOwner = destOwner, originOwner
		originKind, destKind = destKind, originKind
		amount = amount.Neg()
	}

	if originOwner == destOwner && originKind == destKind {
		return nil, fmt.Errorf("%w: origin and destination are the same account", models.ErrInvalidAmount)
	}

	if err := s.validateRelationship(ctx, originOwner, destOwner); err != nil {
		return nil, err
	}

	var result TransferResult
	err := database.WithSerializableTx(ctx, s.db, s.cfg.MaxTxAttempts, s.cfg.TxRetryBackoff, func(tx *sql.Tx) error {
		// Lock both accounts in a consistent order to avoid deadlocks
		// between concurrent transfers on the same pair.
		firstOwner, firstKind := originOwner, originKind
		secondOwner, secondKind := destOwner, destKind
		swapped := accountKey(destOwner, destKind) < accountKey(originOwner, originKind)
		if swapped {
			firstOwner, firstKind, secondOwner, secondKind = secondOwner, secondKind, firstOwner, firstKind
		}

		first, err := lockAccountTx(tx, firstOwner, firstKind, s.cfg.DefaultCurrency)
		if err != nil {
			return err
		}
		second, err := lockAccountTx(tx, secondOwner, secondKind, s.cfg.DefaultCurrency)
		if err != nil {
			return err
		}

		origin, dest := first, second
		if swapped {
			origin, dest = second, first
		}

		if origin.Currency != dest.Currency {
			return fmt.Errorf("%w: origin %s, destination %s", models.ErrCurrencyMismatch, origin.Currency, dest.Currency)
		}

		initiator := req.InitiatorID
		if initiator == "" {
			initiator = originOwner
		}

		result.OriginEntry, err = appendEntryTx(tx, origin, models.EntryTransferOut, amount.Neg(),
			s.cfg.AllowNegative(origin.Kind), req.Description, models.EntryMeta{
				ActorID:          initiator,
				RelatedActorID:   &dest.OwnerID,
				RelatedAccountID: &dest.ID,
			})
		if err != nil {
			return err
		}

		result.DestEntry, err = appendEntryTx(tx, dest, models.EntryTransferIn, amount,
			true, req.Description, models.EntryMeta{
				ActorID:          initiator,
				RelatedActorID:   &origin.OwnerID,
				RelatedAccountID: &origin.ID,
			})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogTransfer(result.OriginEntry, result.DestEntry)
	return &result, nil
}

// SafeToCollection moves funds between the safe and the collection wallet of
// a single owner. A negative amount pulls funds back into the safe.
func (s *TransferService) SafeToCollection(ctx context.Context, ownerID string, amount decimal.Decimal, description string) (*TransferResult, error) {
	return s.Transfer(ctx, TransferRequest{
		OriginOwnerID: ownerID,
		OriginKind:    models.Safe,
		DestOwnerID:   ownerID,
		DestKind:      models.CollectionWallet,
		Amount:        amount,
		Description:   description,
		InitiatorID:   ownerID,
	})
}

// SafeToSafe moves funds between the safes of two owners. Both entries carry
// the counterparty owner for visibility on each side.
func (s *TransferService) SafeToSafe(ctx context.Context, fromOwnerID, toOwnerID string, amount decimal.Decimal, description, initiatorID string) (*TransferResult, error) {
	return s.Transfer(ctx, TransferRequest{
		OriginOwnerID: fromOwnerID,
		OriginKind:    models.Safe,
		DestOwnerID:   toOwnerID,
		DestKind:      models.Safe,
		Amount:        amount,
		Description:   description,
		InitiatorID:   initiatorID,
	})
}

// WalletTransfer is the hierarchical subadmin <-> manager wallet movement.
// A positive amount pushes funds from the subadmin to the manager; a
// negative amount pulls funds from the manager back to the subadmin.
func (s *TransferService) WalletTransfer(ctx context.Context, subadminID, managerID string, amount decimal.Decimal, description string) (*TransferResult, error) {
	return s.Transfer(ctx, TransferRequest{
		OriginOwnerID: subadminID,
		OriginKind:    models.GeneralWallet,
		DestOwnerID:   managerID,
		DestKind:      models.GeneralWallet,
		Amount:        amount,
		Description:   description,
		InitiatorID:   subadminID,
	})
}

// CollectionWithdrawal lets a subadmin pull collected cash out of one of its
// managers' collection wallets into its own general wallet.
func (s *TransferService) CollectionWithdrawal(ctx context.Context, subadminID, managerID string, amount decimal.Decimal, description string) (*TransferResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive, got %s", models.ErrInvalidAmount, amount)
	}
	return s.Transfer(ctx, TransferRequest{
		OriginOwnerID: managerID,
		OriginKind:    models.CollectionWallet,
		DestOwnerID:   subadminID,
		DestKind:      models.GeneralWallet,
		Amount:        amount,
		Description:   description,
		InitiatorID:   subadminID,
	})
}

// validateRelationship enforces the hierarchy rules before any balance is
// touched. Same-owner movements are always allowed; cross-owner movements
// require an admin on either side or a direct subadmin/manager edge.
func (s *TransferService) validateRelationship(ctx context.Context, originOwner, destOwner string) error {
	if originOwner == destOwner {
		return nil
	}

	origin, err := s.directory.ResolveRole(ctx, originOwner)
	if err != nil {
		return err
	}
	dest, err := s.directory.ResolveRole(ctx, destOwner)
	if err != nil {
		return err
	}

	if origin.Role == models.RoleAdmin || dest.Role == models.RoleAdmin {
		return nil
	}

	if isParentOf(origin, dest) || isParentOf(dest, origin) {
		return nil
	}

	return fmt.Errorf("%w: no hierarchical relationship between %s (%s) and %s (%s)",
		models.ErrPermissionDenied, origin.ID, origin.Role, dest.ID, dest.Role)
}

func isParentOf(parent, child *models.Actor) bool {
	return parent.Role == models.RoleSubadmin &&
		child.Role == models.RoleManager &&
		child.ParentID != nil && *child.ParentID == parent.ID
}

func accountKey(ownerID string, kind models.AccountKind) string {
	return ownerID + "/" + string(kind)
}
