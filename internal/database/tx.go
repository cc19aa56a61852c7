package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/prestadia/backend/internal/models"
)

// Postgres SQLSTATE codes worth retrying.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// WithSerializableTx runs fn inside a serializable database transaction and
// retries it with linear backoff when Postgres reports a serialization
// failure or deadlock. Any other error aborts immediately. After maxAttempts
// the conflict is surfaced as models.ErrConcurrencyConflict.
//
// fn must be idempotent up to the commit: every attempt re-reads its inputs
// inside the fresh transaction.
func WithSerializableTx(ctx context.Context, db *sql.DB, maxAttempts int, backoff time.Duration, fn func(tx *sql.Tx) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		err = fn(tx)
		if err == nil {
			err = tx.Commit()
			if err == nil {
				return nil
			}
		} else {
			tx.Rollback()
		}

		if !isSerializationFailure(err) {
			return err
		}

		lastErr = err
		select {
		case <-time.After(backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w: %v", models.ErrConcurrencyConflict, lastErr)
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqSerializationFailure || string(pqErr.Code) == pqDeadlockDetected
	}
	return false
}
