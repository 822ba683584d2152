// ledger/store/adjustment_writer.go
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
)

// TransactionalWriter applies the points increment and the transaction insert
// in one MongoDB multi-document transaction. Requires a replica set.
type TransactionalWriter struct {
	client       *mongo.Client
	teams        *TeamStore
	transactions *TransactionStore
}

func NewTransactionalWriter(client *mongo.Client, teams *TeamStore, transactions *TransactionStore) *TransactionalWriter {
	return &TransactionalWriter{client: client, teams: teams, transactions: transactions}
}

// Apply records tx and moves the team's points by tx.Delta, both or neither.
func (w *TransactionalWriter) Apply(ctx context.Context, tx *models.Transaction) error {
	session, err := w.client.StartSession()
	if err != nil {
		return apperrors.NewStoreError("start session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, w.applyBoth(sc, tx)
	})
	return transactionOutcome(err)
}

// applyBoth is the body of the transaction.
func (w *TransactionalWriter) applyBoth(ctx context.Context, tx *models.Transaction) error {
	if err := w.teams.IncrementPoints(ctx, tx.TeamID, tx.Delta); err != nil {
		return err
	}
	return w.transactions.Insert(ctx, tx)
}

// transactionOutcome maps the result of WithTransaction.
// A duplicate transaction id means an earlier attempt already committed, so it is reported as success.
func transactionOutcome(err error) error {
	switch {
	case err == nil, errors.Is(err, ErrDuplicateTransaction):
		return nil
	case apperrors.IsNotFound(err), apperrors.IsStore(err):
		return err
	default:
		return apperrors.NewStoreError("apply adjustment", err)
	}
}

// CompensatingWriter is used against a standalone mongod without transactions.
// It increments, inserts, and decrements back when the insert did not land.
type CompensatingWriter struct {
	teams        *TeamStore
	transactions *TransactionStore
	log          *logger.Logger
}

func NewCompensatingWriter(teams *TeamStore, transactions *TransactionStore, log *logger.Logger) *CompensatingWriter {
	return &CompensatingWriter{teams: teams, transactions: transactions, log: log.WithField("writer", "compensating")}
}

func (w *CompensatingWriter) Apply(ctx context.Context, tx *models.Transaction) error {
	if err := w.teams.IncrementPoints(ctx, tx.TeamID, tx.Delta); err != nil {
		return err
	}

	insertErr := w.transactions.Insert(ctx, tx)
	if insertErr == nil {
		return nil
	}

	// The caller's context may already be done; the follow-up must still run.
	followCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	entry := w.log.WithContext(ctx).WithFields(map[string]interface{}{
		"team_id":        tx.TeamID,
		"transaction_id": tx.ID,
		"delta":          tx.Delta,
	})

	// A duplicate means an earlier attempt recorded this id and already moved the points.
	// Any other error may have been raised after the server applied the insert.
	if !errors.Is(insertErr, ErrDuplicateTransaction) {
		recorded, err := w.transactions.Exists(followCtx, tx.ID)
		if err != nil {
			entry.WithError(err).Error("Transaction insert outcome unknown; points left applied, reconciler will report drift if it was lost")
			return insertErr
		}
		if recorded {
			entry.WithError(insertErr).Warn("Transaction insert reported an error but the record exists")
			return nil
		}
	}

	if err := w.teams.IncrementPoints(followCtx, tx.TeamID, -tx.Delta); err != nil {
		entry.WithError(err).Error("Failed to revert points after transaction insert failed; reconciler will report drift")
		return insertErr
	}

	if errors.Is(insertErr, ErrDuplicateTransaction) {
		return nil
	}
	return insertErr
}
