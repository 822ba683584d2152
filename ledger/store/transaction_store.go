// ledger/store/transaction_store.go
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
)

// ErrDuplicateTransaction is returned when a transaction id was already recorded.
var ErrDuplicateTransaction = errors.New("transaction already recorded")

// TransactionStore is the append-only MongoDB store of adjustments.
// It exposes no update or delete.
type TransactionStore struct {
	collection *mongo.Collection
}

func NewTransactionStore(collection *mongo.Collection) *TransactionStore {
	return &TransactionStore{collection: collection}
}

// Insert appends tx.
func (s *TransactionStore) Insert(ctx context.Context, tx *models.Transaction) error {
	if _, err := s.collection.InsertOne(ctx, tx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("transaction %s: %w", tx.ID, ErrDuplicateTransaction)
		}
		return apperrors.NewStoreError("insert transaction", err)
	}
	return nil
}

// Exists reports whether a transaction with id was recorded.
func (s *TransactionStore) Exists(ctx context.Context, id string) (bool, error) {
	err := s.collection.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewStoreError("find transaction", err)
	}
	return true, nil
}

// ListRecent returns the newest transactions across all teams.
func (s *TransactionStore) ListRecent(ctx context.Context, limit int64) ([]models.Transaction, error) {
	return s.list(ctx, bson.M{}, limit)
}

// ListByTeam returns the newest transactions of one team.
func (s *TransactionStore) ListByTeam(ctx context.Context, teamID string, limit int64) ([]models.Transaction, error) {
	return s.list(ctx, bson.M{"teamId": teamID}, limit)
}

func (s *TransactionStore) list(ctx context.Context, filter bson.M, limit int64) ([]models.Transaction, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperrors.NewStoreError("list transactions", err)
	}
	defer cursor.Close(ctx)

	txs := []models.Transaction{}
	if err := cursor.All(ctx, &txs); err != nil {
		return nil, apperrors.NewStoreError("list transactions", err)
	}
	return txs, nil
}

// AggregateTeamDeltas sums delta per team over the whole collection.
func (s *TransactionStore) AggregateTeamDeltas(ctx context.Context) ([]models.TeamDeltaSum, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$teamId"},
			{Key: "sum", Value: bson.D{{Key: "$sum", Value: "$delta"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperrors.NewStoreError("aggregate transactions", err)
	}
	defer cursor.Close(ctx)

	sums := []models.TeamDeltaSum{}
	if err := cursor.All(ctx, &sums); err != nil {
		return nil, apperrors.NewStoreError("aggregate transactions", err)
	}
	return sums, nil
}

// EnsureIndexes creates the per-team and global timestamp indexes the listings use.
func (s *TransactionStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "teamId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create transaction indexes: %w", err)
	}
	return nil
}
