// ledger/store/team_store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
)

// TeamStore represents the MongoDB data store for teams.
type TeamStore struct {
	collection *mongo.Collection
	log        *logger.Logger
}

// NewTeamStore creates a new TeamStore instance.
func NewTeamStore(collection *mongo.Collection, log *logger.Logger) *TeamStore {
	return &TeamStore{
		collection: collection,
		log:        log.WithField("store", "teams"),
	}
}

// FindByID returns the team with the given id, or a team NotFoundError.
func (ts *TeamStore) FindByID(ctx context.Context, id string) (*models.Team, error) {
	var team models.Team
	err := ts.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&team)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NewNotFoundError("team", id)
	}
	if err != nil {
		return nil, apperrors.NewStoreError("find team", err)
	}
	return &team, nil
}

// FindByAuthUID returns the teams linked to subjectID. At most two are fetched, enough to detect a duplicate link.
func (ts *TeamStore) FindByAuthUID(ctx context.Context, subjectID string) ([]models.Team, error) {
	opts := options.Find().SetLimit(2)
	return ts.find(ctx, "find team by authUid", bson.M{"authUid": subjectID}, opts)
}

// ListByName returns every team ordered by name.
func (ts *TeamStore) ListByName(ctx context.Context) ([]models.Team, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	return ts.find(ctx, "list teams", bson.M{}, opts)
}

// ListByPointsDesc returns every team ordered by points descending, ties by name.
func (ts *TeamStore) ListByPointsDesc(ctx context.Context) ([]models.Team, error) {
	opts := options.Find().SetSort(bson.D{{Key: "points", Value: -1}, {Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	return ts.find(ctx, "rank teams", bson.M{}, opts)
}

func (ts *TeamStore) find(ctx context.Context, op string, filter bson.M, opts *options.FindOptions) ([]models.Team, error) {
	cursor, err := ts.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperrors.NewStoreError(op, err)
	}
	defer cursor.Close(ctx)

	teams := []models.Team{}
	if err := cursor.All(ctx, &teams); err != nil {
		return nil, apperrors.NewStoreError(op, err)
	}
	return teams, nil
}

// IncrementPoints atomically adds delta to the team's points.
// Callers pass a mongo.SessionContext to make the increment part of a transaction.
func (ts *TeamStore) IncrementPoints(ctx context.Context, id string, delta int64) error {
	filter := bson.M{"_id": id}
	update := bson.M{
		"$inc": bson.M{"points": delta},
		"$set": bson.M{"last_updated": time.Now()},
	}
	res, err := ts.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return apperrors.NewStoreError("increment points", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NewNotFoundError("team", id)
	}
	return nil
}

// CompareAndSetPoints sets points to want only while they still equal expected.
// It reports false when the team moved on in between. Only the reconciler calls this.
func (ts *TeamStore) CompareAndSetPoints(ctx context.Context, id string, expected, want int64) (bool, error) {
	filter := bson.M{"_id": id, "points": expected}
	update := bson.M{"$set": bson.M{"points": want, "last_updated": time.Now()}}
	res, err := ts.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, apperrors.NewStoreError("set points", err)
	}
	return res.MatchedCount == 1, nil
}

// EnsureTeamsExist creates a zero-point team for every name that has none yet.
func (ts *TeamStore) EnsureTeamsExist(ctx context.Context, names []string) error {
	for _, name := range names {
		now := time.Now()
		filter := bson.M{"name": name}
		update := bson.M{
			"$setOnInsert": bson.M{
				"_id":          uuid.NewString(),
				"points":       int64(0),
				"created_at":   now,
				"last_updated": now,
			},
		}
		result, err := ts.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("failed to upsert team %s: %w", name, err)
		}
		if result.UpsertedID != nil {
			ts.log.Infof("Created team %q", name)
		} else {
			ts.log.Debugf("Team %q already exists", name)
		}
	}
	return nil
}

// EnsureIndexes creates the indexes the ledger relies on.
// The unique authUid index fails on a collection that already holds duplicate links;
// that is logged and startup continues, since duplicates are also caught at lookup time.
func (ts *TeamStore) EnsureIndexes(ctx context.Context) error {
	_, err := ts.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "points", Value: -1}, {Key: "name", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create points index: %w", err)
	}

	_, err = ts.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "authUid", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"authUid": bson.M{"$type": "string"}}),
	})
	if err != nil {
		ts.log.WithError(err).Warn("Could not create unique authUid index; duplicate team links may exist")
	}
	return nil
}
