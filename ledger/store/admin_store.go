// ledger/store/admin_store.go
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
)

// AdminStore reads the administrator markers. Markers are managed out-of-band.
type AdminStore struct {
	collection *mongo.Collection
}

func NewAdminStore(collection *mongo.Collection) *AdminStore {
	return &AdminStore{collection: collection}
}

// Exists reports whether admins/{subjectID} exists.
func (s *AdminStore) Exists(ctx context.Context, subjectID string) (bool, error) {
	var marker models.Admin
	err := s.collection.FindOne(ctx, bson.M{"_id": subjectID}).Decode(&marker)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewStoreError("check admin marker", err)
	}
	return marker.SubjectID == subjectID, nil
}
