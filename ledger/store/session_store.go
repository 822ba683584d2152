// ledger/store/session_store.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
	sharedredis "github.com/Ftotnem/POINTS-LEDGER/shared/redis"
)

// SessionStore maps opaque session tokens to signed-in principals.
// Keys expire after the session TTL; there is no refresh.
type SessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewSessionStore(client redis.UniversalClient, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func sessionKey(token string) string {
	return fmt.Sprintf(sharedredis.SessionKeyPrefix, token)
}

// Create stores a new session for subjectID and returns its token.
func (s *SessionStore) Create(ctx context.Context, subjectID, email string) (string, error) {
	token := uuid.NewString()
	raw, err := json.Marshal(models.SessionRecord{
		SubjectID: subjectID,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, sessionKey(token), raw, s.ttl).Err(); err != nil {
		return "", apperrors.NewStoreError("create session", err)
	}
	return token, nil
}

// Resolve returns the principal behind token, or ErrSessionNotFound.
func (s *SessionStore) Resolve(ctx context.Context, token string) (*models.SessionRecord, error) {
	raw, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("resolve session", err)
	}

	var rec models.SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apperrors.ErrSessionNotFound
	}
	return &rec, nil
}

// Delete revokes token. Deleting an unknown token is not an error.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return apperrors.NewStoreError("delete session", err)
	}
	return nil
}
