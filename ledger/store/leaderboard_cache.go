// ledger/store/leaderboard_cache.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
	sharedredis "github.com/Ftotnem/POINTS-LEDGER/shared/redis"
)

// LeaderboardCache holds ranked snapshots in Redis, one key per generation.
type LeaderboardCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewLeaderboardCache(client redis.UniversalClient, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func snapshotKey(generation int64) string {
	return fmt.Sprintf(sharedredis.LeaderboardSnapshotKey, generation)
}

// Get returns the snapshot of the current generation. hit is false on a miss;
// generation is still valid then and should be passed to Set.
func (c *LeaderboardCache) Get(ctx context.Context) ([]models.RankedTeam, int64, bool, error) {
	generation, err := c.client.Get(ctx, sharedredis.LeaderboardGenerationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, apperrors.NewStoreError("read leaderboard generation", err)
	}

	raw, err := c.client.Get(ctx, snapshotKey(generation)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, generation, false, nil
	}
	if err != nil {
		return nil, 0, false, apperrors.NewStoreError("read leaderboard cache", err)
	}

	var rows []models.RankedTeam
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, generation, false, nil // treat a corrupt entry as a miss; the next Set overwrites it
	}
	return rows, generation, true, nil
}

// Set stores rows under generation for the cache TTL. A zero TTL disables caching.
func (c *LeaderboardCache) Set(ctx context.Context, generation int64, rows []models.RankedTeam) error {
	if c.ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, snapshotKey(generation), raw, c.ttl).Err(); err != nil {
		return apperrors.NewStoreError("write leaderboard cache", err)
	}
	return nil
}

// Invalidate starts a new generation so the next read goes to MongoDB.
// Snapshots of older generations expire on their TTL.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, sharedredis.LeaderboardGenerationKey).Err(); err != nil {
		return apperrors.NewStoreError("invalidate leaderboard cache", err)
	}
	return nil
}
