// ledger/service/leaderboard_service.go
package service

import (
	"context"
	"sort"

	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
	"github.com/Ftotnem/POINTS-LEDGER/shared/retry"
)

// LeaderboardService projects teams into a ranked list.
type LeaderboardService struct {
	teams TeamRepository
	cache LeaderboardCache
	reads retry.Policy
	log   *logger.Logger
}

// NewLeaderboardService creates the projection. cache may be nil.
func NewLeaderboardService(teams TeamRepository, cache LeaderboardCache, reads retry.Policy, log *logger.Logger) *LeaderboardService {
	return &LeaderboardService{
		teams: teams,
		cache: cache,
		reads: reads,
		log:   log.WithField("component", "leaderboard"),
	}
}

// ListRanked returns every team by points descending, ties by name.
// Tied teams share a rank and the next rank skips accordingly (1, 2, 2, 4).
func (s *LeaderboardService) ListRanked(ctx context.Context) ([]models.RankedTeam, error) {
	var generation int64
	cacheable := false
	if s.cache != nil {
		rows, gen, ok, err := s.cache.Get(ctx)
		switch {
		case err != nil:
			s.log.WithContext(ctx).WithError(err).Warn("Leaderboard cache read failed, falling back to store")
		case ok:
			return rows, nil
		default:
			generation, cacheable = gen, true
		}
	}

	teams, err := retry.Value(ctx, s.reads, s.teams.ListByPointsDesc)
	if err != nil {
		return nil, err
	}
	rows := Rank(teams)

	// Stored under the generation seen before the read; an adjustment that
	// invalidated in between has already moved readers past it.
	if cacheable {
		if err := s.cache.Set(ctx, generation, rows); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("Leaderboard cache write failed")
		}
	}
	return rows, nil
}

// Invalidate drops the cached snapshot. Failures are logged; the snapshot then expires on its TTL.
func (s *LeaderboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("Leaderboard cache invalidation failed")
	}
}

// Rank orders teams and assigns competition ranks.
func Rank(teams []models.Team) []models.RankedTeam {
	sorted := make([]models.Team, len(teams))
	copy(sorted, teams)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Points != sorted[j].Points {
			return sorted[i].Points > sorted[j].Points
		}
		return sorted[i].Name < sorted[j].Name
	})

	rows := make([]models.RankedTeam, len(sorted))
	for i, t := range sorted {
		rank := i + 1
		if i > 0 && t.Points == sorted[i-1].Points {
			rank = rows[i-1].Rank
		}
		rows[i] = models.RankedTeam{
			Rank:   rank,
			TeamID: t.ID,
			Name:   t.DisplayName(),
			Points: t.Points,
		}
	}
	return rows
}
