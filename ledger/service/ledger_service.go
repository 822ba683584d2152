// ledger/service/ledger_service.go
package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
	"github.com/Ftotnem/POINTS-LEDGER/shared/metrics"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
	"github.com/Ftotnem/POINTS-LEDGER/shared/retry"
)

const (
	DefaultGlobalTransactionLimit = 25
	DefaultTeamTransactionLimit   = 50
	MaxTransactionLimit           = 500
)

// TransactionFilter selects which transactions ListTransactions returns. An empty TeamID means all teams.
type TransactionFilter struct {
	TeamID string
}

// LedgerService owns the rule that a team's points equal the sum of its transactions.
type LedgerService struct {
	teams        TeamRepository
	transactions TransactionRepository
	writer       AdjustmentWriter
	access       *AccessService
	leaderboard  *LeaderboardService
	reads        retry.Policy
	log          *logger.Logger

	now   func() time.Time
	newID func() string
}

func NewLedgerService(
	teams TeamRepository,
	transactions TransactionRepository,
	writer AdjustmentWriter,
	access *AccessService,
	leaderboard *LeaderboardService,
	reads retry.Policy,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		teams:        teams,
		transactions: transactions,
		writer:       writer,
		access:       access,
		leaderboard:  leaderboard,
		reads:        reads,
		log:          log.WithField("component", "ledger"),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
}

// ParseDelta parses a submitted delta. Anything that is not a non-zero base-10 integer is a ValidationError.
func ParseDelta(raw string) (int64, error) {
	delta, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || delta == 0 {
		return 0, apperrors.NewValidationError("delta", "must be a non-zero integer")
	}
	return delta, nil
}

// ApplyAdjustment moves teamID's points by delta and records the transaction, atomically.
// Every precondition is checked before the write; a rejected call touches nothing.
func (s *LedgerService) ApplyAdjustment(ctx context.Context, sess Session, teamID string, delta int64, comment string) (*models.Transaction, error) {
	return s.ApplyAdjustmentWithID(ctx, sess, "", teamID, delta, comment)
}

// ApplyAdjustmentWithID is ApplyAdjustment with a caller-chosen transaction id (a UUID).
// Resubmitting the same id is reported as success without moving points again.
// An empty id behaves like ApplyAdjustment.
func (s *LedgerService) ApplyAdjustmentWithID(ctx context.Context, sess Session, transactionID, teamID string, delta int64, comment string) (*models.Transaction, error) {
	tx, err := s.prepare(ctx, sess, transactionID, teamID, delta, comment)
	if err != nil {
		metrics.RecordAdjustment("rejected", delta)
		return nil, err
	}

	if err := s.writer.Apply(ctx, tx); err != nil {
		metrics.RecordAdjustment("failed", delta)
		s.log.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"team_id":        teamID,
			"transaction_id": tx.ID,
		}).Error("Adjustment write failed")
		return nil, err
	}
	metrics.RecordAdjustment("applied", delta)

	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"team_id":        tx.TeamID,
		"transaction_id": tx.ID,
		"delta":          tx.Delta,
		"admin_uid":      tx.AdminUID,
	}).Info("Adjustment applied")

	s.leaderboard.Invalidate(ctx)
	return tx, nil
}

func (s *LedgerService) prepare(ctx context.Context, sess Session, transactionID, teamID string, delta int64, comment string) (*models.Transaction, error) {
	if err := s.access.RequireAdministrator(ctx, sess); err != nil {
		return nil, err
	}
	if transactionID == "" {
		transactionID = s.newID()
	} else if _, err := uuid.Parse(transactionID); err != nil {
		return nil, apperrors.NewValidationError("transactionId", "must be a UUID")
	}
	if delta == 0 {
		return nil, apperrors.NewValidationError("delta", "must be a non-zero integer")
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, apperrors.NewValidationError("comment", "must not be empty")
	}
	if strings.TrimSpace(teamID) == "" {
		return nil, apperrors.NewValidationError("teamId", "is required")
	}
	if _, err := s.findTeam(ctx, teamID); err != nil {
		return nil, err
	}

	return &models.Transaction{
		ID:        transactionID,
		TeamID:    teamID,
		Delta:     delta,
		Comment:   comment,
		Timestamp: s.now(),
		AdminUID:  sess.SubjectID,
	}, nil
}

// GetBalance returns the team's cached points.
func (s *LedgerService) GetBalance(ctx context.Context, teamID string) (int64, error) {
	team, err := s.findTeam(ctx, teamID)
	if err != nil {
		return 0, err
	}
	return team.Points, nil
}

// GetTeam returns one team.
func (s *LedgerService) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	return s.findTeam(ctx, teamID)
}

// ListTeams returns every team ordered by name.
func (s *LedgerService) ListTeams(ctx context.Context) ([]models.Team, error) {
	return retry.Value(ctx, s.reads, s.teams.ListByName)
}

// ListTransactions returns at most limit transactions, newest first.
// limit <= 0 selects the default for the filter; limits above MaxTransactionLimit are capped.
func (s *LedgerService) ListTransactions(ctx context.Context, filter TransactionFilter, limit int) ([]models.Transaction, error) {
	n := int64(effectiveLimit(filter, limit))

	if filter.TeamID == "" {
		return retry.Value(ctx, s.reads, func(ctx context.Context) ([]models.Transaction, error) {
			return s.transactions.ListRecent(ctx, n)
		})
	}

	if _, err := s.findTeam(ctx, filter.TeamID); err != nil {
		return nil, err
	}
	return retry.Value(ctx, s.reads, func(ctx context.Context) ([]models.Transaction, error) {
		return s.transactions.ListByTeam(ctx, filter.TeamID, n)
	})
}

func effectiveLimit(filter TransactionFilter, limit int) int {
	if limit <= 0 {
		if filter.TeamID == "" {
			return DefaultGlobalTransactionLimit
		}
		return DefaultTeamTransactionLimit
	}
	if limit > MaxTransactionLimit {
		return MaxTransactionLimit
	}
	return limit
}

func (s *LedgerService) findTeam(ctx context.Context, teamID string) (*models.Team, error) {
	return retry.Value(ctx, s.reads, func(ctx context.Context) (*models.Team, error) {
		return s.teams.FindByID(ctx, teamID)
	})
}
