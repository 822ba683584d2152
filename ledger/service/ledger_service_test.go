package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
	"github.com/Ftotnem/POINTS-LEDGER/shared/retry"
)

func fastReads() retry.Policy {
	return retry.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsed:      time.Second,
		MaxAttempts:     3,
		Retryable:       retry.IsTransient,
	}
}

type LedgerServiceSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memStore
	cache  *memCache
	ledger *LedgerService
	admin  Session
	clock  time.Time
}

func (s *LedgerServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newMemStore()
	s.cache = &memCache{}
	s.store.addTeam(models.Team{ID: "falcons", Name: "Falcons"})
	s.store.addTeam(models.Team{ID: "owls", Name: "Owls", AuthUID: "owl-captain"})
	s.store.admins["admin-1"] = true
	s.admin = Session{Token: "t", SubjectID: "admin-1"}

	log := logger.Discard()
	access := NewAccessService(s.store, s.store, fastReads(), log)
	leaderboard := NewLeaderboardService(s.store, s.cache, fastReads(), log)
	s.ledger = NewLedgerService(s.store, s.store, s.store, access, leaderboard, fastReads(), log)

	s.clock = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.ledger.now = func() time.Time {
		s.clock = s.clock.Add(time.Second)
		return s.clock
	}
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) balance(teamID string) int64 {
	b, err := s.ledger.GetBalance(s.ctx, teamID)
	s.Require().NoError(err)
	return b
}

func (s *LedgerServiceSuite) TestFirstAdjustmentCreditsTeam() {
	tx, err := s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", 10, "quiz win")
	s.Require().NoError(err)

	s.Equal(int64(10), s.balance("falcons"))
	s.Equal(int64(10), tx.Delta)
	s.Equal("quiz win", tx.Comment)
	s.Equal("admin-1", tx.AdminUID)
	s.NotEmpty(tx.ID)
	s.False(tx.Timestamp.IsZero())

	txs, err := s.ledger.ListTransactions(s.ctx, TransactionFilter{TeamID: "falcons"}, 0)
	s.Require().NoError(err)
	s.Len(txs, 1)
}

func (s *LedgerServiceSuite) TestPenaltyListsNewestFirst() {
	_, err := s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", 10, "quiz win")
	s.Require().NoError(err)
	_, err = s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", -3, "penalty")
	s.Require().NoError(err)

	s.Equal(int64(7), s.balance("falcons"))

	txs, err := s.ledger.ListTransactions(s.ctx, TransactionFilter{TeamID: "falcons"}, 0)
	s.Require().NoError(err)
	s.Require().Len(txs, 2)
	s.Equal(int64(-3), txs[0].Delta)
	s.Equal(int64(10), txs[1].Delta)
}

func (s *LedgerServiceSuite) TestEmptyCommentAbortsBeforeWrite() {
	_, err := s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", 10, "quiz win")
	s.Require().NoError(err)
	writes := s.store.writes

	_, err = s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", 5, "")
	s.True(apperrors.IsValidation(err))

	s.Equal(writes, s.store.writes)
	s.Equal(int64(10), s.balance("falcons"))
	txs, err := s.ledger.ListTransactions(s.ctx, TransactionFilter{TeamID: "falcons"}, 0)
	s.Require().NoError(err)
	s.Len(txs, 1)
}

func (s *LedgerServiceSuite) TestBalanceEqualsSumOfDeltas() {
	deltas := []int64{10, -3, 25, -40, 1, 7, -2}
	for _, d := range deltas {
		_, err := s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", d, "round result")
		s.Require().NoError(err)
		s.Equal(s.store.sumFor("falcons"), s.balance("falcons"))
	}
	s.Equal(int64(-2), s.balance("falcons"))
	s.Equal(int64(0), s.balance("owls"))
}

func (s *LedgerServiceSuite) TestTransactionsAreNeverRewritten() {
	first, err := s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", 10, "quiz win")
	s.Require().NoError(err)
	snapshot := *first

	for i := 0; i < 5; i++ {
		_, err := s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", int64(i+1), "bonus")
		s.Require().NoError(err)
	}
	_, _ = s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", 0, "bad")

	txs, err := s.ledger.ListTransactions(s.ctx, TransactionFilter{TeamID: "falcons"}, MaxTransactionLimit)
	s.Require().NoError(err)
	s.Require().NotEmpty(txs)
	s.Equal(snapshot, txs[len(txs)-1])
}

func (s *LedgerServiceSuite) TestInvalidAdjustmentsMutateNothing() {
	cases := map[string]struct {
		sess    Session
		teamID  string
		delta   int64
		comment string
		check   func(error) bool
	}{
		"zero delta":      {s.admin, "falcons", 0, "x", apperrors.IsValidation},
		"blank comment":   {s.admin, "falcons", 4, "   ", apperrors.IsValidation},
		"missing team id": {s.admin, "", 4, "x", apperrors.IsValidation},
		"unknown team":    {s.admin, "eagles", 4, "x", apperrors.IsNotFound},
		"not an admin":    {Session{SubjectID: "owl-captain"}, "falcons", 4, "x", apperrors.IsAuthorization},
		"no session":      {Session{}, "falcons", 4, "x", apperrors.IsAuthentication},
	}

	for name, tc := range cases {
		s.Run(name, func() {
			tx, err := s.ledger.ApplyAdjustment(s.ctx, tc.sess, tc.teamID, tc.delta, tc.comment)
			s.Nil(tx)
			s.True(tc.check(err), "unexpected error %v", err)
			s.Equal(0, s.store.writes)
			s.Empty(s.store.txs)
		})
	}
}

func (s *LedgerServiceSuite) TestResubmissionWithSameIDAppliesOnce() {
	const id = "6f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f"

	first, err := s.ledger.ApplyAdjustmentWithID(s.ctx, s.admin, id, "falcons", 10, "quiz win")
	s.Require().NoError(err)
	s.Equal(id, first.ID)

	_, err = s.ledger.ApplyAdjustmentWithID(s.ctx, s.admin, id, "falcons", 10, "quiz win")
	s.Require().NoError(err)

	s.Equal(int64(10), s.balance("falcons"))
	s.Equal(1, s.store.writes)
	s.Equal(s.store.sumFor("falcons"), s.balance("falcons"))
}

func (s *LedgerServiceSuite) TestMalformedTransactionIDIsRejected() {
	_, err := s.ledger.ApplyAdjustmentWithID(s.ctx, s.admin, "retry-1", "falcons", 10, "quiz win")
	s.True(apperrors.IsValidation(err))
	s.Zero(s.store.writes)
}

func (s *LedgerServiceSuite) TestGetTeam() {
	team, err := s.ledger.GetTeam(s.ctx, "owls")
	s.Require().NoError(err)
	s.Equal("Owls", team.Name)

	_, err = s.ledger.GetTeam(s.ctx, "eagles")
	s.ErrorIs(err, apperrors.ErrTeamNotFound)
}

func (s *LedgerServiceSuite) TestCommentIsTrimmed() {
	tx, err := s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", 2, "  relay  ")
	s.Require().NoError(err)
	s.Equal("relay", tx.Comment)
}

func (s *LedgerServiceSuite) TestWriteFailureIsSurfaced() {
	s.store.applyErr = apperrors.NewStoreError("apply adjustment", errConnReset)

	_, err := s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", 10, "quiz win")
	s.True(apperrors.IsStore(err))
	s.Equal(int64(0), s.balance("falcons"))
	s.Equal(0, s.cache.invalidated)
}

func (s *LedgerServiceSuite) TestAdjustmentInvalidatesLeaderboard() {
	s.Require().NoError(s.cache.Set(s.ctx, 0, []models.RankedTeam{{Rank: 1, TeamID: "falcons"}}))
	_, err := s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", 10, "quiz win")
	s.Require().NoError(err)
	s.Equal(1, s.cache.invalidated)

	_, _, hit, err := s.cache.Get(s.ctx)
	s.Require().NoError(err)
	s.False(hit)
}

func (s *LedgerServiceSuite) TestReadsRetryTransientFailures() {
	s.store.readErrs = []error{apperrors.NewStoreError("find team", errConnReset)}
	s.Equal(int64(0), s.balance("falcons"))
}

func (s *LedgerServiceSuite) TestListTransactionsLimits() {
	for i := 0; i < 30; i++ {
		_, err := s.ledger.ApplyAdjustment(s.ctx, s.admin, "falcons", 1, "tick")
		s.Require().NoError(err)
	}

	all, err := s.ledger.ListTransactions(s.ctx, TransactionFilter{}, 0)
	s.Require().NoError(err)
	s.Len(all, DefaultGlobalTransactionLimit)

	some, err := s.ledger.ListTransactions(s.ctx, TransactionFilter{}, 3)
	s.Require().NoError(err)
	s.Len(some, 3)

	_, err = s.ledger.ListTransactions(s.ctx, TransactionFilter{TeamID: "eagles"}, 0)
	s.ErrorIs(err, apperrors.ErrTeamNotFound)
}

func TestEffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultGlobalTransactionLimit, effectiveLimit(TransactionFilter{}, 0))
	assert.Equal(t, DefaultTeamTransactionLimit, effectiveLimit(TransactionFilter{TeamID: "x"}, -4))
	assert.Equal(t, MaxTransactionLimit, effectiveLimit(TransactionFilter{}, 10_000))
	assert.Equal(t, 7, effectiveLimit(TransactionFilter{TeamID: "x"}, 7))
}

func TestParseDelta(t *testing.T) {
	for raw, want := range map[string]int64{"10": 10, "-3": -3, " +4 ": 4} {
		got, err := ParseDelta(raw)
		assert.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	for _, raw := range []string{"", "0", "-0", "ten", "1.5", "1e3", "NaN"} {
		_, err := ParseDelta(raw)
		assert.True(t, apperrors.IsValidation(err), raw)
	}
}
