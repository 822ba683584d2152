// ledger/reconciler/ledger_reconciler.go
package reconciler

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
	"github.com/Ftotnem/POINTS-LEDGER/shared/metrics"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
)

// TaskKey is the task the periodic pass is assigned under when several instances run.
const TaskKey = "ledger_reconcile"

// ErrRepairUnavailable is returned by RunOnce when repair was asked for but has been disabled.
var ErrRepairUnavailable = errors.New("repair requires transactional adjustment writes")

type TeamSource interface {
	ListByName(ctx context.Context) ([]models.Team, error)
	CompareAndSetPoints(ctx context.Context, id string, expected, want int64) (bool, error)
}

type DeltaSource interface {
	AggregateTeamDeltas(ctx context.Context) ([]models.TeamDeltaSum, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Leadership decides whether this instance runs the periodic pass.
type Leadership interface {
	IsResponsible(taskKey string) (bool, error)
}

// Drift is one team whose cached points differ from its transaction sum.
type Drift struct {
	TeamID       string `json:"teamId"`
	Name         string `json:"name"`
	Cached       int64  `json:"cached"`
	Computed     int64  `json:"computed"`
	Transactions int64  `json:"transactions"`
	Repaired     bool   `json:"repaired"`
}

// Report is the result of one pass.
type Report struct {
	CheckedAt     time.Time `json:"checkedAt"`
	Teams         int       `json:"teams"`
	Drifted       []Drift   `json:"drifted"`
	OrphanTeamIDs []string  `json:"orphanTeamIds,omitempty"` // ids seen in transactions but not in teams
}

// LedgerReconciler compares every team's cached points with the sum of its transactions.
type LedgerReconciler struct {
	teams       TeamSource
	deltas      DeltaSource
	leaderboard Invalidator
	leader      Leadership
	interval    time.Duration
	repair      bool
	canRepair   bool
	timeout     time.Duration
	log         *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLedgerReconciler creates a reconciler. leader may be nil, in which case every periodic pass runs.
// repair applies to periodic passes; RunOnce callers choose for themselves.
func NewLedgerReconciler(teams TeamSource, deltas DeltaSource, leaderboard Invalidator, leader Leadership, interval time.Duration, repair bool, log *logger.Logger) *LedgerReconciler {
	ctx, cancel := context.WithCancel(context.Background())
	return &LedgerReconciler{
		teams:       teams,
		deltas:      deltas,
		leaderboard: leaderboard,
		leader:      leader,
		interval:    interval,
		repair:      repair,
		canRepair:   true,
		timeout:     30 * time.Second,
		log:         log.WithField("component", "reconciler"),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// DisableRepair makes every pass report-only. Use it when adjustments are written
// without a transaction: an increment can then be visible before its record,
// and a repair in between would undo it. Call before Start.
func (lr *LedgerReconciler) DisableRepair() {
	lr.canRepair = false
	lr.repair = false
}

// Start runs a pass every interval until Stop. This should be run in a goroutine.
func (lr *LedgerReconciler) Start() {
	defer close(lr.done)

	lr.log.Infof("Ledger reconciler starting with interval %v (repair=%t)", lr.interval, lr.repair)
	ticker := time.NewTicker(lr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-lr.ctx.Done():
			lr.log.Info("Ledger reconciler shutting down")
			return
		case <-ticker.C:
			lr.periodicPass()
		}
	}
}

// Stop ends the loop and waits for a running pass to return.
func (lr *LedgerReconciler) Stop() {
	lr.cancel()
	<-lr.done
}

func (lr *LedgerReconciler) periodicPass() {
	if lr.leader != nil {
		owns, err := lr.leader.IsResponsible(TaskKey)
		if err != nil {
			lr.log.WithError(err).Warn("Could not determine reconcile ownership, skipping pass")
			return
		}
		if !owns {
			return
		}
	}

	ctx, cancel := context.WithTimeout(lr.ctx, lr.timeout)
	defer cancel()
	if _, err := lr.RunOnce(ctx, lr.repair); err != nil {
		lr.log.WithError(err).Error("Reconcile pass failed")
	}
}

// RunOnce performs one pass. With repair, drifted teams are reset to their transaction sum.
// Teams are read before transactions and repairs are compare-and-set, so an adjustment
// committed during the pass is never overwritten.
func (lr *LedgerReconciler) RunOnce(ctx context.Context, repair bool) (*Report, error) {
	if repair && !lr.canRepair {
		return nil, ErrRepairUnavailable
	}
	report, err := lr.run(ctx, repair)
	if err != nil {
		metrics.RecordReconcile(0, err)
		return nil, err
	}
	metrics.RecordReconcile(len(report.Drifted), nil)
	return report, nil
}

func (lr *LedgerReconciler) run(ctx context.Context, repair bool) (*Report, error) {
	teams, err := lr.teams.ListByName(ctx)
	if err != nil {
		return nil, err
	}
	sums, err := lr.deltas.AggregateTeamDeltas(ctx)
	if err != nil {
		return nil, err
	}

	byTeam := make(map[string]models.TeamDeltaSum, len(sums))
	for _, s := range sums {
		byTeam[s.TeamID] = s
	}

	report := &Report{CheckedAt: time.Now().UTC(), Teams: len(teams), Drifted: []Drift{}}
	repaired := 0
	for _, team := range teams {
		sum := byTeam[team.ID]
		delete(byTeam, team.ID)
		if sum.Sum == team.Points {
			continue
		}

		d := Drift{
			TeamID:       team.ID,
			Name:         team.DisplayName(),
			Cached:       team.Points,
			Computed:     sum.Sum,
			Transactions: sum.Count,
		}
		entry := lr.log.WithContext(ctx).WithFields(map[string]interface{}{
			"team_id":  team.ID,
			"cached":   team.Points,
			"computed": sum.Sum,
		})

		if repair {
			ok, err := lr.teams.CompareAndSetPoints(ctx, team.ID, team.Points, sum.Sum)
			if err != nil {
				return nil, err
			}
			d.Repaired = ok
			if ok {
				repaired++
				entry.Warn("Team points drifted from ledger, repaired")
			} else {
				entry.Info("Team changed during reconcile, repair skipped")
			}
		} else {
			entry.Warn("Team points drifted from ledger")
		}
		report.Drifted = append(report.Drifted, d)
	}

	for teamID := range byTeam {
		report.OrphanTeamIDs = append(report.OrphanTeamIDs, teamID)
		lr.log.WithContext(ctx).WithField("team_id", teamID).Warn("Transactions reference an unknown team")
	}
	sort.Strings(report.OrphanTeamIDs)

	if repaired > 0 && lr.leaderboard != nil {
		lr.leaderboard.Invalidate(ctx)
	}
	lr.log.WithContext(ctx).Debugf("Reconciled %d teams, %d drifted, %d repaired", len(teams), len(report.Drifted), repaired)
	return report, nil
}
