// ledger/service/interfaces.go
package service

import (
	"context"

	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
)

// TeamRepository is the read side of the teams collection.
type TeamRepository interface {
	FindByID(ctx context.Context, id string) (*models.Team, error)
	FindByAuthUID(ctx context.Context, subjectID string) ([]models.Team, error)
	ListByName(ctx context.Context) ([]models.Team, error)
	ListByPointsDesc(ctx context.Context) ([]models.Team, error)
}

// TransactionRepository is the read side of the transactions collection.
type TransactionRepository interface {
	ListRecent(ctx context.Context, limit int64) ([]models.Transaction, error)
	ListByTeam(ctx context.Context, teamID string, limit int64) ([]models.Transaction, error)
}

// AdminRepository answers whether an administrator marker exists.
type AdminRepository interface {
	Exists(ctx context.Context, subjectID string) (bool, error)
}

// AdjustmentWriter moves a team's points and records the transaction as one unit.
type AdjustmentWriter interface {
	Apply(ctx context.Context, tx *models.Transaction) error
}

// LeaderboardCache holds a ranked snapshot between adjustments.
// Snapshots belong to a generation. Invalidate starts a new one, so a snapshot
// stored under an older generation is never served again.
type LeaderboardCache interface {
	Get(ctx context.Context) (rows []models.RankedTeam, generation int64, hit bool, err error)
	Set(ctx context.Context, generation int64, rows []models.RankedTeam) error
	Invalidate(ctx context.Context) error
}

// SessionRepository maps session tokens to principals.
type SessionRepository interface {
	Create(ctx context.Context, subjectID, email string) (string, error)
	Resolve(ctx context.Context, token string) (*models.SessionRecord, error)
	Delete(ctx context.Context, token string) error
}

// IdentityProvider authenticates email/password credentials.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (*models.Principal, error)
}
