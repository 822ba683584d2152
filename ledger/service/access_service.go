// ledger/service/access_service.go
package service

import (
	"context"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
	"github.com/Ftotnem/POINTS-LEDGER/shared/retry"
)

// AccessService resolves what a principal may do.
type AccessService struct {
	admins AdminRepository
	teams  TeamRepository
	reads  retry.Policy
	log    *logger.Logger
}

func NewAccessService(admins AdminRepository, teams TeamRepository, reads retry.Policy, log *logger.Logger) *AccessService {
	return &AccessService{
		admins: admins,
		teams:  teams,
		reads:  reads,
		log:    log.WithField("component", "access"),
	}
}

// IsAdministrator reports whether an administrator marker exists for subjectID.
func (s *AccessService) IsAdministrator(ctx context.Context, subjectID string) (bool, error) {
	if subjectID == "" {
		return false, nil
	}
	return retry.Value(ctx, s.reads, func(ctx context.Context) (bool, error) {
		return s.admins.Exists(ctx, subjectID)
	})
}

// ResolveLinkedTeam returns the team linked to subjectID, or nil if there is none.
// More than one linked team is a data anomaly and yields ErrAmbiguousTeamLink.
func (s *AccessService) ResolveLinkedTeam(ctx context.Context, subjectID string) (*models.Team, error) {
	if subjectID == "" {
		return nil, nil
	}
	teams, err := retry.Value(ctx, s.reads, func(ctx context.Context) ([]models.Team, error) {
		return s.teams.FindByAuthUID(ctx, subjectID)
	})
	if err != nil {
		return nil, err
	}

	switch len(teams) {
	case 0:
		return nil, nil
	case 1:
		return &teams[0], nil
	default:
		ids := make([]string, len(teams))
		for i, t := range teams {
			ids[i] = t.ID
		}
		s.log.WithContext(ctx).WithFields(map[string]interface{}{
			"subject_id": subjectID,
			"team_ids":   ids,
		}).Warn("Subject is linked to more than one team")
		return nil, apperrors.ErrAmbiguousTeamLink
	}
}

// ResolveRole resolves subjectID to exactly one role. Administrator capability wins over a team link.
func (s *AccessService) ResolveRole(ctx context.Context, subjectID string) (Role, error) {
	isAdmin, err := s.IsAdministrator(ctx, subjectID)
	if err != nil {
		return UnlinkedRole(), err
	}
	if isAdmin {
		return AdministratorRole(), nil
	}

	team, err := s.ResolveLinkedTeam(ctx, subjectID)
	if err != nil {
		return UnlinkedRole(), err
	}
	if team != nil {
		return TeamMemberRole(team), nil
	}
	return UnlinkedRole(), nil
}

// RequireAdministrator fails with ErrNotAdministrator unless sess holds administrator capability.
func (s *AccessService) RequireAdministrator(ctx context.Context, sess Session) error {
	if sess.SubjectID == "" {
		return apperrors.ErrMissingSession
	}
	ok, err := s.IsAdministrator(ctx, sess.SubjectID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrNotAdministrator
	}
	return nil
}
