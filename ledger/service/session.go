// ledger/service/session.go
package service

import "github.com/Ftotnem/POINTS-LEDGER/shared/models"

// Session is the signed-in principal a request acts as.
// It is built once per request and passed explicitly to every operation.
type Session struct {
	Token     string
	SubjectID string
	Email     string
}

// RoleKind tags the variant held by a Role.
type RoleKind int

const (
	RoleUnlinked RoleKind = iota
	RoleAdministrator
	RoleTeamMember
)

func (k RoleKind) String() string {
	switch k {
	case RoleAdministrator:
		return "administrator"
	case RoleTeamMember:
		return "team_member"
	default:
		return "unlinked"
	}
}

// Role is the resolved capability of a principal. Team is set only for RoleTeamMember.
type Role struct {
	Kind RoleKind
	Team *models.Team
}

func AdministratorRole() Role { return Role{Kind: RoleAdministrator} }

func TeamMemberRole(team *models.Team) Role { return Role{Kind: RoleTeamMember, Team: team} }

func UnlinkedRole() Role { return Role{Kind: RoleUnlinked} }

func (r Role) IsAdministrator() bool { return r.Kind == RoleAdministrator }

// LandingPath is the dashboard a principal with this role is routed to. Unlinked principals have none.
func (r Role) LandingPath() string {
	switch r.Kind {
	case RoleAdministrator:
		return "/admin/dashboard"
	case RoleTeamMember:
		return "/team/dashboard"
	default:
		return ""
	}
}
