package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
)

func newAccessFixture() (*memStore, *AccessService) {
	store := newMemStore()
	store.addTeam(models.Team{ID: "falcons", Name: "Falcons", AuthUID: "falcon-captain"})
	store.addTeam(models.Team{ID: "owls", Name: "Owls", AuthUID: "admin-and-owl"})
	store.admins["admin-1"] = true
	store.admins["admin-and-owl"] = true
	return store, NewAccessService(store, store, fastReads(), logger.Discard())
}

func TestResolveRole(t *testing.T) {
	_, access := newAccessFixture()
	ctx := context.Background()

	role, err := access.ResolveRole(ctx, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdministrator, role.Kind)
	assert.Equal(t, "/admin/dashboard", role.LandingPath())

	role, err = access.ResolveRole(ctx, "falcon-captain")
	require.NoError(t, err)
	assert.Equal(t, RoleTeamMember, role.Kind)
	require.NotNil(t, role.Team)
	assert.Equal(t, "falcons", role.Team.ID)
	assert.Equal(t, "/team/dashboard", role.LandingPath())

	role, err = access.ResolveRole(ctx, "stranger")
	require.NoError(t, err)
	assert.Equal(t, RoleUnlinked, role.Kind)
	assert.Empty(t, role.LandingPath())
}

func TestAdministratorWinsOverTeamLink(t *testing.T) {
	_, access := newAccessFixture()

	for i := 0; i < 10; i++ {
		role, err := access.ResolveRole(context.Background(), "admin-and-owl")
		require.NoError(t, err)
		assert.True(t, role.IsAdministrator())
		assert.Nil(t, role.Team)
	}
}

func TestEmptySubjectIsNeverAdministrator(t *testing.T) {
	store, access := newAccessFixture()
	store.admins[""] = true

	ok, err := access.IsAdministrator(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDuplicateTeamLinkIsFlagged(t *testing.T) {
	store, access := newAccessFixture()
	store.addTeam(models.Team{ID: "hawks", Name: "Hawks", AuthUID: "falcon-captain"})

	team, err := access.ResolveLinkedTeam(context.Background(), "falcon-captain")
	assert.Nil(t, team)
	assert.ErrorIs(t, err, apperrors.ErrAmbiguousTeamLink)

	_, err = access.ResolveRole(context.Background(), "falcon-captain")
	assert.ErrorIs(t, err, apperrors.ErrAmbiguousTeamLink)
}

func TestRequireAdministrator(t *testing.T) {
	_, access := newAccessFixture()
	ctx := context.Background()

	assert.NoError(t, access.RequireAdministrator(ctx, Session{SubjectID: "admin-1"}))
	assert.ErrorIs(t, access.RequireAdministrator(ctx, Session{SubjectID: "falcon-captain"}), apperrors.ErrNotAdministrator)
	assert.ErrorIs(t, access.RequireAdministrator(ctx, Session{}), apperrors.ErrMissingSession)
}
