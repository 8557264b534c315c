package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCapabilityTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		role         Role
		canBroadcast bool
		assignable   bool
	}{
		{RoleSuperAdmin, true, false},
		{RoleAreaManager, true, true},
		{RoleCityCoordinator, true, true},
		{RoleActivistCoordinator, false, true},
		{RoleActivist, false, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.canBroadcast, tc.role.CanBroadcast(), tc.role)
		require.Equal(t, tc.assignable, tc.role.Assignable(), tc.role)
	}

	require.False(t, Role("JANITOR").CanBroadcast())
	require.False(t, Role("JANITOR").Assignable())
}

func TestRecipientRolesAreStrictlyBelowSender(t *testing.T) {
	t.Parallel()

	for _, sender := range AllRoles() {
		c, ok := sender.Capability()
		require.True(t, ok)
		for _, target := range c.RecipientRoles {
			require.True(t, sender.Outranks(target), "%s -> %s", sender, target)
			require.True(t, sender.CanAddress(target))
		}
	}
	require.False(t, RoleCityCoordinator.CanAddress(RoleAreaManager))
	require.False(t, RoleAreaManager.CanAddress(RoleActivist))
}

func TestRelationHoldersMatchCapabilities(t *testing.T) {
	t.Parallel()

	for rel, spec := range relations {
		require.True(t, spec.Holder.HoldsRelation(rel), rel)
	}
	require.False(t, RoleCityCoordinator.HoldsRelation(RelationManagesRegion))
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	r, err := ParseRole("CITY_COORDINATOR")
	require.NoError(t, err)
	require.Equal(t, RoleCityCoordinator, r)

	_, err = ParseRole("city_coordinator")
	require.Error(t, err)
}

func TestScope(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()

	require.True(t, Scope{}.IsEmpty())
	require.False(t, AllUnits().IsEmpty())
	require.True(t, AllUnits().Contains(a))
	require.Nil(t, AllUnits().IDs())

	s := NewScope(a, b, a)
	require.Equal(t, 2, s.Len())
	require.True(t, s.Contains(b))
	require.False(t, s.Contains(uuid.New()))

	data, err := json.Marshal(s)
	require.NoError(t, err)
	var back Scope
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, s.IDs(), back.IDs())

	data, err = json.Marshal(AllUnits())
	require.NoError(t, err)
	require.JSONEq(t, `{"all":true,"units":[]}`, string(data))
}

func TestNewBreakdownSumsToTotal(t *testing.T) {
	t.Parallel()

	north, south := uuid.New(), uuid.New()
	rs := []Recipient{
		{PrincipalID: uuid.New(), Role: RoleActivistCoordinator, UnitID: north, UnitName: "North"},
		{PrincipalID: uuid.New(), Role: RoleCityCoordinator, UnitID: south, UnitName: "South"},
		{PrincipalID: uuid.New(), Role: RoleActivistCoordinator, UnitID: north, UnitName: "North"},
	}

	b := NewBreakdown(rs)
	require.Equal(t, 3, b.Total)

	byRole := 0
	for _, rc := range b.ByRole {
		byRole += rc.Count
	}
	byUnit := 0
	for _, uc := range b.ByUnit {
		byUnit += uc.Count
	}
	require.Equal(t, b.Total, byRole)
	require.Equal(t, b.Total, byUnit)

	require.Equal(t, RoleCityCoordinator, b.ByRole[0].Role)
	require.Equal(t, "North", b.ByUnit[0].UnitName)
	require.Equal(t, 2, b.ByUnit[0].Count)

	require.Nil(t, b.Summary().Recipients)
	require.Len(t, b.Recipients, 3)
}

func TestNewBreakdownEmpty(t *testing.T) {
	t.Parallel()

	b := NewBreakdown(nil)
	require.Equal(t, 0, b.Total)
	require.NotNil(t, b.ByRole)
	require.NotNil(t, b.ByUnit)
}
