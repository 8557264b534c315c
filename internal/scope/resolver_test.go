package scope

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
	"github.com/lalith-99/orgcast/internal/testkit"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seed(t *testing.T) *testkit.Hierarchy {
	t.Helper()
	h := testkit.NewHierarchy(t)
	h.Region("North")
	h.Region("South")
	h.City("Haifa", "North")
	h.City("Akko", "North")
	h.City("Beersheba", "South")
	h.Neighborhood("Hadar", "Haifa")
	h.Neighborhood("Old City", "Akko")
	h.Neighborhood("Ramot", "Beersheba")
	return h
}

func TestResolveSuperAdminIsAllUnits(t *testing.T) {
	h := seed(t)
	admin := h.Principal("Root", models.RoleSuperAdmin)

	s, err := NewResolver(h.Store, zap.NewNop()).Resolve(context.Background(), admin)
	require.NoError(t, err)
	require.True(t, s.IsAll())
}

func TestResolveAreaManagerWithoutAssignmentIsEmpty(t *testing.T) {
	h := seed(t)
	am := h.Principal("Dana", models.RoleAreaManager)

	s, err := NewResolver(h.Store, zap.NewNop()).Resolve(context.Background(), am)
	require.NoError(t, err)
	require.False(t, s.IsAll())
	require.True(t, s.IsEmpty())
}

func TestResolveAreaManagerCoversCitiesOfRegion(t *testing.T) {
	h := seed(t)
	h.Principal("Dana", models.RoleAreaManager)
	h.Assign("Dana", models.RelationManagesRegion, "North")

	s, err := NewResolver(h.Store, zap.NewNop()).Resolve(context.Background(), h.Get("Dana"))
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	require.True(t, s.Contains(h.Unit("Haifa").ID))
	require.True(t, s.Contains(h.Unit("Akko").ID))
	require.False(t, s.Contains(h.Unit("Beersheba").ID))
}

func TestResolveAreaManagerDeduplicatesAcrossRegions(t *testing.T) {
	h := seed(t)
	h.Principal("Dana", models.RoleAreaManager)
	h.Assign("Dana", models.RelationManagesRegion, "North")
	h.Assign("Dana", models.RelationManagesRegion, "South")

	s, err := NewResolver(h.Store, zap.NewNop()).Resolve(context.Background(), h.Get("Dana"))
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
}

func TestResolveCityCoordinator(t *testing.T) {
	h := seed(t)
	h.Principal("Yossi", models.RoleCityCoordinator)
	h.Assign("Yossi", models.RelationCoordinatesCity, "Akko")

	s, err := NewResolver(h.Store, zap.NewNop()).Resolve(context.Background(), h.Get("Yossi"))
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{h.Unit("Akko").ID}, s.IDs())
}

func TestResolveActivistCoordinatorUnionsBothRelations(t *testing.T) {
	h := seed(t)
	h.Principal("Maya", models.RoleActivistCoordinator)
	h.Assign("Maya", models.RelationCoordinatorOf, "Haifa")
	// Divergent: a neighborhood in another city.
	h.Assign("Maya", models.RelationAssignedNeighborhood, "Ramot", "Haifa")

	s, err := NewResolver(h.Store, zap.NewNop()).Resolve(context.Background(), h.Get("Maya"))
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	require.True(t, s.Contains(h.Unit("Haifa").ID))
	require.True(t, s.Contains(h.Unit("Beersheba").ID))
}

func TestResolveActivistCoordinatorNeighborhoodOnly(t *testing.T) {
	h := seed(t)
	h.Principal("Maya", models.RoleActivistCoordinator)
	h.Assign("Maya", models.RelationAssignedNeighborhood, "Hadar")

	s, err := NewResolver(h.Store, zap.NewNop()).Resolve(context.Background(), h.Get("Maya"))
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{h.Unit("Haifa").ID}, s.IDs())
}

func TestResolveActivistUsesProfileCity(t *testing.T) {
	h := seed(t)
	h.Principal("Maya", models.RoleActivistCoordinator)
	h.Assign("Maya", models.RelationCoordinatorOf, "Akko")
	h.Activist("Noa", "Old City", "Maya", true)

	s, err := NewResolver(h.Store, zap.NewNop()).Resolve(context.Background(), h.Get("Noa"))
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{h.Unit("Akko").ID}, s.IDs())
}

func TestResolveActivistWithoutProfileIsEmpty(t *testing.T) {
	h := seed(t)
	lone := h.Principal("Lone", models.RoleActivist)

	s, err := NewResolver(h.Store, zap.NewNop()).Resolve(context.Background(), lone)
	require.NoError(t, err)
	require.True(t, s.IsEmpty())
}

func TestResolveFailsClosed(t *testing.T) {
	h := seed(t)
	h.Principal("Yossi", models.RoleCityCoordinator)
	h.Assign("Yossi", models.RelationCoordinatesCity, "Akko")
	h.Deactivate("Yossi")

	r := NewResolver(h.Store, zap.NewNop())

	s, err := r.Resolve(context.Background(), h.Get("Yossi"))
	require.NoError(t, err)
	require.True(t, s.IsEmpty(), "inactive principal")

	s, err = r.Resolve(context.Background(), models.Principal{ID: uuid.New(), Role: "JANITOR", IsActive: true})
	require.NoError(t, err)
	require.True(t, s.IsEmpty(), "unknown role")
}

func TestResolveIgnoresRelationsOfOtherRoles(t *testing.T) {
	h := seed(t)
	h.Principal("Yossi", models.RoleCityCoordinator)
	// Wrong relation for the role; the raw store accepts it, the resolver must not use it.
	h.Assign("Yossi", models.RelationManagesRegion, "North")

	s, err := NewResolver(h.Store, zap.NewNop()).Resolve(context.Background(), h.Get("Yossi"))
	require.NoError(t, err)
	require.True(t, s.IsEmpty())
}

type failingReader struct {
	repository.HierarchyReader
}

func (failingReader) ListAssignments(context.Context, repository.AssignmentFilter) ([]models.ScopeAssignment, error) {
	return nil, errors.New("connection reset")
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	h := seed(t)
	am := h.Principal("Dana", models.RoleAreaManager)

	_, err := NewResolver(failingReader{h.Store}, zap.NewNop()).Resolve(context.Background(), am)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")
}
