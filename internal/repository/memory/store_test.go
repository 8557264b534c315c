package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
	"github.com/stretchr/testify/require"
)

// One store serves both the hierarchy and the broadcast interfaces, so
// delivery rows and scope assignments must stay apart.
func TestDeliveriesAndScopeAssignmentsAreSeparate(t *testing.T) {
	ctx := context.Background()
	s := New()

	coordinator := uuid.New()
	city := uuid.New()
	require.NoError(t, s.CreateAssignment(ctx, &models.ScopeAssignment{
		PrincipalID: coordinator,
		UnitID:      city,
		Relation:    models.RelationCoordinatorOf,
	}))

	b := &models.Broadcast{SenderID: coordinator, Title: "t", Body: "b"}
	recipients := []uuid.UUID{uuid.New(), uuid.New()}
	err := s.WithinTx(ctx, func(tx repository.BroadcastTx) error {
		if err := tx.InsertBroadcast(ctx, b); err != nil {
			return err
		}
		for _, id := range recipients {
			if err := tx.InsertAssignment(ctx, &models.DeliveryAssignment{BroadcastID: b.ID, RecipientID: id}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	deliveries, err := s.ListDeliveries(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	for _, d := range deliveries {
		require.Equal(t, models.AssignmentPending, d.Status)
		require.Contains(t, recipients, d.RecipientID)
	}

	scopes, err := s.ListAssignments(ctx, repository.AssignmentFilter{PrincipalIDs: []uuid.UUID{coordinator}})
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	require.Equal(t, city, scopes[0].UnitID)

	none, err := s.ListDeliveries(ctx, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}
