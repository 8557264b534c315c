package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/observ"
	"github.com/lalith-99/orgcast/internal/repository"
	"github.com/lalith-99/orgcast/internal/repository/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecordPersistsEntry(t *testing.T) {
	store := memory.New()
	trail := NewTrail(store, zap.NewNop(), nil, 8)

	actor := Actor{ID: uuid.New(), Role: models.RoleCityCoordinator, RequestID: "req-1"}
	sc := models.NewScope(uuid.New())
	actor.Scope = &sc
	trail.Record(context.Background(), ActionBroadcastCreate,
		Entity{Type: "broadcast", ID: "b-1"}, actor, nil, map[string]int{"recipients": 3})

	require.NoError(t, trail.Close(context.Background()))

	entries, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.Len(t, e.ID, 26)
	require.Equal(t, ActionBroadcastCreate, e.Action)
	require.Equal(t, "b-1", e.EntityID)
	require.Equal(t, actor.ID, *e.ActorID)
	require.Equal(t, "req-1", e.RequestID)
	require.Nil(t, e.Before)
	require.JSONEq(t, `{"recipients":3}`, string(e.After))
	require.NotEmpty(t, e.Scope)
}

func TestRecordSystemActor(t *testing.T) {
	store := memory.New()
	trail := NewTrail(store, zap.NewNop(), nil, 8)

	trail.Record(context.Background(), ActionPushPrune, Entity{Type: "push_endpoint"}, Actor{}, nil, nil)
	require.NoError(t, trail.Close(context.Background()))

	entries, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Nil(t, entries[0].ActorID)
}

type failingRepo struct{}

func (failingRepo) Append(context.Context, *models.AuditEntry) error {
	return errors.New("disk full")
}

func (failingRepo) ListRecent(context.Context, int) ([]models.AuditEntry, error) {
	return nil, nil
}

func TestRecordSurvivesStoreFailure(t *testing.T) {
	metrics := observ.NewMetrics(prometheus.NewRegistry())
	trail := NewTrail(failingRepo{}, zap.NewNop(), metrics, 8)

	require.NotPanics(t, func() {
		trail.Record(context.Background(), ActionGuardReject, Entity{Type: "principal"}, Actor{}, nil, nil)
	})
	require.NoError(t, trail.Close(context.Background()))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.AuditFailed))
}

type gatedRepo struct {
	repository.AuditRepository
	gate chan struct{}
}

func (g gatedRepo) Append(ctx context.Context, e *models.AuditEntry) error {
	<-g.gate
	return g.AuditRepository.Append(ctx, e)
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	metrics := observ.NewMetrics(prometheus.NewRegistry())
	gate := make(chan struct{})
	trail := NewTrail(gatedRepo{AuditRepository: memory.New(), gate: gate}, zap.NewNop(), metrics, 1)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		trail.Record(ctx, ActionGuardReject, Entity{Type: "principal"}, Actor{}, nil, nil)
	}
	// One entry is held by the worker and one sits in the queue; at least
	// three had nowhere to go.
	require.GreaterOrEqual(t, testutil.ToFloat64(metrics.AuditDropped), 3.0)

	close(gate)
	require.NoError(t, trail.Close(ctx))
}

func TestRecordAfterCloseIsDropped(t *testing.T) {
	store := memory.New()
	trail := NewTrail(store, zap.NewNop(), nil, 8)
	require.NoError(t, trail.Close(context.Background()))

	require.NotPanics(t, func() {
		trail.Record(context.Background(), ActionGuardReject, Entity{Type: "principal"}, Actor{}, nil, nil)
	})
	entries, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCloseHonoursContext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	trail := NewTrail(gatedRepo{AuditRepository: memory.New(), gate: gate}, zap.NewNop(), nil, 4)
	trail.Record(context.Background(), ActionGuardReject, Entity{Type: "principal"}, Actor{}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, trail.Close(ctx), context.DeadlineExceeded)
}

func TestActorContext(t *testing.T) {
	require.Equal(t, Actor{}, ActorFrom(context.Background()))

	a := Actor{ID: uuid.New(), Role: models.RoleAreaManager}
	require.Equal(t, a, ActorFrom(WithActor(context.Background(), a)))
}
