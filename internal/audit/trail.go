// Package audit records mutations and guard rejections without ever
// failing the operation being recorded.
package audit

import (
	"context"
	"encoding/json"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/observ"
	"github.com/lalith-99/orgcast/internal/repository"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Action names.
const (
	ActionBroadcastCreate  = "broadcast.create"
	ActionGuardReject      = "guard.reject"
	ActionPrincipalCreate  = "principal.create"
	ActionPrincipalUpdate  = "principal.update"
	ActionActivistCreate   = "activist.create"
	ActionActivistUpdate   = "activist.update"
	ActionAssignmentCreate = "assignment.create"
	ActionAssignmentDelete = "assignment.delete"
	ActionUnitCreate       = "unit.create"
	ActionPushPrune        = "push.prune"
)

// Entity identifies what an entry is about.
type Entity struct {
	Type string
	ID   string
}

// Actor is who caused the entry. The zero Actor means "system".
type Actor struct {
	ID        uuid.UUID
	Role      models.Role
	RequestID string
	Scope     *models.Scope
}

type actorKey struct{}

// WithActor stores a in ctx for code that records on behalf of a request.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx, or the zero Actor.
func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

func newID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Trail queues entries and persists them from one background worker.
type Trail struct {
	repo    repository.AuditRepository
	logger  *zap.Logger
	metrics *observ.Metrics

	queue chan models.AuditEntry
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewTrail starts the worker. queueSize bounds how many entries may wait;
// beyond that Record drops and logs.
func NewTrail(repo repository.AuditRepository, logger *zap.Logger, metrics *observ.Metrics, queueSize int) *Trail {
	if queueSize <= 0 {
		queueSize = 256
	}
	t := &Trail{
		repo:    repo,
		logger:  logger.Named("audit"),
		metrics: metrics,
		queue:   make(chan models.AuditEntry, queueSize),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

// Record enqueues one entry. It never blocks on the store and never
// returns an error; before and after are JSON-encoded when non-nil.
func (t *Trail) Record(ctx context.Context, action string, entity Entity, actor Actor, before, after any) {
	now := time.Now().UTC()
	e := models.AuditEntry{
		ID:         newID(now),
		Action:     action,
		EntityType: entity.Type,
		EntityID:   entity.ID,
		ActorRole:  actor.Role,
		RequestID:  actor.RequestID,
		Before:     t.encode(before),
		After:      t.encode(after),
		CreatedAt:  now,
	}
	if actor.ID != uuid.Nil {
		id := actor.ID
		e.ActorID = &id
	}
	if actor.Scope != nil {
		e.Scope = t.encode(actor.Scope)
	}

	t.logger.Info("audit",
		zap.String("audit_id", e.ID),
		zap.String("action", action),
		zap.String("entity_type", entity.Type),
		zap.String("entity_id", entity.ID),
		zap.Stringer("actor_id", actor.ID),
		zap.String("request_id", actor.RequestID),
	)

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.drop(e, "trail closed")
		return
	}
	select {
	case t.queue <- e:
	default:
		t.drop(e, "queue full")
	}
}

// Close stops accepting entries and waits for queued ones to be written,
// or for ctx to end.
func (t *Trail) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Trail) run() {
	defer close(t.done)
	for e := range t.queue {
		t.write(e)
	}
}

func (t *Trail) write(e models.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("audit append panicked", zap.String("audit_id", e.ID), zap.Any("panic", r))
			t.inc(func(m *observ.Metrics) { m.AuditFailed.Inc() })
		}
	}()

	if err := t.repo.Append(ctx, &e); err != nil {
		t.logger.Error("audit append failed",
			zap.String("audit_id", e.ID),
			zap.String("action", e.Action),
			zap.Error(err),
		)
		t.inc(func(m *observ.Metrics) { m.AuditFailed.Inc() })
		return
	}
	t.inc(func(m *observ.Metrics) { m.AuditRecorded.Inc() })
}

func (t *Trail) drop(e models.AuditEntry, reason string) {
	t.logger.Warn("audit entry dropped",
		zap.String("audit_id", e.ID),
		zap.String("action", e.Action),
		zap.String("reason", reason),
	)
	t.inc(func(m *observ.Metrics) { m.AuditDropped.Inc() })
}

func (t *Trail) encode(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.logger.Warn("audit payload not encodable", zap.Error(err))
		return nil
	}
	return b
}

func (t *Trail) inc(f func(*observ.Metrics)) {
	if t.metrics != nil {
		f(t.metrics)
	}
}
