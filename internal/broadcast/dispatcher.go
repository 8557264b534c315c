// Package broadcast records task broadcasts and hands them to push delivery.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/apperr"
	"github.com/lalith-99/orgcast/internal/audit"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/observ"
	"github.com/lalith-99/orgcast/internal/push"
	"github.com/lalith-99/orgcast/internal/repository"
	"go.uber.org/zap"
)

// Deliverer is the push side of a dispatch.
type Deliverer interface {
	Deliver(ctx context.Context, recipientIDs []uuid.UUID, p push.Payload) push.Report
}

// ScopeSource resolves the sender scope recorded with each broadcast.
type ScopeSource interface {
	Resolve(ctx context.Context, p models.Principal) (models.Scope, error)
}

// Auditor is the part of audit.Trail the dispatcher needs.
type Auditor interface {
	Record(ctx context.Context, action string, entity audit.Entity, actor audit.Actor, before, after any)
}

// Dispatcher turns an authorised recipient list into a committed broadcast.
type Dispatcher struct {
	repo      repository.BroadcastRepository
	deliverer Deliverer
	scopes    ScopeSource
	audit     Auditor
	metrics   *observ.Metrics
	logger    *zap.Logger
	now       func() time.Time

	inflight sync.WaitGroup
}

// NewDispatcher builds a dispatcher. deliverer, scopes and metrics may be nil.
func NewDispatcher(repo repository.BroadcastRepository, deliverer Deliverer, scopes ScopeSource, auditor Auditor, metrics *observ.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		deliverer: deliverer,
		scopes:    scopes,
		audit:     auditor,
		metrics:   metrics,
		logger:    logger.Named("dispatch"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch writes the broadcast and one pending assignment per distinct
// recipient in one transaction, then starts push delivery in the
// background. The broadcast counts as sent once committed; push outcome
// never changes the result.
func (d *Dispatcher) Dispatch(ctx context.Context, sender models.Principal, recipients []models.Recipient, content models.Content, mode models.SendMode) (*models.Broadcast, error) {
	rs := distinct(recipients)
	if len(rs) == 0 {
		return nil, apperr.Unauthorized("no authorized recipients")
	}

	created := d.now()
	b := &models.Broadcast{
		ID:             uuid.New(),
		SenderID:       sender.ID,
		SenderRole:     sender.Role,
		Title:          content.Title,
		Body:           content.Body,
		Priority:       content.Priority,
		Mode:           mode,
		RecipientCount: len(rs),
		Breakdown:      models.NewBreakdown(rs).Summary(),
		CreatedAt:      created,
	}

	err := d.repo.WithinTx(ctx, func(tx repository.BroadcastTx) error {
		if err := tx.InsertBroadcast(ctx, b); err != nil {
			return fmt.Errorf("insert broadcast: %w", err)
		}
		for _, r := range rs {
			a := &models.DeliveryAssignment{
				ID:          uuid.New(),
				BroadcastID: b.ID,
				RecipientID: r.PrincipalID,
				Status:      models.AssignmentPending,
				CreatedAt:   created,
			}
			if err := tx.InsertAssignment(ctx, a); err != nil {
				return fmt.Errorf("insert assignment for %s: %w", r.PrincipalID, err)
			}
		}
		return nil
	})
	if err != nil {
		d.logger.Error("broadcast not recorded",
			zap.Stringer("sender_id", sender.ID),
			zap.Int("recipients", len(rs)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("dispatch broadcast: %w", err)
	}

	if d.metrics != nil {
		d.metrics.Broadcasts.WithLabelValues(sender.Role.String()).Inc()
		d.metrics.BroadcastRecipients.Observe(float64(len(rs)))
	}

	d.audit.Record(ctx, audit.ActionBroadcastCreate,
		audit.Entity{Type: "broadcast", ID: b.ID.String()}, d.actor(ctx, sender), nil, b)

	d.logger.Info("broadcast recorded",
		zap.Stringer("broadcast_id", b.ID),
		zap.Stringer("sender_id", sender.ID),
		zap.String("mode", string(mode)),
		zap.Int("recipients", len(rs)),
	)

	d.notify(ctx, b, models.RecipientIDs(rs))
	return b, nil
}

// actor is the request actor, falling back to sender, with the sender's
// scope attached when the request did not carry one.
func (d *Dispatcher) actor(ctx context.Context, sender models.Principal) audit.Actor {
	a := audit.ActorFrom(ctx)
	if a.ID != sender.ID {
		a = audit.Actor{ID: sender.ID, Role: sender.Role, RequestID: a.RequestID}
	}
	if a.Scope != nil || d.scopes == nil {
		return a
	}
	sc, err := d.scopes.Resolve(ctx, sender)
	if err != nil {
		d.logger.Warn("resolve scope for audit", zap.Stringer("sender_id", sender.ID), zap.Error(err))
		return a
	}
	a.Scope = &sc
	return a
}

// notify runs push delivery detached from the request and marks reached
// recipients as delivered.
func (d *Dispatcher) notify(ctx context.Context, b *models.Broadcast, ids []uuid.UUID) {
	if d.deliverer == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	payload := push.Payload{
		BroadcastID: b.ID,
		Title:       b.Title,
		Body:        b.Body,
		Priority:    b.Priority,
		URL:         "/inbox",
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("push delivery panicked", zap.Stringer("broadcast_id", b.ID), zap.Any("panic", r))
			}
		}()

		rep := d.deliverer.Deliver(bg, ids, payload)
		if len(rep.DeliveredTo) == 0 {
			return
		}
		n, err := d.repo.MarkDelivered(bg, b.ID, rep.DeliveredTo, d.now())
		if err != nil {
			d.logger.Warn("mark delivered", zap.Stringer("broadcast_id", b.ID), zap.Error(err))
			return
		}
		d.logger.Debug("assignments delivered", zap.Stringer("broadcast_id", b.ID), zap.Int("count", n))
	}()
}

// Wait blocks until background deliveries finish or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func distinct(rs []models.Recipient) []models.Recipient {
	seen := make(map[uuid.UUID]struct{}, len(rs))
	out := make([]models.Recipient, 0, len(rs))
	for _, r := range rs {
		if _, ok := seen[r.PrincipalID]; ok {
			continue
		}
		seen[r.PrincipalID] = struct{}{}
		out = append(out, r)
	}
	return out
}
