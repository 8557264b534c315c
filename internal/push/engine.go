// Package push fans a notification out to every fresh device endpoint of
// a set of recipients.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/audit"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/observ"
	"github.com/lalith-99/orgcast/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEndpointGone is returned by a Transport when the push service
	// reports that the subscription no longer exists. Any other error is
	// transient.
	ErrEndpointGone = errors.New("push endpoint gone")
	// ErrPayloadTooLarge means the message did not fit one push record. The
	// endpoint is kept.
	ErrPayloadTooLarge = errors.New("push payload too large")
)

// MaxBodyRunes bounds the body excerpt a device receives. The full text is
// read from the inbox.
const MaxBodyRunes = 200

// Transport performs one delivery attempt to one endpoint.
type Transport interface {
	Send(ctx context.Context, endpoint models.PushEndpoint, payload []byte, ttl time.Duration) error
}

// Auditor is the part of audit.Trail the engine needs.
type Auditor interface {
	Record(ctx context.Context, action string, entity audit.Entity, actor audit.Actor, before, after any)
}

// Payload is what the device receives: the title, a body excerpt and a link
// to the inbox.
type Payload struct {
	BroadcastID uuid.UUID       `json:"broadcast_id"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	Priority    models.Priority `json:"priority"`
	URL         string          `json:"url,omitempty"`
}

type Config struct {
	// BatchSize caps how many recipients are in flight at once.
	BatchSize int
	// TTL is how long the push service may hold an undelivered message.
	TTL time.Duration
	// Freshness excludes endpoints not used within this window.
	Freshness time.Duration
	// AttemptTimeout bounds one endpoint attempt.
	AttemptTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:      10,
		TTL:            24 * time.Hour,
		Freshness:      30 * 24 * time.Hour,
		AttemptTimeout: 10 * time.Second,
	}
}

// Report summarises one Deliver call. Delivered is the number of endpoints
// that accepted the message; it is for observability only.
type Report struct {
	Delivered int
	Attempted int
	Transient int
	Pruned    int
	// Recipients that had at least one successful endpoint.
	DeliveredTo []uuid.UUID
}

type Engine struct {
	endpoints repository.PushEndpointRepository
	transport Transport
	cfg       Config
	audit     Auditor
	metrics   *observ.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine builds an engine. auditor and metrics may be nil.
func NewEngine(endpoints repository.PushEndpointRepository, transport Transport, cfg Config, auditor Auditor, metrics *observ.Metrics, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = def.Freshness
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	return &Engine{
		endpoints: endpoints,
		transport: transport,
		cfg:       cfg,
		audit:     auditor,
		metrics:   metrics,
		logger:    logger.Named("push"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeGone
	outcomeTransient
)

func (o outcome) String() string {
	switch o {
	case outcomeDelivered:
		return "delivered"
	case outcomeGone:
		return "gone"
	}
	return "transient"
}

// Deliver makes one attempt per fresh endpoint of each recipient, batch by
// batch. Failures never abort other attempts and nothing is retried.
// Endpoints reported gone are deleted once their batch has finished.
//
// If ctx ends, no further batch is started; attempts already running are
// allowed to finish and record their outcome.
func (e *Engine) Deliver(ctx context.Context, recipientIDs []uuid.UUID, p Payload) Report {
	var rep Report

	body, err := json.Marshal(p.excerpt())
	if err != nil {
		e.logger.Error("encode push payload", zap.Error(err))
		return rep
	}

	ids := dedupe(recipientIDs)
	reached := make(map[uuid.UUID]struct{})
	for start := 0; start < len(ids); start += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			e.logger.Info("push delivery abandoned",
				zap.Stringer("broadcast_id", p.BroadcastID),
				zap.Int("remaining_recipients", len(ids)-start),
				zap.Error(err),
			)
			break
		}
		end := min(start+e.cfg.BatchSize, len(ids))
		e.deliverBatch(ctx, ids[start:end], body, p.BroadcastID, &rep, reached)
	}

	rep.DeliveredTo = make([]uuid.UUID, 0, len(reached))
	for _, id := range ids {
		if _, ok := reached[id]; ok {
			rep.DeliveredTo = append(rep.DeliveredTo, id)
		}
	}

	e.logger.Info("push delivery finished",
		zap.Stringer("broadcast_id", p.BroadcastID),
		zap.Int("recipients", len(ids)),
		zap.Int("attempted", rep.Attempted),
		zap.Int("delivered", rep.Delivered),
		zap.Int("transient", rep.Transient),
		zap.Int("pruned", rep.Pruned),
	)
	return rep
}

func (e *Engine) deliverBatch(ctx context.Context, batch []uuid.UUID, body []byte, broadcastID uuid.UUID, rep *Report, reached map[uuid.UUID]struct{}) {
	// Store calls for a batch already underway must not be cut short by
	// the caller going away.
	bg := context.WithoutCancel(ctx)

	since := e.now().Add(-e.cfg.Freshness)
	eps, err := e.endpoints.ListFresh(bg, batch, since)
	if err != nil {
		e.logger.Error("list push endpoints", zap.Int("recipients", len(batch)), zap.Error(err))
		return
	}
	if len(eps) == 0 {
		return
	}

	results := make([]outcome, len(eps))
	var g errgroup.Group
	for i, ep := range eps {
		g.Go(func() error {
			results[i] = e.attempt(bg, ep, body)
			return nil
		})
	}
	_ = g.Wait()

	var gone, ok []uuid.UUID
	for i, ep := range eps {
		rep.Attempted++
		if e.metrics != nil {
			e.metrics.PushAttempts.WithLabelValues(results[i].String()).Inc()
		}
		switch results[i] {
		case outcomeDelivered:
			rep.Delivered++
			ok = append(ok, ep.ID)
			reached[ep.PrincipalID] = struct{}{}
		case outcomeGone:
			gone = append(gone, ep.ID)
		default:
			rep.Transient++
		}
	}

	if len(ok) > 0 {
		if err := e.endpoints.Touch(bg, ok, e.now()); err != nil {
			e.logger.Warn("touch push endpoints", zap.Int("endpoints", len(ok)), zap.Error(err))
		}
	}
	if len(gone) > 0 {
		n, err := e.endpoints.DeleteByIDs(bg, gone)
		if err != nil {
			e.logger.Error("prune push endpoints", zap.Int("endpoints", len(gone)), zap.Error(err))
			return
		}
		rep.Pruned += n
		if e.metrics != nil {
			e.metrics.PushPruned.Add(float64(n))
		}
		if e.audit != nil {
			e.audit.Record(bg, audit.ActionPushPrune,
				audit.Entity{Type: "push_endpoint", ID: broadcastID.String()},
				audit.Actor{}, nil, map[string]any{"endpoint_ids": gone, "deleted": n})
		}
	}
}

func (e *Engine) attempt(ctx context.Context, ep models.PushEndpoint, body []byte) outcome {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	err := e.transport.Send(ctx, ep, body, e.cfg.TTL)
	if e.metrics != nil {
		e.metrics.PushDuration.Observe(time.Since(start).Seconds())
	}

	switch {
	case err == nil:
		return outcomeDelivered
	case errors.Is(err, ErrEndpointGone):
		e.logger.Info("push endpoint gone",
			zap.Stringer("endpoint_id", ep.ID),
			zap.Stringer("principal_id", ep.PrincipalID),
		)
		return outcomeGone
	default:
		e.logger.Warn("push attempt failed",
			zap.Stringer("endpoint_id", ep.ID),
			zap.Stringer("principal_id", ep.PrincipalID),
			zap.Error(err),
		)
		return outcomeTransient
	}
}

func (p Payload) excerpt() Payload {
	r := []rune(p.Body)
	if len(r) > MaxBodyRunes {
		p.Body = string(r[:MaxBodyRunes-1]) + "…"
	}
	return p
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
