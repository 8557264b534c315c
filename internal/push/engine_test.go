package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/observ"
	"github.com/lalith-99/orgcast/internal/repository/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTransport struct {
	mu       sync.Mutex
	failures map[string]error
	attempts []string
	inFlight int
	peak     int
	delay    time.Duration
	last     []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failures: make(map[string]error)}
}

func (f *fakeTransport) Send(ctx context.Context, ep models.PushEndpoint, payload []byte, ttl time.Duration) error {
	f.mu.Lock()
	f.attempts = append(f.attempts, ep.Endpoint)
	f.last = payload
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	err := f.failures[ep.Endpoint]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return err
}

func (f *fakeTransport) attempted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attempts...)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = nil
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func register(t *testing.T, store *memory.Store, principal uuid.UUID, url string, lastUsed time.Time) models.PushEndpoint {
	t.Helper()
	ep := models.PushEndpoint{PrincipalID: principal, Endpoint: url, P256dh: "k", Auth: "a", LastUsedAt: lastUsed}
	require.NoError(t, store.Upsert(context.Background(), &ep))
	return ep
}

func newEngine(store *memory.Store, tr Transport, m *observ.Metrics) *Engine {
	e := NewEngine(store, tr, Config{}, nil, m, zap.NewNop())
	e.SetClock(func() time.Time { return now })
	return e
}

func TestDeliverSkipsStaleEndpoints(t *testing.T) {
	store := memory.New()
	tr := newFakeTransport()
	alice := uuid.New()

	register(t, store, alice, "https://push.example/fresh-1", now.Add(-time.Hour))
	register(t, store, alice, "https://push.example/fresh-2", now.Add(-29*24*time.Hour))
	register(t, store, alice, "https://push.example/stale", now.Add(-31*24*time.Hour))

	rep := newEngine(store, tr, nil).Deliver(context.Background(), []uuid.UUID{alice}, Payload{Title: "t"})

	require.ElementsMatch(t, []string{"https://push.example/fresh-1", "https://push.example/fresh-2"}, tr.attempted())
	require.Equal(t, 2, rep.Attempted)
	require.Equal(t, 2, rep.Delivered)
	require.Equal(t, []uuid.UUID{alice}, rep.DeliveredTo)
}

func TestDeliverPrunesGoneEndpoints(t *testing.T) {
	store := memory.New()
	tr := newFakeTransport()
	alice := uuid.New()
	m := observ.NewMetrics(prometheus.NewRegistry())

	register(t, store, alice, "https://push.example/ok", now)
	register(t, store, alice, "https://push.example/gone", now)
	tr.failures["https://push.example/gone"] = fmt.Errorf("status 410: %w", ErrEndpointGone)

	e := newEngine(store, tr, m)
	rep := e.Deliver(context.Background(), []uuid.UUID{alice}, Payload{})
	require.Equal(t, 2, rep.Attempted, "attempts count includes the endpoint that was pruned")
	require.Equal(t, 1, rep.Delivered)
	require.Equal(t, 1, rep.Pruned)
	require.Len(t, store.Endpoints(alice), 1)
	require.Equal(t, 1.0, testutil.ToFloat64(m.PushPruned))

	tr.reset()
	e.Deliver(context.Background(), []uuid.UUID{alice}, Payload{})
	require.Equal(t, []string{"https://push.example/ok"}, tr.attempted())
}

func TestDeliverKeepsEndpointOnTransientFailure(t *testing.T) {
	store := memory.New()
	tr := newFakeTransport()
	alice := uuid.New()

	ep := register(t, store, alice, "https://push.example/flaky", now.Add(-time.Hour))
	tr.failures[ep.Endpoint] = errors.New("503 service unavailable")

	e := newEngine(store, tr, nil)
	rep := e.Deliver(context.Background(), []uuid.UUID{alice}, Payload{})
	require.Equal(t, 0, rep.Delivered)
	require.Equal(t, 1, rep.Transient)
	require.Empty(t, rep.DeliveredTo)
	require.Len(t, tr.attempted(), 1, "no retry within one call")

	kept := store.Endpoints(alice)
	require.Len(t, kept, 1)
	require.Equal(t, now.Add(-time.Hour), kept[0].LastUsedAt, "failures do not refresh liveness")
}

func TestDeliverKeepsEndpointWhenPayloadTooLarge(t *testing.T) {
	store := memory.New()
	tr := newFakeTransport()
	alice := uuid.New()

	ep := register(t, store, alice, "https://push.example/healthy", now)
	tr.failures[ep.Endpoint] = fmt.Errorf("%w: 5000 bytes", ErrPayloadTooLarge)

	rep := newEngine(store, tr, nil).Deliver(context.Background(), []uuid.UUID{alice}, Payload{})
	require.Equal(t, 1, rep.Transient)
	require.Zero(t, rep.Pruned)
	require.Len(t, store.Endpoints(alice), 1)
}

func TestDeliverSendsBodyExcerpt(t *testing.T) {
	store := memory.New()
	tr := newFakeTransport()
	alice := uuid.New()
	register(t, store, alice, "https://push.example/a", now)

	long := strings.Repeat("ש", 4500)
	newEngine(store, tr, nil).Deliver(context.Background(), []uuid.UUID{alice}, Payload{Title: "Rally", Body: long, URL: "/inbox"})

	var got Payload
	require.NoError(t, json.Unmarshal(tr.last, &got))
	require.Equal(t, "Rally", got.Title)
	require.Equal(t, "/inbox", got.URL)
	require.Equal(t, MaxBodyRunes, utf8.RuneCountInString(got.Body))
	require.True(t, strings.HasPrefix(long, strings.TrimSuffix(got.Body, "…")))
}

func TestDeliverTouchesSuccessfulEndpoints(t *testing.T) {
	store := memory.New()
	tr := newFakeTransport()
	alice := uuid.New()
	register(t, store, alice, "https://push.example/a", now.Add(-10*24*time.Hour))

	newEngine(store, tr, nil).Deliver(context.Background(), []uuid.UUID{alice}, Payload{})

	require.Equal(t, now, store.Endpoints(alice)[0].LastUsedAt)
}

func TestDeliverRecipientWithoutEndpoints(t *testing.T) {
	store := memory.New()
	tr := newFakeTransport()

	rep := newEngine(store, tr, nil).Deliver(context.Background(), []uuid.UUID{uuid.New(), uuid.New()}, Payload{})
	require.Equal(t, Report{DeliveredTo: []uuid.UUID{}}, rep)
	require.Empty(t, tr.attempted())
}

func TestDeliverBoundsConcurrencyByBatch(t *testing.T) {
	store := memory.New()
	tr := newFakeTransport()
	tr.delay = 5 * time.Millisecond

	var ids []uuid.UUID
	for i := 0; i < 25; i++ {
		id := uuid.New()
		ids = append(ids, id, id)
		register(t, store, id, fmt.Sprintf("https://push.example/%02d", i), now)
	}

	rep := newEngine(store, tr, nil).Deliver(context.Background(), ids, Payload{})
	require.Equal(t, 25, rep.Delivered)
	require.Len(t, rep.DeliveredTo, 25)
	require.LessOrEqual(t, tr.peak, 10)
}

func TestDeliverStopsStartingBatchesAfterCancel(t *testing.T) {
	store := memory.New()
	tr := newFakeTransport()
	alice := uuid.New()
	register(t, store, alice, "https://push.example/a", now)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := newEngine(store, tr, nil).Deliver(ctx, []uuid.UUID{alice}, Payload{})
	require.Equal(t, 0, rep.Attempted)
	require.Empty(t, tr.attempted())
}

type blockingTransport struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTransport) Send(ctx context.Context, _ models.PushEndpoint, _ []byte, _ time.Duration) error {
	close(b.started)
	<-b.release
	return ctx.Err()
}

func TestDeliverAttemptOutlivesCaller(t *testing.T) {
	store := memory.New()
	alice := uuid.New()
	register(t, store, alice, "https://push.example/slow", now.Add(-time.Hour))

	tr := &blockingTransport{started: make(chan struct{}), release: make(chan struct{})}
	e := newEngine(store, tr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Report)
	go func() { done <- e.Deliver(ctx, []uuid.UUID{alice}, Payload{}) }()

	<-tr.started
	cancel()
	close(tr.release)

	rep := <-done
	require.Equal(t, 1, rep.Delivered, "the attempt context is detached from the caller")
	require.Equal(t, now, store.Endpoints(alice)[0].LastUsedAt)
}
