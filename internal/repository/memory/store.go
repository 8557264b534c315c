// Package memory is an in-process implementation of every repository
// interface. It backs the test suites and local runs without Postgres.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
)

var (
	_ repository.HierarchyStore         = (*Store)(nil)
	_ repository.BroadcastRepository    = (*Store)(nil)
	_ repository.PushEndpointRepository = (*Store)(nil)
	_ repository.AuditRepository        = (*Store)(nil)
)

// Store keeps all rows in maps guarded by one RWMutex. Reads return copies.
type Store struct {
	mu sync.RWMutex

	units       map[uuid.UUID]models.Unit
	principals  map[uuid.UUID]models.Principal
	assignments map[uuid.UUID]models.ScopeAssignment
	activists   map[uuid.UUID]models.Activist

	broadcasts map[uuid.UUID]models.Broadcast
	deliveries map[uuid.UUID]models.DeliveryAssignment

	endpoints map[uuid.UUID]models.PushEndpoint

	audit []models.AuditEntry

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		units:       make(map[uuid.UUID]models.Unit),
		principals:  make(map[uuid.UUID]models.Principal),
		assignments: make(map[uuid.UUID]models.ScopeAssignment),
		activists:   make(map[uuid.UUID]models.Activist),
		broadcasts:  make(map[uuid.UUID]models.Broadcast),
		deliveries:  make(map[uuid.UUID]models.DeliveryAssignment),
		endpoints:   make(map[uuid.UUID]models.PushEndpoint),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for CreatedAt/UpdatedAt defaults.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func idSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// in reports whether id passes a filter set; a nil set passes everything.
func in(set map[uuid.UUID]struct{}, id uuid.UUID) bool {
	if set == nil {
		return true
	}
	_, ok := set[id]
	return ok
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func copyUUID(p *uuid.UUID) *uuid.UUID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
