package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
)

func (s *Store) Upsert(ctx context.Context, e *models.PushEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e.LastUsedAt.IsZero() {
		e.LastUsedAt = now
	}
	for id, existing := range s.endpoints {
		if existing.Endpoint != e.Endpoint {
			continue
		}
		e.ID = id
		e.CreatedAt = existing.CreatedAt
		s.endpoints[id] = *e
		return nil
	}
	ensureID(&e.ID)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	s.endpoints[e.ID] = *e
	return nil
}

func (s *Store) ListFresh(ctx context.Context, principalIDs []uuid.UUID, since time.Time) ([]models.PushEndpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principals := idSet(principalIDs)
	out := make([]models.PushEndpoint, 0)
	if principals == nil {
		return out, nil
	}
	for _, e := range s.endpoints {
		if !in(principals, e.PrincipalID) || e.LastUsedAt.Before(since) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

func (s *Store) Touch(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if e, ok := s.endpoints[id]; ok {
			e.LastUsedAt = at
			s.endpoints[id] = e
		}
	}
	return nil
}

func (s *Store) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.endpoints[id]; ok {
			delete(s.endpoints, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteForPrincipal(ctx context.Context, principalID uuid.UUID, endpoint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.endpoints {
		if e.Endpoint == endpoint && e.PrincipalID == principalID {
			delete(s.endpoints, id)
			return true, nil
		}
	}
	return false, nil
}

// Endpoints returns every stored endpoint of principalID regardless of freshness.
func (s *Store) Endpoints(principalID uuid.UUID) []models.PushEndpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PushEndpoint, 0)
	for _, e := range s.endpoints {
		if e.PrincipalID == principalID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}
