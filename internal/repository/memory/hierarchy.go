package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
)

func (s *Store) GetPrincipal(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) GetPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.principals {
		if strings.EqualFold(p.Email, email) {
			out := p
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) ListPrincipals(ctx context.Context, f repository.PrincipalFilter) ([]models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := idSet(f.IDs)
	roles := make(map[models.Role]struct{}, len(f.Roles))
	for _, r := range f.Roles {
		roles[r] = struct{}{}
	}

	out := make([]models.Principal, 0)
	for _, p := range s.principals {
		if !in(ids, p.ID) {
			continue
		}
		if len(roles) > 0 {
			if _, ok := roles[p.Role]; !ok {
				continue
			}
		}
		if f.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) GetUnit(ctx context.Context, id uuid.UUID) (*models.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	if !ok {
		return nil, nil
	}
	u.ParentID = copyUUID(u.ParentID)
	return &u, nil
}

func (s *Store) ListUnits(ctx context.Context, f repository.UnitFilter) ([]models.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := idSet(f.IDs)
	parents := idSet(f.ParentIDs)

	out := make([]models.Unit, 0)
	for _, u := range s.units {
		if !in(ids, u.ID) {
			continue
		}
		if parents != nil && (u.ParentID == nil || !in(parents, *u.ParentID)) {
			continue
		}
		if f.Kind != "" && u.Kind != f.Kind {
			continue
		}
		if f.ActiveOnly && !u.IsActive {
			continue
		}
		u.ParentID = copyUUID(u.ParentID)
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) GetAssignment(ctx context.Context, id uuid.UUID) (*models.ScopeAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil, nil
	}
	a.CityID = copyUUID(a.CityID)
	return &a, nil
}

func (s *Store) ListAssignments(ctx context.Context, f repository.AssignmentFilter) ([]models.ScopeAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principals := idSet(f.PrincipalIDs)
	units := idSet(f.UnitIDs)
	rels := make(map[models.Relation]struct{}, len(f.Relations))
	for _, r := range f.Relations {
		rels[r] = struct{}{}
	}

	out := make([]models.ScopeAssignment, 0)
	for _, a := range s.assignments {
		if !in(principals, a.PrincipalID) || !in(units, a.UnitID) {
			continue
		}
		if len(rels) > 0 {
			if _, ok := rels[a.Relation]; !ok {
				continue
			}
		}
		a.CityID = copyUUID(a.CityID)
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) GetActivist(ctx context.Context, id uuid.UUID) (*models.Activist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activists[id]
	if !ok {
		return nil, nil
	}
	out := copyActivist(a)
	return &out, nil
}

func (s *Store) GetActivistByPrincipal(ctx context.Context, principalID uuid.UUID) (*models.Activist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.activists {
		if a.PrincipalID != nil && *a.PrincipalID == principalID {
			out := copyActivist(a)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) ListActivists(ctx context.Context, f repository.ActivistFilter) ([]models.Activist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cities := idSet(f.CityIDs)
	out := make([]models.Activist, 0)
	for _, a := range s.activists {
		if cities != nil && (a.CityID == nil || !in(cities, *a.CityID)) {
			continue
		}
		if f.LinkedOnly && a.PrincipalID == nil {
			continue
		}
		if f.ActiveOnly && !a.IsActive {
			continue
		}
		out = append(out, copyActivist(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) CreateUnit(ctx context.Context, u *models.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&u.ID)
	if _, exists := s.units[u.ID]; exists {
		return fmt.Errorf("create unit: %w", repository.ErrConflict)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	stored := *u
	stored.ParentID = copyUUID(u.ParentID)
	s.units[u.ID] = stored
	return nil
}

func (s *Store) CreatePrincipal(ctx context.Context, p *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&p.ID)
	if _, exists := s.principals[p.ID]; exists {
		return fmt.Errorf("create principal: %w", repository.ErrConflict)
	}
	for _, other := range s.principals {
		if strings.EqualFold(other.Email, p.Email) {
			return fmt.Errorf("create principal: email: %w", repository.ErrConflict)
		}
	}
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.principals[p.ID] = *p
	return nil
}

func (s *Store) UpdatePrincipal(ctx context.Context, p *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.principals[p.ID]
	if !ok {
		return fmt.Errorf("update principal %s: not found", p.ID)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now()
	s.principals[p.ID] = *p
	return nil
}

func (s *Store) DeletePrincipal(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.principals, id)
	return nil
}

func (s *Store) CreateActivist(ctx context.Context, a *models.Activist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&a.ID)
	if _, exists := s.activists[a.ID]; exists {
		return fmt.Errorf("create activist: %w", repository.ErrConflict)
	}
	now := s.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.activists[a.ID] = copyActivist(*a)
	return nil
}

func (s *Store) UpdateActivist(ctx context.Context, a *models.Activist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.activists[a.ID]
	if !ok {
		return fmt.Errorf("update activist %s: not found", a.ID)
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = s.now()
	s.activists[a.ID] = copyActivist(*a)
	return nil
}

func (s *Store) DeleteActivist(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activists, id)
	return nil
}

func (s *Store) CreateAssignment(ctx context.Context, a *models.ScopeAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&a.ID)
	for _, other := range s.assignments {
		if other.PrincipalID == a.PrincipalID && other.UnitID == a.UnitID && other.Relation == a.Relation {
			return fmt.Errorf("create assignment: %w", repository.ErrConflict)
		}
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	stored := *a
	stored.CityID = copyUUID(a.CityID)
	s.assignments[a.ID] = stored
	return nil
}

func (s *Store) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments, id)
	return nil
}

func copyActivist(a models.Activist) models.Activist {
	a.PrincipalID = copyUUID(a.PrincipalID)
	a.CityID = copyUUID(a.CityID)
	return a
}
