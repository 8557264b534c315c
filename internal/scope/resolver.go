// Package scope computes which organisational units a principal may act within.
package scope

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
	"go.uber.org/zap"
)

// Resolver turns a principal into a Scope. It only reads the hierarchy.
type Resolver struct {
	store  repository.HierarchyReader
	logger *zap.Logger
}

func NewResolver(store repository.HierarchyReader, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve returns the units p may operate within, as city ids. Every "no
// access" outcome (unknown role, inactive principal, missing assignment)
// is the empty scope; an error means the store itself failed.
func (r *Resolver) Resolve(ctx context.Context, p models.Principal) (models.Scope, error) {
	c, ok := p.Role.Capability()
	if !ok || !p.IsActive {
		return models.Scope{}, nil
	}

	switch {
	case c.ScopeAll:
		return models.AllUnits(), nil
	case c.ScopeFromProfile:
		return r.fromProfile(ctx, p)
	case len(c.ScopeRelations) > 0:
		return r.fromAssignments(ctx, p, c.ScopeRelations)
	}
	return models.Scope{}, nil
}

func (r *Resolver) fromProfile(ctx context.Context, p models.Principal) (models.Scope, error) {
	a, err := r.store.GetActivistByPrincipal(ctx, p.ID)
	if err != nil {
		return models.Scope{}, fmt.Errorf("load activist profile: %w", err)
	}
	if a == nil || !a.IsActive {
		return models.Scope{}, nil
	}
	if a.CityID != nil {
		return models.NewScope(*a.CityID), nil
	}

	n, err := r.store.GetUnit(ctx, a.NeighborhoodID)
	if err != nil {
		return models.Scope{}, fmt.Errorf("load activist neighborhood: %w", err)
	}
	if n == nil || n.ParentID == nil {
		return models.Scope{}, nil
	}
	return models.NewScope(*n.ParentID), nil
}

// fromAssignments maps every assignment edge to city ids according to
// the kind of unit its relation points at, and unions the results.
func (r *Resolver) fromAssignments(ctx context.Context, p models.Principal, rels []models.Relation) (models.Scope, error) {
	assignments, err := r.store.ListAssignments(ctx, repository.AssignmentFilter{
		PrincipalIDs: []uuid.UUID{p.ID},
		Relations:    rels,
	})
	if err != nil {
		return models.Scope{}, fmt.Errorf("list scope assignments: %w", err)
	}
	if len(assignments) == 0 {
		return models.Scope{}, nil
	}

	byKind := make(map[models.UnitKind][]uuid.UUID)
	for _, a := range assignments {
		spec, ok := a.Relation.Spec()
		if !ok {
			continue
		}
		byKind[spec.UnitKind] = append(byKind[spec.UnitKind], a.UnitID)
	}

	direct := byKind[models.UnitCity]
	cities := append([]uuid.UUID(nil), direct...)

	if regions := byKind[models.UnitRegion]; len(regions) > 0 {
		units, err := r.store.ListUnits(ctx, repository.UnitFilter{
			ParentIDs:  regions,
			Kind:       models.UnitCity,
			ActiveOnly: true,
		})
		if err != nil {
			return models.Scope{}, fmt.Errorf("list cities under regions: %w", err)
		}
		for _, u := range units {
			cities = append(cities, u.ID)
		}
	}

	if hoods := byKind[models.UnitNeighborhood]; len(hoods) > 0 {
		units, err := r.store.ListUnits(ctx, repository.UnitFilter{
			IDs:  hoods,
			Kind: models.UnitNeighborhood,
		})
		if err != nil {
			return models.Scope{}, fmt.Errorf("list assigned neighborhoods: %w", err)
		}
		home := models.NewScope(direct...)
		for _, u := range units {
			if u.ParentID == nil {
				continue
			}
			if len(direct) > 0 && !home.Contains(*u.ParentID) {
				r.logger.Warn("neighborhood assignment outside coordinator city",
					zap.Stringer("principal_id", p.ID),
					zap.Stringer("neighborhood_id", u.ID),
					zap.Stringer("neighborhood_city_id", *u.ParentID),
				)
			}
			cities = append(cities, *u.ParentID)
		}
	}

	return models.NewScope(cities...), nil
}
