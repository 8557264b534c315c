// Package recipients decides who a sender may address.
package recipients

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/apperr"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
	"github.com/lalith-99/orgcast/internal/scope"
	"go.uber.org/zap"
)

// Resolver computes recipient sets from the sender's scope and the role
// capability table. It never writes.
type Resolver struct {
	store  repository.HierarchyReader
	scopes *scope.Resolver
	logger *zap.Logger
}

func NewResolver(store repository.HierarchyReader, scopes *scope.Resolver, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, scopes: scopes, logger: logger}
}

// AllRecipientsUnder returns every active principal the sender may reach,
// each exactly once, ordered by role then name.
//
// Roles that may never send fail with apperr.ErrUnauthorized. A sending
// role with no scope assignment fails with apperr.ErrScopeEmpty. A valid
// sender with nobody below them gets an empty slice.
func (r *Resolver) AllRecipientsUnder(ctx context.Context, sender models.Principal) ([]models.Recipient, error) {
	c, ok := sender.Role.Capability()
	if !ok || !c.CanBroadcast || !sender.IsActive {
		return nil, apperr.Unauthorized(fmt.Sprintf("role %s may not send broadcasts", sender.Role))
	}

	sc, err := r.scopes.Resolve(ctx, sender)
	if err != nil {
		return nil, err
	}
	if sc.IsEmpty() {
		return nil, fmt.Errorf("%w: %s has no scope assignment", apperr.ErrScopeEmpty, sender.Role)
	}

	units, err := r.loadUnits(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Recipient, 0)
	seen := make(map[uuid.UUID]struct{})
	for _, role := range c.RecipientRoles {
		rs, err := r.underRole(ctx, role, sc, units)
		if err != nil {
			return nil, err
		}
		for _, rc := range rs {
			if rc.PrincipalID == sender.ID {
				continue
			}
			if _, dup := seen[rc.PrincipalID]; dup {
				continue
			}
			seen[rc.PrincipalID] = struct{}{}
			out = append(out, rc)
		}
	}
	return out, nil
}

// SelectRecipients intersects ids with AllRecipientsUnder(sender),
// keeping request order and dropping unknown or unauthorized ids without
// saying which. An empty intersection is apperr.ErrUnauthorized.
func (r *Resolver) SelectRecipients(ctx context.Context, ids []uuid.UUID, sender models.Principal) ([]models.Recipient, error) {
	all, err := r.AllRecipientsUnder(ctx, sender)
	if errors.Is(err, apperr.ErrScopeEmpty) {
		all, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]models.Recipient, len(all))
	for _, rc := range all {
		byID[rc.PrincipalID] = rc
	}

	out := make([]models.Recipient, 0, len(ids))
	for _, id := range ids {
		rc, ok := byID[id]
		if !ok {
			continue
		}
		delete(byID, id)
		out = append(out, rc)
	}
	if len(out) == 0 {
		return nil, apperr.Unauthorized("no authorized recipients")
	}
	return out, nil
}

// ValidateRecipients is SelectRecipients reduced to ids.
func (r *Resolver) ValidateRecipients(ctx context.Context, ids []uuid.UUID, sender models.Principal) ([]uuid.UUID, error) {
	rs, err := r.SelectRecipients(ctx, ids, sender)
	if err != nil {
		return nil, err
	}
	return models.RecipientIDs(rs), nil
}

// Resolve returns the recipients for one send mode.
func (r *Resolver) Resolve(ctx context.Context, sender models.Principal, mode models.SendMode, ids []uuid.UUID) ([]models.Recipient, error) {
	switch mode {
	case models.SendModeAll:
		return r.AllRecipientsUnder(ctx, sender)
	case models.SendModeSelected:
		if len(ids) == 0 {
			return nil, apperr.Invalid("selected mode needs at least one recipient id")
		}
		return r.SelectRecipients(ctx, ids, sender)
	}
	return nil, apperr.Invalid(fmt.Sprintf("unknown send mode %q", mode))
}

// Preview groups Resolve's result for a confirmation screen.
func (r *Resolver) Preview(ctx context.Context, sender models.Principal, mode models.SendMode, ids []uuid.UUID) (models.Breakdown, error) {
	rs, err := r.Resolve(ctx, sender, mode, ids)
	if err != nil {
		return models.Breakdown{}, err
	}
	return models.NewBreakdown(rs), nil
}

// unitTree is a snapshot of every unit, indexed for parent/child walks.
type unitTree struct {
	byID     map[uuid.UUID]models.Unit
	children map[uuid.UUID][]uuid.UUID
}

func (r *Resolver) loadUnits(ctx context.Context) (unitTree, error) {
	units, err := r.store.ListUnits(ctx, repository.UnitFilter{})
	if err != nil {
		return unitTree{}, fmt.Errorf("load units: %w", err)
	}
	t := unitTree{
		byID:     make(map[uuid.UUID]models.Unit, len(units)),
		children: make(map[uuid.UUID][]uuid.UUID),
	}
	for _, u := range units {
		t.byID[u.ID] = u
		if u.ParentID != nil {
			t.children[*u.ParentID] = append(t.children[*u.ParentID], u.ID)
		}
	}
	return t, nil
}

// cities maps a unit to the city ids it covers.
func (t unitTree) cities(id uuid.UUID) []uuid.UUID {
	u, ok := t.byID[id]
	if !ok {
		return nil
	}
	switch u.Kind {
	case models.UnitCity:
		return []uuid.UUID{u.ID}
	case models.UnitNeighborhood:
		if u.ParentID != nil {
			return []uuid.UUID{*u.ParentID}
		}
	case models.UnitRegion:
		var out []uuid.UUID
		for _, cid := range t.children[u.ID] {
			if c := t.byID[cid]; c.IsActive {
				out = append(out, cid)
			}
		}
		return out
	}
	return nil
}

// tag picks the unit a recipient is labelled with: the unit itself when it
// already has the wanted kind, otherwise the nearest ancestor that does.
func (t unitTree) tag(id uuid.UUID, kind models.UnitKind) (models.Unit, bool) {
	for i := 0; i < 3; i++ {
		u, ok := t.byID[id]
		if !ok {
			return models.Unit{}, false
		}
		if u.Kind == kind {
			return u, true
		}
		if u.ParentID == nil {
			return models.Unit{}, false
		}
		id = *u.ParentID
	}
	return models.Unit{}, false
}

// inScope reports whether any city covered by unit id is in sc. Under
// AllUnits, being attached to any existing unit is enough.
func (t unitTree) inScope(id uuid.UUID, sc models.Scope) bool {
	if sc.IsAll() {
		_, ok := t.byID[id]
		return ok
	}
	for _, c := range t.cities(id) {
		if sc.Contains(c) {
			return true
		}
	}
	return false
}

// underRole returns the active principals of role attached to a unit in sc.
func (r *Resolver) underRole(ctx context.Context, role models.Role, sc models.Scope, units unitTree) ([]models.Recipient, error) {
	c, ok := role.Capability()
	if !ok {
		return nil, nil
	}

	tags := make(map[uuid.UUID]models.Unit)
	var order []uuid.UUID
	attach := func(pid, unitID uuid.UUID) {
		if _, done := tags[pid]; done || !units.inScope(unitID, sc) {
			return
		}
		tagUnit, ok := units.tag(unitID, c.TagKind)
		if !ok {
			tagUnit = units.byID[unitID]
		}
		// Within a restricted scope, label with the in-scope city rather
		// than a neighborhood's ancestor outside it.
		if !sc.IsAll() && c.TagKind == models.UnitCity && !sc.Contains(tagUnit.ID) {
			for _, cid := range units.cities(unitID) {
				if sc.Contains(cid) {
					tagUnit = units.byID[cid]
					break
				}
			}
		}
		tags[pid] = tagUnit
		order = append(order, pid)
	}

	switch {
	case c.ScopeFromProfile:
		activists, err := r.store.ListActivists(ctx, repository.ActivistFilter{LinkedOnly: true, ActiveOnly: true})
		if err != nil {
			return nil, fmt.Errorf("list activists: %w", err)
		}
		for _, a := range activists {
			unitID := a.NeighborhoodID
			if a.CityID != nil {
				unitID = *a.CityID
			}
			attach(*a.PrincipalID, unitID)
		}
	case len(c.ScopeRelations) > 0:
		// Relations are walked in table order so the primary relation
		// decides the label when a principal is reachable through several.
		for _, rel := range c.ScopeRelations {
			assignments, err := r.store.ListAssignments(ctx, repository.AssignmentFilter{
				Relations: []models.Relation{rel},
			})
			if err != nil {
				return nil, fmt.Errorf("list %s assignments: %w", rel, err)
			}
			for _, a := range assignments {
				attach(a.PrincipalID, a.UnitID)
			}
		}
	}
	if len(order) == 0 {
		return nil, nil
	}

	principals, err := r.store.ListPrincipals(ctx, repository.PrincipalFilter{
		IDs:        order,
		Roles:      []models.Role{role},
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list %s principals: %w", role, err)
	}

	out := make([]models.Recipient, 0, len(principals))
	for _, p := range principals {
		u := tags[p.ID]
		out = append(out, models.Recipient{
			PrincipalID: p.ID,
			FullName:    p.FullName,
			Role:        p.Role,
			UnitID:      u.ID,
			UnitName:    u.Name,
		})
	}
	return out, nil
}
