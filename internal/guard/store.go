// Package guard wraps the hierarchy store and refuses writes that would
// break tenant isolation, the soft-delete lifecycle or the role ladder.
//
// The guard does not know who resolved scope upstream. It checks each
// write on its own and rejects violations even if a caller above it
// would have allowed them.
package guard

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/apperr"
	"github.com/lalith-99/orgcast/internal/audit"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/observ"
	"github.com/lalith-99/orgcast/internal/repository"
	"go.uber.org/zap"
)

// Auditor is the part of audit.Trail the guard needs.
type Auditor interface {
	Record(ctx context.Context, action string, entity audit.Entity, actor audit.Actor, before, after any)
}

var _ repository.HierarchyStore = (*Store)(nil)

// Store is a HierarchyStore whose writes pass through the guard rules.
// Reads go straight to the wrapped store.
type Store struct {
	repository.HierarchyReader

	raw     repository.HierarchyStore
	audit   Auditor
	metrics *observ.Metrics
	logger  *zap.Logger
}

func New(raw repository.HierarchyStore, auditor Auditor, metrics *observ.Metrics, logger *zap.Logger) *Store {
	return &Store{
		HierarchyReader: raw,
		raw:             raw,
		audit:           auditor,
		metrics:         metrics,
		logger:          logger.Named("guard"),
	}
}

// reject audits and counts a violation and returns it as the write's error.
func (s *Store) reject(ctx context.Context, rule, entity, id, reason string, attempted any) error {
	err := apperr.Violate(rule, entity, reason)
	if id == uuid.Nil.String() {
		id = ""
	}

	actor := audit.ActorFrom(ctx)
	s.logger.Warn("write rejected",
		zap.String("rule", rule),
		zap.String("entity", entity),
		zap.String("entity_id", id),
		zap.String("reason", reason),
		zap.Stringer("actor_id", actor.ID),
	)
	if s.metrics != nil {
		s.metrics.GuardRejections.WithLabelValues(rule).Inc()
	}
	s.audit.Record(ctx, audit.ActionGuardReject, audit.Entity{Type: entity, ID: id}, actor, nil, map[string]any{
		"rule":      rule,
		"reason":    reason,
		"attempted": attempted,
	})
	return err
}

func (s *Store) record(ctx context.Context, action, entity, id string, before, after any) {
	s.audit.Record(ctx, action, audit.Entity{Type: entity, ID: id}, audit.ActorFrom(ctx), before, after)
}

func (s *Store) CreateUnit(ctx context.Context, u *models.Unit) error {
	want := u.Kind.ParentKind()
	switch u.Kind {
	case models.UnitRegion:
		if u.ParentID != nil {
			return s.reject(ctx, apperr.RuleStructure, "unit", u.ID.String(), "a region has no parent", u)
		}
	case models.UnitCity, models.UnitNeighborhood:
		if u.ParentID == nil {
			return s.reject(ctx, apperr.RuleStructure, "unit", u.ID.String(), fmt.Sprintf("a %s needs a %s parent", u.Kind, want), u)
		}
		parent, err := s.raw.GetUnit(ctx, *u.ParentID)
		if err != nil {
			return fmt.Errorf("load parent unit: %w", err)
		}
		if parent == nil || parent.Kind != want {
			return s.reject(ctx, apperr.RuleStructure, "unit", u.ID.String(), fmt.Sprintf("parent of a %s must be a %s", u.Kind, want), u)
		}
	default:
		return s.reject(ctx, apperr.RuleStructure, "unit", u.ID.String(), fmt.Sprintf("unknown unit kind %q", u.Kind), u)
	}

	if err := s.raw.CreateUnit(ctx, u); err != nil {
		return err
	}
	s.record(ctx, audit.ActionUnitCreate, "unit", u.ID.String(), nil, u)
	return nil
}

// checkRole applies the role ladder to a principal write.
func (s *Store) checkRole(ctx context.Context, p *models.Principal) error {
	if p.Role == models.RoleSuperAdmin {
		return s.reject(ctx, apperr.RulePrivilegeEscalation, "principal", p.ID.String(), "SUPERADMIN cannot be granted through this write path", p)
	}
	if !p.Role.Assignable() {
		return s.reject(ctx, apperr.RuleStructure, "principal", p.ID.String(), fmt.Sprintf("unknown role %q", p.Role), p)
	}
	return nil
}

func (s *Store) CreatePrincipal(ctx context.Context, p *models.Principal) error {
	if err := s.checkRole(ctx, p); err != nil {
		return err
	}
	if err := s.raw.CreatePrincipal(ctx, p); err != nil {
		return err
	}
	s.record(ctx, audit.ActionPrincipalCreate, "principal", p.ID.String(), nil, p)
	return nil
}

// UpdatePrincipal allows profile changes and the soft-delete transition.
// The role itself is fixed once created.
func (s *Store) UpdatePrincipal(ctx context.Context, p *models.Principal) error {
	existing, err := s.raw.GetPrincipal(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("load principal: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("principal %s: %w", p.ID, apperr.ErrNotFound)
	}
	if err := s.checkRole(ctx, p); err != nil {
		return err
	}
	if existing.Role != p.Role {
		return s.reject(ctx, apperr.RuleStructure, "principal", p.ID.String(),
			fmt.Sprintf("role change %s -> %s is not an ordinary write", existing.Role, p.Role), p)
	}
	if err := s.raw.UpdatePrincipal(ctx, p); err != nil {
		return err
	}
	s.record(ctx, audit.ActionPrincipalUpdate, "principal", p.ID.String(), existing, p)
	return nil
}

func (s *Store) DeletePrincipal(ctx context.Context, id uuid.UUID) error {
	return s.reject(ctx, apperr.RuleLifecycle, "principal", id.String(), "principals are deactivated, never deleted", nil)
}

// coordinatorCities returns every coordinator_of city of an activist
// coordinator, oldest assignment first.
func (s *Store) coordinatorCities(ctx context.Context, coordinatorID uuid.UUID) ([]uuid.UUID, error) {
	as, err := s.raw.ListAssignments(ctx, repository.AssignmentFilter{
		PrincipalIDs: []uuid.UUID{coordinatorID},
		Relations:    []models.Relation{models.RelationCoordinatorOf},
	})
	if err != nil {
		return nil, fmt.Errorf("load coordinator cities: %w", err)
	}
	cities := make([]uuid.UUID, 0, len(as))
	for _, a := range as {
		cities = append(cities, a.UnitID)
	}
	return cities, nil
}

// cityFor settles the tenant city of a write owned by a coordinator
// holding cities. A given city must be one of them. An omitted one is
// derived when unambiguous: the only city, or else hint when it is among
// them. reason is empty on success.
func cityFor(cities []uuid.UUID, given, hint *uuid.UUID) (city uuid.UUID, reason string) {
	if given != nil {
		if slices.Contains(cities, *given) {
			return *given, ""
		}
		return uuid.Nil, fmt.Sprintf("city %s is not one of the coordinator's cities", given)
	}
	switch {
	case len(cities) == 1:
		return cities[0], ""
	case hint != nil && slices.Contains(cities, *hint):
		return *hint, ""
	}
	return uuid.Nil, "city required: coordinator holds several cities"
}

// checkActivist validates references and fills an omitted CityID from
// the coordinator's cities.
func (s *Store) checkActivist(ctx context.Context, a *models.Activist) error {
	id := a.ID.String()

	coord, err := s.raw.GetPrincipal(ctx, a.CoordinatorID)
	if err != nil {
		return fmt.Errorf("load coordinator: %w", err)
	}
	if coord == nil || coord.Role != models.RoleActivistCoordinator {
		return s.reject(ctx, apperr.RuleStructure, "activist", id, "coordinator must be an ACTIVIST_COORDINATOR", a)
	}

	hood, err := s.raw.GetUnit(ctx, a.NeighborhoodID)
	if err != nil {
		return fmt.Errorf("load neighborhood: %w", err)
	}
	if hood == nil || hood.Kind != models.UnitNeighborhood {
		return s.reject(ctx, apperr.RuleStructure, "activist", id, "neighborhood must reference a neighborhood unit", a)
	}

	if a.PrincipalID != nil {
		login, err := s.raw.GetPrincipal(ctx, *a.PrincipalID)
		if err != nil {
			return fmt.Errorf("load activist login: %w", err)
		}
		if login == nil || login.Role != models.RoleActivist {
			return s.reject(ctx, apperr.RuleStructure, "activist", id, "linked principal must have role ACTIVIST", a)
		}
	}

	cities, err := s.coordinatorCities(ctx, a.CoordinatorID)
	if err != nil {
		return err
	}
	if len(cities) == 0 {
		return s.reject(ctx, apperr.RuleTenantIsolation, "activist", id, "coordinator has no city", a)
	}
	city, reason := cityFor(cities, a.CityID, hood.ParentID)
	if reason != "" {
		return s.reject(ctx, apperr.RuleTenantIsolation, "activist", id, reason, a)
	}
	a.CityID = &city
	return nil
}

func (s *Store) CreateActivist(ctx context.Context, a *models.Activist) error {
	if err := s.checkActivist(ctx, a); err != nil {
		return err
	}
	if err := s.raw.CreateActivist(ctx, a); err != nil {
		return err
	}
	s.record(ctx, audit.ActionActivistCreate, "activist", a.ID.String(), nil, a)
	return nil
}

func (s *Store) UpdateActivist(ctx context.Context, a *models.Activist) error {
	existing, err := s.raw.GetActivist(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("load activist: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("activist %s: %w", a.ID, apperr.ErrNotFound)
	}
	if err := s.checkActivist(ctx, a); err != nil {
		return err
	}
	if err := s.raw.UpdateActivist(ctx, a); err != nil {
		return err
	}
	s.record(ctx, audit.ActionActivistUpdate, "activist", a.ID.String(), existing, a)
	return nil
}

func (s *Store) DeleteActivist(ctx context.Context, id uuid.UUID) error {
	return s.reject(ctx, apperr.RuleLifecycle, "activist", id.String(), "activists are deactivated, never deleted", nil)
}

func (s *Store) CreateAssignment(ctx context.Context, a *models.ScopeAssignment) error {
	id := a.ID.String()

	spec, ok := a.Relation.Spec()
	if !ok {
		return s.reject(ctx, apperr.RuleStructure, "assignment", id, fmt.Sprintf("unknown relation %q", a.Relation), a)
	}

	p, err := s.raw.GetPrincipal(ctx, a.PrincipalID)
	if err != nil {
		return fmt.Errorf("load principal: %w", err)
	}
	if p == nil {
		return fmt.Errorf("principal %s: %w", a.PrincipalID, apperr.ErrNotFound)
	}
	if p.Role == models.RoleSuperAdmin {
		return s.reject(ctx, apperr.RulePrivilegeEscalation, "assignment", id, "SUPERADMIN scope is not assignment based", a)
	}
	if !p.Role.HoldsRelation(a.Relation) {
		return s.reject(ctx, apperr.RuleStructure, "assignment", id,
			fmt.Sprintf("role %s cannot hold %s", p.Role, a.Relation), a)
	}

	u, err := s.raw.GetUnit(ctx, a.UnitID)
	if err != nil {
		return fmt.Errorf("load unit: %w", err)
	}
	if u == nil || u.Kind != spec.UnitKind {
		return s.reject(ctx, apperr.RuleStructure, "assignment", id,
			fmt.Sprintf("%s must point at a %s", a.Relation, spec.UnitKind), a)
	}

	if err := s.checkAssignmentCity(ctx, a, u); err != nil {
		return err
	}

	if err := s.raw.CreateAssignment(ctx, a); err != nil {
		return err
	}
	s.record(ctx, audit.ActionAssignmentCreate, "assignment", a.ID.String(), nil, a)
	return nil
}

// checkAssignmentCity enforces the city reference of an assignment. A
// neighborhood assignment belongs to its coordinator's city even when the
// neighborhood lies elsewhere; that divergence is allowed and unioned at
// read time.
func (s *Store) checkAssignmentCity(ctx context.Context, a *models.ScopeAssignment, u *models.Unit) error {
	id := a.ID.String()

	var want *uuid.UUID
	switch u.Kind {
	case models.UnitRegion:
		if a.CityID != nil {
			return s.reject(ctx, apperr.RuleStructure, "assignment", id, "region assignments carry no city", a)
		}
		return nil
	case models.UnitCity:
		want = &u.ID
	case models.UnitNeighborhood:
		cities, err := s.coordinatorCities(ctx, a.PrincipalID)
		if err != nil {
			return err
		}
		if len(cities) > 0 {
			city, reason := cityFor(cities, a.CityID, u.ParentID)
			if reason != "" {
				return s.reject(ctx, apperr.RuleTenantIsolation, "assignment", id, reason, a)
			}
			a.CityID = &city
			return nil
		}
		want = u.ParentID
	}
	if want == nil {
		return s.reject(ctx, apperr.RuleTenantIsolation, "assignment", id, "no city to derive", a)
	}

	if a.CityID == nil {
		derived := *want
		a.CityID = &derived
		return nil
	}
	if *a.CityID != *want {
		return s.reject(ctx, apperr.RuleTenantIsolation, "assignment", id,
			fmt.Sprintf("city %s does not match %s", a.CityID, want), a)
	}
	return nil
}

func (s *Store) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	existing, err := s.raw.GetAssignment(ctx, id)
	if err != nil {
		return fmt.Errorf("load assignment: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("assignment %s: %w", id, apperr.ErrNotFound)
	}
	if err := s.raw.DeleteAssignment(ctx, id); err != nil {
		return err
	}
	s.record(ctx, audit.ActionAssignmentDelete, "assignment", id.String(), existing, nil)
	return nil
}

// IsViolation reports whether err is a guard rejection and returns it.
func IsViolation(err error) (*apperr.Violation, bool) {
	var v *apperr.Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
