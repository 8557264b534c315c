package models

import "fmt"

// Role is the single organisational role a principal holds.
type Role string

const (
	RoleSuperAdmin          Role = "SUPERADMIN"
	RoleAreaManager         Role = "AREA_MANAGER"
	RoleCityCoordinator     Role = "CITY_COORDINATOR"
	RoleActivistCoordinator Role = "ACTIVIST_COORDINATOR"
	RoleActivist            Role = "ACTIVIST"
)

// Relation names one kind of scope assignment edge between a principal and a unit.
type Relation string

const (
	// RelationManagesRegion binds an area manager to a region.
	RelationManagesRegion Relation = "manages_region"
	// RelationCoordinatesCity binds a city coordinator to a city.
	RelationCoordinatesCity Relation = "coordinates_city"
	// RelationCoordinatorOf is the activist coordinator's home city.
	RelationCoordinatorOf Relation = "coordinator_of"
	// RelationAssignedNeighborhood is an activist coordinator's neighborhood
	// assignment. It carries its own city reference, which may disagree
	// with the neighborhood's parent city.
	RelationAssignedNeighborhood Relation = "assigned_neighborhood"
)

// Capability is one row of the role capability table.
type Capability struct {
	Level          int
	CanBroadcast   bool
	RecipientRoles []Role
	ScopeRelations []Relation
	// ScopeAll grants every unit. ScopeFromProfile derives the scope from
	// the principal's activist profile instead of assignments.
	ScopeAll         bool
	ScopeFromProfile bool
	// Assignable is false for roles that ordinary write paths may never set.
	Assignable bool
	// TagKind is the unit kind used to label a principal of this role in
	// recipient lists and breakdowns.
	TagKind UnitKind
}

// RelationSpec describes which role may hold a relation and what kind of
// unit it points at.
type RelationSpec struct {
	Holder   Role
	UnitKind UnitKind
}

// The capability table is the only place that maps roles to permissions.
// Scope resolution, recipient resolution and the write guard all read it.
var capabilities = map[Role]Capability{
	RoleSuperAdmin: {
		Level:          0,
		CanBroadcast:   true,
		RecipientRoles: []Role{RoleAreaManager, RoleCityCoordinator, RoleActivistCoordinator, RoleActivist},
		ScopeAll:       true,
		Assignable:     false,
		TagKind:        UnitRegion,
	},
	RoleAreaManager: {
		Level:          1,
		CanBroadcast:   true,
		RecipientRoles: []Role{RoleCityCoordinator, RoleActivistCoordinator},
		ScopeRelations: []Relation{RelationManagesRegion},
		Assignable:     true,
		TagKind:        UnitRegion,
	},
	RoleCityCoordinator: {
		Level:          2,
		CanBroadcast:   true,
		RecipientRoles: []Role{RoleActivistCoordinator},
		ScopeRelations: []Relation{RelationCoordinatesCity},
		Assignable:     true,
		TagKind:        UnitCity,
	},
	RoleActivistCoordinator: {
		Level:          3,
		ScopeRelations: []Relation{RelationCoordinatorOf, RelationAssignedNeighborhood},
		Assignable:     true,
		TagKind:        UnitCity,
	},
	RoleActivist: {
		Level:            4,
		ScopeFromProfile: true,
		Assignable:       true,
		TagKind:          UnitCity,
	},
}

var relations = map[Relation]RelationSpec{
	RelationManagesRegion:        {Holder: RoleAreaManager, UnitKind: UnitRegion},
	RelationCoordinatesCity:      {Holder: RoleCityCoordinator, UnitKind: UnitCity},
	RelationCoordinatorOf:        {Holder: RoleActivistCoordinator, UnitKind: UnitCity},
	RelationAssignedNeighborhood: {Holder: RoleActivistCoordinator, UnitKind: UnitNeighborhood},
}

// Capability returns the table row for r. Unknown roles get the zero
// Capability, which grants nothing.
func (r Role) Capability() (Capability, bool) {
	c, ok := capabilities[r]
	return c, ok
}

func (r Role) IsValid() bool {
	_, ok := capabilities[r]
	return ok
}

func (r Role) CanBroadcast() bool {
	return capabilities[r].CanBroadcast
}

// Assignable reports whether r may be set through ordinary write paths.
func (r Role) Assignable() bool {
	c, ok := capabilities[r]
	return ok && c.Assignable
}

// CanAddress reports whether a sender of role r may address a principal of role target.
func (r Role) CanAddress(target Role) bool {
	for _, rr := range capabilities[r].RecipientRoles {
		if rr == target {
			return true
		}
	}
	return false
}

// HoldsRelation reports whether rel is one of the relations defining r's scope.
func (r Role) HoldsRelation(rel Relation) bool {
	for _, x := range capabilities[r].ScopeRelations {
		if x == rel {
			return true
		}
	}
	return false
}

// Outranks reports whether r sits strictly above target in the hierarchy.
func (r Role) Outranks(target Role) bool {
	a, ok1 := capabilities[r]
	b, ok2 := capabilities[target]
	return ok1 && ok2 && a.Level < b.Level
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts s into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// AllRoles returns every role ordered from the top of the hierarchy down.
func AllRoles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleAreaManager,
		RoleCityCoordinator,
		RoleActivistCoordinator,
		RoleActivist,
	}
}

// Spec returns the holder/unit-kind description of rel.
func (rel Relation) Spec() (RelationSpec, bool) {
	s, ok := relations[rel]
	return s, ok
}

func (rel Relation) IsValid() bool {
	_, ok := relations[rel]
	return ok
}
