// Package testkit builds organisational fixtures on top of the in-memory store.
package testkit

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

// Hierarchy seeds units and principals by name. It writes through the raw
// store, so fixtures may contain shapes the guard would refuse.
type Hierarchy struct {
	t     testing.TB
	Store *memory.Store

	units      map[string]models.Unit
	principals map[string]models.Principal
	activists  map[string]models.Activist
}

func NewHierarchy(t testing.TB) *Hierarchy {
	t.Helper()
	return &Hierarchy{
		t:          t,
		Store:      memory.New(),
		units:      make(map[string]models.Unit),
		principals: make(map[string]models.Principal),
		activists:  make(map[string]models.Activist),
	}
}

func (h *Hierarchy) unit(kind models.UnitKind, name string, parent string) models.Unit {
	h.t.Helper()
	u := models.Unit{Kind: kind, Name: name, IsActive: true}
	if parent != "" {
		p := h.Unit(parent)
		u.ParentID = &p.ID
	}
	require.NoError(h.t, h.Store.CreateUnit(context.Background(), &u))
	h.units[name] = u
	return u
}

func (h *Hierarchy) Region(name string) models.Unit {
	return h.unit(models.UnitRegion, name, "")
}

func (h *Hierarchy) City(name, region string) models.Unit {
	return h.unit(models.UnitCity, name, region)
}

func (h *Hierarchy) Neighborhood(name, city string) models.Unit {
	return h.unit(models.UnitNeighborhood, name, city)
}

// Unit returns a previously seeded unit.
func (h *Hierarchy) Unit(name string) models.Unit {
	h.t.Helper()
	u, ok := h.units[name]
	require.True(h.t, ok, "unknown unit %q", name)
	return u
}

// Principal creates an active principal with the given role.
func (h *Hierarchy) Principal(name string, role models.Role) models.Principal {
	h.t.Helper()
	p := models.Principal{
		FullName: name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.org",
		Role:     role,
		IsActive: true,
	}
	require.NoError(h.t, h.Store.CreatePrincipal(context.Background(), &p))
	h.principals[name] = p
	return p
}

// Get returns the current stored state of a seeded principal.
func (h *Hierarchy) Get(name string) models.Principal {
	h.t.Helper()
	seeded, ok := h.principals[name]
	require.True(h.t, ok, "unknown principal %q", name)
	p, err := h.Store.GetPrincipal(context.Background(), seeded.ID)
	require.NoError(h.t, err)
	require.NotNil(h.t, p)
	return *p
}

func (h *Hierarchy) ID(name string) uuid.UUID {
	return h.Get(name).ID
}

// Deactivate soft-deletes a seeded principal.
func (h *Hierarchy) Deactivate(name string) {
	h.t.Helper()
	p := h.Get(name)
	p.IsActive = false
	require.NoError(h.t, h.Store.UpdatePrincipal(context.Background(), &p))
}

// Assign links a principal to a unit. For assigned_neighborhood the city
// reference defaults to the neighborhood's parent; pass cityName to override it.
func (h *Hierarchy) Assign(principal string, rel models.Relation, unit string, cityName ...string) models.ScopeAssignment {
	h.t.Helper()
	u := h.Unit(unit)
	a := models.ScopeAssignment{
		PrincipalID: h.ID(principal),
		UnitID:      u.ID,
		Relation:    rel,
	}
	switch {
	case len(cityName) > 0:
		c := h.Unit(cityName[0])
		a.CityID = &c.ID
	case rel == models.RelationAssignedNeighborhood:
		a.CityID = u.ParentID
	}
	require.NoError(h.t, h.Store.CreateAssignment(context.Background(), &a))
	return a
}

// Activist creates an activist profile in neighborhood, managed by
// coordinator. When withLogin is true a principal with role ACTIVIST is
// created and linked to the profile.
func (h *Hierarchy) Activist(name, neighborhood, coordinator string, withLogin bool) models.Activist {
	h.t.Helper()
	n := h.Unit(neighborhood)
	a := models.Activist{
		FullName:       name,
		NeighborhoodID: n.ID,
		CityID:         n.ParentID,
		CoordinatorID:  h.ID(coordinator),
		IsActive:       true,
	}
	if withLogin {
		p := h.Principal(name, models.RoleActivist)
		a.PrincipalID = &p.ID
	}
	require.NoError(h.t, h.Store.CreateActivist(context.Background(), &a))
	h.activists[name] = a
	return a
}

// Profile returns a seeded activist profile.
func (h *Hierarchy) Profile(name string) models.Activist {
	h.t.Helper()
	a, ok := h.activists[name]
	require.True(h.t, ok, "unknown activist %q", name)
	return a
}
