package models

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"
)

// Scope is the set of units a principal may act within. The zero value is
// the empty scope; AllUnits is reserved for SUPERADMIN.
type Scope struct {
	all   bool
	units map[uuid.UUID]struct{}
}

// AllUnits returns the universal scope.
func AllUnits() Scope {
	return Scope{all: true}
}

// NewScope returns a concrete, deduplicated scope over ids.
func NewScope(ids ...uuid.UUID) Scope {
	s := Scope{units: make(map[uuid.UUID]struct{}, len(ids))}
	for _, id := range ids {
		s.units[id] = struct{}{}
	}
	return s
}

func (s Scope) IsAll() bool { return s.all }

// IsEmpty reports whether the scope grants nothing.
func (s Scope) IsEmpty() bool { return !s.all && len(s.units) == 0 }

// Len is the number of concrete units. It is 0 for AllUnits.
func (s Scope) Len() int { return len(s.units) }

func (s Scope) Contains(id uuid.UUID) bool {
	if s.all {
		return true
	}
	_, ok := s.units[id]
	return ok
}

// IDs returns the concrete unit ids in a stable order. AllUnits returns nil.
func (s Scope) IDs() []uuid.UUID {
	if s.all {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

type scopeJSON struct {
	All   bool        `json:"all"`
	Units []uuid.UUID `json:"units"`
}

func (s Scope) MarshalJSON() ([]byte, error) {
	units := s.IDs()
	if units == nil {
		units = []uuid.UUID{}
	}
	return json.Marshal(scopeJSON{All: s.all, Units: units})
}

func (s *Scope) UnmarshalJSON(data []byte) error {
	var v scopeJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.All {
		*s = AllUnits()
		return nil
	}
	*s = NewScope(v.Units...)
	return nil
}
