package models

import "github.com/google/uuid"

// Recipient is one addressable principal, tagged for display and breakdown.
type Recipient struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	FullName    string    `json:"full_name"`
	Role        Role      `json:"role"`
	UnitID      uuid.UUID `json:"unit_id"`
	UnitName    string    `json:"unit_name"`
}

type RoleCount struct {
	Role  Role `json:"role"`
	Count int  `json:"count"`
}

type UnitCount struct {
	UnitID   uuid.UUID `json:"unit_id"`
	UnitName string    `json:"unit_name"`
	Count    int       `json:"count"`
}

// Breakdown groups a flat recipient list by role and by unit. Both
// groupings sum to Total.
type Breakdown struct {
	Total      int         `json:"total"`
	ByRole     []RoleCount `json:"by_role"`
	ByUnit     []UnitCount `json:"by_unit"`
	Recipients []Recipient `json:"recipients,omitempty"`
}

// NewBreakdown builds a Breakdown over rs. Role groups follow hierarchy
// order; unit groups follow first appearance in rs.
func NewBreakdown(rs []Recipient) Breakdown {
	b := Breakdown{
		Total:      len(rs),
		ByRole:     make([]RoleCount, 0),
		ByUnit:     make([]UnitCount, 0),
		Recipients: rs,
	}

	roleCounts := make(map[Role]int)
	unitIdx := make(map[uuid.UUID]int)
	for _, r := range rs {
		roleCounts[r.Role]++
		if i, ok := unitIdx[r.UnitID]; ok {
			b.ByUnit[i].Count++
			continue
		}
		unitIdx[r.UnitID] = len(b.ByUnit)
		b.ByUnit = append(b.ByUnit, UnitCount{UnitID: r.UnitID, UnitName: r.UnitName, Count: 1})
	}
	for _, role := range AllRoles() {
		if n := roleCounts[role]; n > 0 {
			b.ByRole = append(b.ByRole, RoleCount{Role: role, Count: n})
		}
	}
	return b
}

// Summary returns b without the per-recipient list; this is what a
// broadcast row stores.
func (b Breakdown) Summary() Breakdown {
	b.Recipients = nil
	return b
}

// RecipientIDs returns the principal ids of rs in order.
func RecipientIDs(rs []Recipient) []uuid.UUID {
	ids := make([]uuid.UUID, len(rs))
	for i, r := range rs {
		ids[i] = r.PrincipalID
	}
	return ids
}
