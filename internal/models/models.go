package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UnitKind is the depth of an organisational unit below the root.
type UnitKind string

const (
	UnitRegion       UnitKind = "region"
	UnitCity         UnitKind = "city"
	UnitNeighborhood UnitKind = "neighborhood"
)

// ParentKind returns the kind a unit of kind k must hang under. Regions
// hang directly under the root and return "".
func (k UnitKind) ParentKind() UnitKind {
	switch k {
	case UnitCity:
		return UnitRegion
	case UnitNeighborhood:
		return UnitCity
	}
	return ""
}

// Unit is a node of the region → city → neighborhood tree.
type Unit struct {
	ID        uuid.UUID  `json:"id"`
	Kind      UnitKind   `json:"kind"`
	Name      string     `json:"name"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

// Principal is an authenticated user holding exactly one role.
//
// PasswordHash never leaves the server: it is tagged json:"-".
type Principal struct {
	ID           uuid.UUID `json:"id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ScopeAssignment is one edge between a principal and a unit.
//
// CityID is the tenant reference for relations below city level. For
// assigned_neighborhood it must equal the coordinator's coordinator_of city.
type ScopeAssignment struct {
	ID          uuid.UUID  `json:"id"`
	PrincipalID uuid.UUID  `json:"principal_id"`
	UnitID      uuid.UUID  `json:"unit_id"`
	Relation    Relation   `json:"relation"`
	CityID      *uuid.UUID `json:"city_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Activist is a field volunteer managed by an activist coordinator. When
// PrincipalID is set the activist can sign in as a principal with role ACTIVIST.
type Activist struct {
	ID             uuid.UUID  `json:"id"`
	PrincipalID    *uuid.UUID `json:"principal_id,omitempty"`
	FullName       string     `json:"full_name"`
	NeighborhoodID uuid.UUID  `json:"neighborhood_id"`
	CityID         *uuid.UUID `json:"city_id,omitempty"`
	CoordinatorID  uuid.UUID  `json:"coordinator_id"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Priority of a broadcast task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// SendMode selects how a sender chose recipients.
type SendMode string

const (
	SendModeAll      SendMode = "all"
	SendModeSelected SendMode = "selected"
)

// Content is the message part of a broadcast.
type Content struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Priority Priority `json:"priority"`
}

// Broadcast is an immutable record of one send. RecipientCount and
// Breakdown are captured at send time and never recomputed.
type Broadcast struct {
	ID             uuid.UUID `json:"id"`
	SenderID       uuid.UUID `json:"sender_id"`
	SenderRole     Role      `json:"sender_role"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Priority       Priority  `json:"priority"`
	Mode           SendMode  `json:"mode"`
	RecipientCount int       `json:"recipient_count"`
	Breakdown      Breakdown `json:"breakdown"`
	CreatedAt      time.Time `json:"created_at"`
}

// AssignmentStatus is the inbox state of a DeliveryAssignment.
type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentDelivered AssignmentStatus = "delivered"
	AssignmentRead      AssignmentStatus = "read"
)

// DeliveryAssignment is the inbox row for one (broadcast, recipient) pair.
type DeliveryAssignment struct {
	ID          uuid.UUID        `json:"id"`
	BroadcastID uuid.UUID        `json:"broadcast_id"`
	RecipientID uuid.UUID        `json:"recipient_id"`
	Status      AssignmentStatus `json:"status"`
	DeliveredAt *time.Time       `json:"delivered_at,omitempty"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// InboxItem is a DeliveryAssignment joined with its broadcast content.
type InboxItem struct {
	DeliveryAssignment
	SenderID uuid.UUID `json:"sender_id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Priority Priority  `json:"priority"`
}

// PushEndpoint is one registered device or browser subscription.
type PushEndpoint struct {
	ID          uuid.UUID `json:"id"`
	PrincipalID uuid.UUID `json:"principal_id"`
	Endpoint    string    `json:"endpoint"`
	P256dh      string    `json:"p256dh"`
	Auth        string    `json:"auth"`
	UserAgent   string    `json:"user_agent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

// AuditEntry is an append-only record of one mutation or rejection.
type AuditEntry struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    *uuid.UUID      `json:"actor_id,omitempty"`
	ActorRole  Role            `json:"actor_role,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Scope      json.RawMessage `json:"scope,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
