package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
)

// ErrConflict is returned when a write would break a uniqueness constraint.
var ErrConflict = errors.New("unique constraint violated")

// Every method takes a context first: all implementations may do I/O.
//
// Single-row reads return nil, nil when the row does not exist. List reads
// return an empty slice, never nil, so JSON encodes [] rather than null.

// PrincipalFilter narrows ListPrincipals. Zero-valued fields do not filter.
type PrincipalFilter struct {
	IDs        []uuid.UUID
	Roles      []models.Role
	ActiveOnly bool
}

type UnitFilter struct {
	IDs        []uuid.UUID
	ParentIDs  []uuid.UUID
	Kind       models.UnitKind
	ActiveOnly bool
}

type AssignmentFilter struct {
	PrincipalIDs []uuid.UUID
	UnitIDs      []uuid.UUID
	Relations    []models.Relation
}

type ActivistFilter struct {
	CityIDs    []uuid.UUID
	LinkedOnly bool
	ActiveOnly bool
}

// HierarchyReader is the read surface of the hierarchy store.
type HierarchyReader interface {
	GetPrincipal(ctx context.Context, id uuid.UUID) (*models.Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error)
	ListPrincipals(ctx context.Context, f PrincipalFilter) ([]models.Principal, error)

	GetUnit(ctx context.Context, id uuid.UUID) (*models.Unit, error)
	ListUnits(ctx context.Context, f UnitFilter) ([]models.Unit, error)

	GetAssignment(ctx context.Context, id uuid.UUID) (*models.ScopeAssignment, error)
	ListAssignments(ctx context.Context, f AssignmentFilter) ([]models.ScopeAssignment, error)

	GetActivist(ctx context.Context, id uuid.UUID) (*models.Activist, error)
	GetActivistByPrincipal(ctx context.Context, principalID uuid.UUID) (*models.Activist, error)
	ListActivists(ctx context.Context, f ActivistFilter) ([]models.Activist, error)
}

// HierarchyWriter is the write surface of the hierarchy store. Application
// code only ever holds the guarded implementation (guard.Store); the raw
// implementation is reserved for the bootstrap path.
type HierarchyWriter interface {
	CreateUnit(ctx context.Context, u *models.Unit) error

	CreatePrincipal(ctx context.Context, p *models.Principal) error
	UpdatePrincipal(ctx context.Context, p *models.Principal) error
	DeletePrincipal(ctx context.Context, id uuid.UUID) error

	CreateActivist(ctx context.Context, a *models.Activist) error
	UpdateActivist(ctx context.Context, a *models.Activist) error
	DeleteActivist(ctx context.Context, id uuid.UUID) error

	CreateAssignment(ctx context.Context, a *models.ScopeAssignment) error
	DeleteAssignment(ctx context.Context, id uuid.UUID) error
}

// HierarchyStore is both halves together.
type HierarchyStore interface {
	HierarchyReader
	HierarchyWriter
}

// BroadcastTx is the write surface available inside one broadcast transaction.
type BroadcastTx interface {
	InsertBroadcast(ctx context.Context, b *models.Broadcast) error
	InsertAssignment(ctx context.Context, a *models.DeliveryAssignment) error
}

// BroadcastRepository persists broadcasts and the per-recipient inbox.
type BroadcastRepository interface {
	// WithinTx runs fn in one transaction. If fn returns an error nothing
	// fn wrote is visible afterwards.
	WithinTx(ctx context.Context, fn func(tx BroadcastTx) error) error

	GetBroadcast(ctx context.Context, id uuid.UUID) (*models.Broadcast, error)

	// ListSent returns broadcasts by senderID, newest first. before is a
	// created_at cursor; the zero time means "from the latest".
	ListSent(ctx context.Context, senderID uuid.UUID, before time.Time, limit int) ([]models.Broadcast, error)

	ListDeliveries(ctx context.Context, broadcastID uuid.UUID) ([]models.DeliveryAssignment, error)

	// ListInbox returns recipientID's assignments joined with content,
	// newest first, with the same cursor rules as ListSent.
	ListInbox(ctx context.Context, recipientID uuid.UUID, before time.Time, limit int) ([]models.InboxItem, error)

	// MarkDelivered moves pending assignments of broadcastID for the given
	// recipients to delivered and reports how many changed.
	MarkDelivered(ctx context.Context, broadcastID uuid.UUID, recipientIDs []uuid.UUID, at time.Time) (int, error)

	// MarkRead marks one assignment owned by recipientID as read. Returns
	// nil, nil when no such assignment belongs to recipientID.
	MarkRead(ctx context.Context, assignmentID, recipientID uuid.UUID, at time.Time) (*models.DeliveryAssignment, error)
}

// PushEndpointRepository stores device subscriptions.
type PushEndpointRepository interface {
	// Upsert inserts e or, if its endpoint URL exists, rebinds it to
	// e.PrincipalID with fresh keys and LastUsedAt.
	Upsert(ctx context.Context, e *models.PushEndpoint) error

	// ListFresh returns endpoints of the given principals used at or after since.
	ListFresh(ctx context.Context, principalIDs []uuid.UUID, since time.Time) ([]models.PushEndpoint, error)

	Touch(ctx context.Context, ids []uuid.UUID, at time.Time) error
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int, error)

	// DeleteForPrincipal removes one endpoint URL only if principalID owns it.
	DeleteForPrincipal(ctx context.Context, principalID uuid.UUID, endpoint string) (bool, error)
}

// AuditRepository is append-only.
type AuditRepository interface {
	Append(ctx context.Context, e *models.AuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error)
}
