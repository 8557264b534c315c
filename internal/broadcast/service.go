package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/apperr"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
	"go.uber.org/zap"
)

const (
	maxTitleLen = 200
	maxBodyLen  = 5000

	defaultPageSize = 50
	maxPageSize     = 100
)

// RecipientSource resolves the recipients of one send.
type RecipientSource interface {
	Resolve(ctx context.Context, sender models.Principal, mode models.SendMode, ids []uuid.UUID) ([]models.Recipient, error)
}

// SendRequest is one "send task" action.
type SendRequest struct {
	Mode         models.SendMode `json:"mode"`
	RecipientIDs []uuid.UUID     `json:"recipient_ids"`
	Title        string          `json:"title"`
	Body         string          `json:"body"`
	Priority     models.Priority `json:"priority"`
}

// Detail is a broadcast together with its assignments.
type Detail struct {
	models.Broadcast
	Assignments []models.DeliveryAssignment `json:"assignments"`
}

// Service is the broadcast use-case surface: send, history and inbox.
type Service struct {
	recipients RecipientSource
	dispatcher *Dispatcher
	repo       repository.BroadcastRepository
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(recipients RecipientSource, dispatcher *Dispatcher, repo repository.BroadcastRepository, logger *zap.Logger) *Service {
	return &Service{
		recipients: recipients,
		dispatcher: dispatcher,
		repo:       repo,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Send resolves recipients for req and dispatches. Resolution failures
// (ErrUnauthorized, ErrScopeEmpty, ErrInvalidInput) are returned as is.
func (s *Service) Send(ctx context.Context, sender models.Principal, req SendRequest) (*models.Broadcast, error) {
	content, err := normalizeContent(req)
	if err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = models.SendModeAll
	}

	rs, err := s.recipients.Resolve(ctx, sender, req.Mode, req.RecipientIDs)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		// A valid sender whose scope currently holds nobody.
		return nil, fmt.Errorf("%w: nobody to send to", apperr.ErrScopeEmpty)
	}
	return s.dispatcher.Dispatch(ctx, sender, rs, content, req.Mode)
}

func normalizeContent(req SendRequest) (models.Content, error) {
	c := models.Content{
		Title:    strings.TrimSpace(req.Title),
		Body:     strings.TrimSpace(req.Body),
		Priority: req.Priority,
	}
	if c.Priority == "" {
		c.Priority = models.PriorityNormal
	}
	switch {
	case c.Title == "":
		return c, apperr.Invalid("title is required")
	case utf8.RuneCountInString(c.Title) > maxTitleLen:
		return c, apperr.Invalid(fmt.Sprintf("title exceeds %d characters", maxTitleLen))
	case c.Body == "":
		return c, apperr.Invalid("body is required")
	case utf8.RuneCountInString(c.Body) > maxBodyLen:
		return c, apperr.Invalid(fmt.Sprintf("body exceeds %d characters", maxBodyLen))
	case !c.Priority.IsValid():
		return c, apperr.Invalid(fmt.Sprintf("unknown priority %q", c.Priority))
	}
	return c, nil
}

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return min(limit, maxPageSize)
}

// ListSent returns the sender's broadcasts, newest first.
func (s *Service) ListSent(ctx context.Context, sender models.Principal, before time.Time, limit int) ([]models.Broadcast, error) {
	out, err := s.repo.ListSent(ctx, sender.ID, before, pageSize(limit))
	if err != nil {
		return nil, fmt.Errorf("list sent broadcasts: %w", err)
	}
	return out, nil
}

// Get returns one broadcast with its assignments. Only the sender and
// SUPERADMIN may see it; everyone else gets ErrNotFound.
func (s *Service) Get(ctx context.Context, viewer models.Principal, id uuid.UUID) (*Detail, error) {
	b, err := s.repo.GetBroadcast(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get broadcast: %w", err)
	}
	if b == nil || (b.SenderID != viewer.ID && viewer.Role != models.RoleSuperAdmin) {
		return nil, fmt.Errorf("broadcast %s: %w", id, apperr.ErrNotFound)
	}
	as, err := s.repo.ListDeliveries(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return &Detail{Broadcast: *b, Assignments: as}, nil
}

// Inbox lists the recipient's assignments with content, newest first.
func (s *Service) Inbox(ctx context.Context, recipient models.Principal, before time.Time, limit int) ([]models.InboxItem, error) {
	out, err := s.repo.ListInbox(ctx, recipient.ID, before, pageSize(limit))
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	return out, nil
}

// MarkRead marks one of the recipient's assignments read. Marking twice
// is harmless; another principal's assignment is ErrNotFound.
func (s *Service) MarkRead(ctx context.Context, recipient models.Principal, assignmentID uuid.UUID) (*models.DeliveryAssignment, error) {
	a, err := s.repo.MarkRead(ctx, assignmentID, recipient.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("assignment %s: %w", assignmentID, apperr.ErrNotFound)
	}
	return a, nil
}
