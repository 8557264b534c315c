package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/apperr"
	"github.com/lalith-99/orgcast/internal/broadcast"
	"github.com/lalith-99/orgcast/internal/middleware"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/recipients"
	"go.uber.org/zap"
)

// BroadcastHandler serves recipient resolution, sending, history and inbox.
type BroadcastHandler struct {
	recipients *recipients.Resolver
	service    *broadcast.Service
	logger     *zap.Logger
}

func NewBroadcastHandler(res *recipients.Resolver, service *broadcast.Service, logger *zap.Logger) *BroadcastHandler {
	return &BroadcastHandler{recipients: res, service: service, logger: logger}
}

type recipientsResponse struct {
	Recipients []models.Recipient `json:"recipients"`
	Total      int                `json:"total"`
}

// ListRecipients handles GET /v1/recipients
//
// A sender with no scope yet gets an empty list, not an error; a role that
// may never send gets 403.
func (h *BroadcastHandler) ListRecipients(c *gin.Context) {
	rs, err := h.recipients.AllRecipientsUnder(c.Request.Context(), middleware.GetPrincipal(c))
	if errors.Is(err, apperr.ErrScopeEmpty) {
		rs, err = []models.Recipient{}, nil
	}
	if err != nil {
		writeError(c, h.logger, err, "failed to resolve recipients")
		return
	}
	c.JSON(http.StatusOK, recipientsResponse{Recipients: rs, Total: len(rs)})
}

type validateRequest struct {
	RecipientIDs []uuid.UUID `json:"recipient_ids" binding:"required"`
}

// ValidateRecipients handles POST /v1/recipients/validate
func (h *BroadcastHandler) ValidateRecipients(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ids, err := h.recipients.ValidateRecipients(c.Request.Context(), req.RecipientIDs, middleware.GetPrincipal(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to validate recipients")
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipient_ids": ids})
}

type previewRequest struct {
	Mode         models.SendMode `json:"mode"`
	RecipientIDs []uuid.UUID     `json:"recipient_ids"`
}

// Preview handles POST /v1/broadcasts/preview
func (h *BroadcastHandler) Preview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Mode == "" {
		req.Mode = models.SendModeAll
	}

	b, err := h.recipients.Preview(c.Request.Context(), middleware.GetPrincipal(c), req.Mode, req.RecipientIDs)
	if errors.Is(err, apperr.ErrScopeEmpty) {
		b, err = models.NewBreakdown(nil), nil
		b.Recipients = []models.Recipient{}
	}
	if err != nil {
		writeError(c, h.logger, err, "failed to preview recipients")
		return
	}
	c.JSON(http.StatusOK, b)
}

type sendResponse struct {
	Broadcast *models.Broadcast `json:"broadcast"`
	Message   string            `json:"message"`
}

// Send handles POST /v1/broadcasts
func (h *BroadcastHandler) Send(c *gin.Context) {
	var req broadcast.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b, err := h.service.Send(c.Request.Context(), middleware.GetPrincipal(c), req)
	if err != nil {
		writeError(c, h.logger, err, "failed to send broadcast")
		return
	}
	c.JSON(http.StatusCreated, sendResponse{
		Broadcast: b,
		Message:   fmt.Sprintf("sent to %d recipients", b.RecipientCount),
	})
}

// ListSent handles GET /v1/broadcasts?before=&limit=
func (h *BroadcastHandler) ListSent(c *gin.Context) {
	before, limit, ok := page(c)
	if !ok {
		return
	}
	out, err := h.service.ListSent(c.Request.Context(), middleware.GetPrincipal(c), before, limit)
	if err != nil {
		writeError(c, h.logger, err, "failed to list broadcasts")
		return
	}
	c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/broadcasts/:id
func (h *BroadcastHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid broadcast id"})
		return
	}
	d, err := h.service.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		writeError(c, h.logger, err, "failed to get broadcast")
		return
	}
	c.JSON(http.StatusOK, d)
}

// Inbox handles GET /v1/inbox?before=&limit=
func (h *BroadcastHandler) Inbox(c *gin.Context) {
	before, limit, ok := page(c)
	if !ok {
		return
	}
	out, err := h.service.Inbox(c.Request.Context(), middleware.GetPrincipal(c), before, limit)
	if err != nil {
		writeError(c, h.logger, err, "failed to list inbox")
		return
	}
	c.JSON(http.StatusOK, out)
}

// MarkRead handles POST /v1/inbox/:id/read
func (h *BroadcastHandler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assignment id"})
		return
	}
	a, err := h.service.MarkRead(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		writeError(c, h.logger, err, "failed to mark read")
		return
	}
	c.JSON(http.StatusOK, a)
}
