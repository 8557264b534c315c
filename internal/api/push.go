package api

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/orgcast/internal/middleware"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
	"go.uber.org/zap"
)

// PushHandler registers and removes device subscriptions.
type PushHandler struct {
	repo      repository.PushEndpointRepository
	publicKey string
	logger    *zap.Logger
}

// NewPushHandler builds the handler. publicKey is empty when push is not
// configured; subscriptions are still stored so they work once it is.
func NewPushHandler(repo repository.PushEndpointRepository, publicKey string, logger *zap.Logger) *PushHandler {
	return &PushHandler{repo: repo, publicKey: publicKey, logger: logger}
}

// subscribeRequest mirrors the browser's PushSubscription.toJSON().
type subscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys"`
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// PublicKey handles GET /v1/push/public-key
func (h *PushHandler) PublicKey(c *gin.Context) {
	if h.publicKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "push is not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.publicKey})
}

// Subscribe handles POST /v1/push/subscriptions
//
// Re-subscribing an endpoint URL moves it to the caller and refreshes its
// keys and liveness.
func (h *PushHandler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := url.Parse(req.Endpoint)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint must be an absolute http(s) URL"})
		return
	}

	e := &models.PushEndpoint{
		PrincipalID: middleware.GetPrincipalID(c),
		Endpoint:    req.Endpoint,
		P256dh:      req.Keys.P256dh,
		Auth:        req.Keys.Auth,
		UserAgent:   c.Request.UserAgent(),
	}
	if err := h.repo.Upsert(c.Request.Context(), e); err != nil {
		writeError(c, h.logger, err, "failed to save subscription")
		return
	}
	c.JSON(http.StatusCreated, e)
}

// Unsubscribe handles DELETE /v1/push/subscriptions
func (h *PushHandler) Unsubscribe(c *gin.Context) {
	var req unsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ok, err := h.repo.DeleteForPrincipal(c.Request.Context(), middleware.GetPrincipalID(c), req.Endpoint)
	if err != nil {
		writeError(c, h.logger, err, "failed to remove subscription")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
