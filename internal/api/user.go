package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/orgcast/internal/middleware"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/scope"
	"go.uber.org/zap"
)

// UserHandler serves the caller's own view of themselves.
type UserHandler struct {
	scopes *scope.Resolver
	logger *zap.Logger
}

func NewUserHandler(scopes *scope.Resolver, logger *zap.Logger) *UserHandler {
	return &UserHandler{scopes: scopes, logger: logger}
}

type meResponse struct {
	models.Principal
	Scope        models.Scope `json:"scope"`
	CanBroadcast bool         `json:"can_broadcast"`
}

// GetMe handles GET /v1/me
//
// The principal was reloaded by AuthMiddleware, so no second lookup is needed.
func (h *UserHandler) GetMe(c *gin.Context) {
	p := middleware.GetPrincipal(c)

	sc, err := h.scopes.Resolve(c.Request.Context(), p)
	if err != nil {
		writeError(c, h.logger, err, "failed to resolve scope")
		return
	}

	c.JSON(http.StatusOK, meResponse{
		Principal:    p,
		Scope:        sc,
		CanBroadcast: p.Role.CanBroadcast(),
	})
}

// GetScope handles GET /v1/me/scope
func (h *UserHandler) GetScope(c *gin.Context) {
	sc, err := h.scopes.Resolve(c.Request.Context(), middleware.GetPrincipal(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to resolve scope")
		return
	}
	c.JSON(http.StatusOK, sc)
}
