package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/orgcast/internal/repository"
	"go.uber.org/zap"
)

type AuditHandler struct {
	repo   repository.AuditRepository
	logger *zap.Logger
}

func NewAuditHandler(repo repository.AuditRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{repo: repo, logger: logger}
}

// List handles GET /v1/audit?limit=
func (h *AuditHandler) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, 500)
	}
	out, err := h.repo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, h.logger, err, "failed to list audit entries")
		return
	}
	c.JSON(http.StatusOK, out)
}
