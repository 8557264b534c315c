package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/orgcast/internal/apperr"
	"github.com/lalith-99/orgcast/internal/repository"
	"go.uber.org/zap"
)

// writeError maps the error taxonomy onto HTTP. Anything unclassified is
// logged and reported as a generic 500 with msg.
func writeError(c *gin.Context, logger *zap.Logger, err error, msg string) {
	var v *apperr.Violation
	switch {
	case errors.As(err, &v):
		c.JSON(http.StatusConflict, gin.H{"error": v.Reason, "rule": v.Rule})
	case errors.Is(err, repository.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": reason(err, apperr.ErrUnauthorized)})
	case errors.Is(err, apperr.ErrScopeEmpty):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no recipients in scope yet"})
	case errors.Is(err, apperr.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": reason(err, apperr.ErrInvalidInput)})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		logger.Error(msg, zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// reason strips the sentinel prefix: "unauthorized: not permitted to send"
// becomes "not permitted to send".
func reason(err, sentinel error) string {
	s := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(s, prefix); i >= 0 {
		return s[i+len(prefix):]
	}
	return s
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// page reads the ?before=<RFC3339>&limit=<n> cursor shared by list endpoints.
func page(c *gin.Context) (before time.Time, limit int, ok bool) {
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "before must be an RFC 3339 timestamp"})
			return time.Time{}, 0, false
		}
		before = t
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return time.Time{}, 0, false
		}
		limit = n
	}
	return before, limit, true
}
