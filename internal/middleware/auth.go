package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/audit"
	"github.com/lalith-99/orgcast/internal/auth"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
	"go.uber.org/zap"
)

const (
	ContextKeyPrincipal = "principal"
	ContextKeyRequestID = "request_id"
)

// ScopeResolver computes the scope recorded with a principal's mutations.
type ScopeResolver interface {
	Resolve(ctx context.Context, p models.Principal) (models.Scope, error)
}

// AuthMiddleware validates the bearer token and reloads the principal it
// names. The token only proves identity: role and active flag always come
// from the store, so a deactivated principal is locked out at once.
//
// On success the principal is stored in gin's context and an audit actor
// is attached to the request context. For writes the actor also carries
// the principal's scope, so every audited mutation records it; scopes may
// be nil.
//
// Why resolve scope only for writes?
//   - Reads are never audited, and resolving walks the hierarchy.
//   - A guard rejection on a write is audited from deep inside the store,
//     where the request's principal is no longer at hand.
//
// Why take the secret and stores as parameters?
//   - The middleware never imports config; main.go wires cfg.JWTSecret.
//   - Tests pass any secret and a memory store.
func AuthMiddleware(secret string, principals repository.HierarchyReader, scopes ScopeResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		claims, err := auth.ParseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		p, err := principals.GetPrincipal(c.Request.Context(), claims.PrincipalID)
		if err != nil {
			logger.Error("failed to load principal", zap.Stringer("principal_id", claims.PrincipalID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
			return
		}
		if p == nil || !p.IsActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyPrincipal, *p)
		actor := audit.Actor{
			ID:        p.ID,
			Role:      p.Role,
			RequestID: GetRequestID(c),
		}
		if scopes != nil && isWrite(c.Request.Method) {
			sc, err := scopes.Resolve(c.Request.Context(), *p)
			if err != nil {
				logger.Warn("resolve scope for audit", zap.Stringer("principal_id", p.ID), zap.Error(err))
			} else {
				actor.Scope = &sc
			}
		}
		c.Request = c.Request.WithContext(audit.WithActor(c.Request.Context(), actor))

		c.Next()
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// RequireRole lets only the listed roles through.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

// GetPrincipal returns the authenticated principal, or the zero Principal
// outside AuthMiddleware.
func GetPrincipal(c *gin.Context) models.Principal {
	val, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return models.Principal{}
	}
	p, ok := val.(models.Principal)
	if !ok {
		return models.Principal{}
	}
	return p
}

func GetPrincipalID(c *gin.Context) uuid.UUID {
	return GetPrincipal(c).ID
}
