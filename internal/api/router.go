package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/orgcast/internal/broadcast"
	"github.com/lalith-99/orgcast/internal/middleware"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/observ"
	"github.com/lalith-99/orgcast/internal/ratelimit"
	"github.com/lalith-99/orgcast/internal/recipients"
	"github.com/lalith-99/orgcast/internal/repository"
	"github.com/lalith-99/orgcast/internal/scope"
	"go.uber.org/zap"
)

// Deps is everything the HTTP surface is wired from.
type Deps struct {
	// Hierarchy must be the guarded store.
	Hierarchy  repository.HierarchyStore
	Endpoints  repository.PushEndpointRepository
	Audit      repository.AuditRepository
	Scopes     *scope.Resolver
	Recipients *recipients.Resolver
	Broadcasts *broadcast.Service
	Limiter    ratelimit.Limiter
	Metrics    *observ.Metrics

	JWTSecret      string
	JWTTTL         time.Duration
	VAPIDPublicKey string

	Logger *zap.Logger
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(d.Logger))
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}

	// Public: load balancers and browsers before login.
	r.GET("/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authH := NewAuthHandler(d.Hierarchy, d.JWTSecret, d.JWTTTL, d.Logger)
	pushH := NewPushHandler(d.Endpoints, d.VAPIDPublicKey, d.Logger)
	r.POST("/v1/auth/login", authH.Login)
	r.GET("/v1/push/public-key", pushH.PublicKey)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(d.JWTSecret, d.Hierarchy, d.Scopes, d.Logger))

	userH := NewUserHandler(d.Scopes, d.Logger)
	v1.GET("/me", userH.GetMe)
	v1.GET("/me/scope", userH.GetScope)

	bh := NewBroadcastHandler(d.Recipients, d.Broadcasts, d.Logger)
	v1.GET("/recipients", bh.ListRecipients)
	v1.POST("/recipients/validate", bh.ValidateRecipients)
	v1.POST("/broadcasts/preview", bh.Preview)
	if d.Limiter != nil {
		v1.POST("/broadcasts", middleware.RateLimit(d.Limiter, d.Metrics, d.Logger), bh.Send)
	} else {
		v1.POST("/broadcasts", bh.Send)
	}
	v1.GET("/broadcasts", bh.ListSent)
	v1.GET("/broadcasts/:id", bh.Get)
	v1.GET("/inbox", bh.Inbox)
	v1.POST("/inbox/:id/read", bh.MarkRead)

	v1.POST("/push/subscriptions", pushH.Subscribe)
	v1.DELETE("/push/subscriptions", pushH.Unsubscribe)

	org := v1.Group("/org")
	oh := NewOrgHandler(d.Hierarchy, d.Logger)

	units := org.Group("/units", middleware.RequireRole(models.RoleSuperAdmin))
	units.POST("", oh.CreateUnit)

	principals := org.Group("/principals", middleware.RequireRole(
		models.RoleSuperAdmin, models.RoleAreaManager, models.RoleCityCoordinator))
	principals.POST("", oh.CreatePrincipal)
	principals.PATCH("/:id", oh.UpdatePrincipal)
	principals.POST("/:id/deactivate", oh.DeactivatePrincipal)
	principals.DELETE("/:id", oh.DeletePrincipal)

	activists := org.Group("/activists", middleware.RequireRole(
		models.RoleSuperAdmin, models.RoleAreaManager, models.RoleCityCoordinator, models.RoleActivistCoordinator))
	activists.POST("", oh.CreateActivist)
	activists.PATCH("/:id", oh.UpdateActivist)
	activists.POST("/:id/deactivate", oh.DeactivateActivist)
	activists.DELETE("/:id", oh.DeleteActivist)

	assignments := org.Group("/assignments", middleware.RequireRole(models.RoleSuperAdmin, models.RoleAreaManager))
	assignments.POST("", oh.CreateAssignment)
	assignments.DELETE("/:id", oh.DeleteAssignment)

	ah := NewAuditHandler(d.Audit, d.Logger)
	v1.GET("/audit", middleware.RequireRole(models.RoleSuperAdmin), ah.List)

	return r
}
