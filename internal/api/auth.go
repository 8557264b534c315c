package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/orgcast/internal/auth"
	"github.com/lalith-99/orgcast/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler serves login, the only public endpoint that reads principals.
// There is no signup: principals are created by their superiors through
// the guarded org endpoints, and the first SUPERADMIN by cmd/bootstrap.
type AuthHandler struct {
	principals repository.HierarchyReader
	jwtSecret  string
	ttl        time.Duration
	logger     *zap.Logger
}

func NewAuthHandler(principals repository.HierarchyReader, jwtSecret string, ttl time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		principals: principals,
		jwtSecret:  jwtSecret,
		ttl:        ttl,
		logger:     logger,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string `json:"token"`
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := h.principals.GetPrincipalByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil {
		h.logger.Error("failed to find principal", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	// Same answer for unknown email, wrong password and deactivated
	// accounts so the endpoint does not reveal which emails exist.
	if p == nil || !p.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := auth.GenerateToken(*p, h.jwtSecret, h.ttl)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, authResponse{Token: token})
}
