package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/apperr"
	"github.com/lalith-99/orgcast/internal/middleware"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// OrgHandler exposes the organisational writes. store must be the guarded
// store: every write here goes through the guard rules and the audit trail.
type OrgHandler struct {
	store  repository.HierarchyStore
	logger *zap.Logger
}

func NewOrgHandler(store repository.HierarchyStore, logger *zap.Logger) *OrgHandler {
	return &OrgHandler{store: store, logger: logger}
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

type createUnitRequest struct {
	Kind     models.UnitKind `json:"kind" binding:"required"`
	Name     string          `json:"name" binding:"required"`
	ParentID *uuid.UUID      `json:"parent_id"`
}

// CreateUnit handles POST /v1/org/units
func (h *OrgHandler) CreateUnit(c *gin.Context) {
	var req createUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u := &models.Unit{
		Kind:     req.Kind,
		Name:     strings.TrimSpace(req.Name),
		ParentID: req.ParentID,
		IsActive: true,
	}
	if err := h.store.CreateUnit(c.Request.Context(), u); err != nil {
		writeError(c, h.logger, err, "failed to create unit")
		return
	}
	c.JSON(http.StatusCreated, u)
}

type createPrincipalRequest struct {
	FullName string      `json:"full_name" binding:"required"`
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required,min=8"`
	Role     models.Role `json:"role" binding:"required"`
}

// CreatePrincipal handles POST /v1/org/principals
//
// Callers may only create roles below their own. Roles that can never be
// assigned are passed on so the guard rejects and audits them.
func (h *OrgHandler) CreatePrincipal(c *gin.Context) {
	var req createPrincipalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	caller := middleware.GetPrincipal(c)
	if req.Role.Assignable() && !caller.Role.Outranks(req.Role) {
		writeError(c, h.logger, apperr.Unauthorized(fmt.Sprintf("%s may not create %s", caller.Role, req.Role)), "")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create principal"})
		return
	}

	p := &models.Principal{
		FullName:     strings.TrimSpace(req.FullName),
		Email:        strings.ToLower(req.Email),
		PasswordHash: string(hash),
		Role:         req.Role,
		IsActive:     true,
	}
	if err := h.store.CreatePrincipal(c.Request.Context(), p); err != nil {
		writeError(c, h.logger, err, "failed to create principal")
		return
	}
	c.JSON(http.StatusCreated, p)
}

// loadSubordinate returns the principal at :id if the caller outranks it.
func (h *OrgHandler) loadSubordinate(c *gin.Context) (*models.Principal, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	p, err := h.store.GetPrincipal(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err, "failed to load principal")
		return nil, false
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	caller := middleware.GetPrincipal(c)
	if !caller.Role.Outranks(p.Role) {
		writeError(c, h.logger, apperr.Unauthorized(fmt.Sprintf("%s may not modify %s", caller.Role, p.Role)), "")
		return nil, false
	}
	return p, true
}

type updatePrincipalRequest struct {
	FullName *string      `json:"full_name"`
	Email    *string      `json:"email" binding:"omitempty,email"`
	Role     *models.Role `json:"role"`
}

// UpdatePrincipal handles PATCH /v1/org/principals/:id
func (h *OrgHandler) UpdatePrincipal(c *gin.Context) {
	var req updatePrincipalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, ok := h.loadSubordinate(c)
	if !ok {
		return
	}
	if req.FullName != nil {
		p.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Email != nil {
		p.Email = strings.ToLower(*req.Email)
	}
	if req.Role != nil {
		p.Role = *req.Role
	}
	if err := h.store.UpdatePrincipal(c.Request.Context(), p); err != nil {
		writeError(c, h.logger, err, "failed to update principal")
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeactivatePrincipal handles POST /v1/org/principals/:id/deactivate
func (h *OrgHandler) DeactivatePrincipal(c *gin.Context) {
	p, ok := h.loadSubordinate(c)
	if !ok {
		return
	}
	p.IsActive = false
	if err := h.store.UpdatePrincipal(c.Request.Context(), p); err != nil {
		writeError(c, h.logger, err, "failed to deactivate principal")
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeletePrincipal handles DELETE /v1/org/principals/:id. Principals are
// never hard deleted, so this always ends in a guard rejection.
func (h *OrgHandler) DeletePrincipal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.store.DeletePrincipal(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err, "failed to delete principal")
		return
	}
	c.Status(http.StatusNoContent)
}

type activistRequest struct {
	FullName       *string    `json:"full_name"`
	NeighborhoodID *uuid.UUID `json:"neighborhood_id"`
	CoordinatorID  *uuid.UUID `json:"coordinator_id"`
	CityID         *uuid.UUID `json:"city_id"`
	PrincipalID    *uuid.UUID `json:"principal_id"`
}

func (req activistRequest) apply(a *models.Activist) {
	if req.FullName != nil {
		a.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.NeighborhoodID != nil {
		a.NeighborhoodID = *req.NeighborhoodID
	}
	if req.CoordinatorID != nil {
		a.CoordinatorID = *req.CoordinatorID
	}
	if req.CityID != nil {
		a.CityID = req.CityID
	}
	if req.PrincipalID != nil {
		a.PrincipalID = req.PrincipalID
	}
}

// CreateActivist handles POST /v1/org/activists
//
// An activist coordinator always creates activists under themselves. An
// omitted city_id is filled in from the coordinator's city by the guard.
func (h *OrgHandler) CreateActivist(c *gin.Context) {
	var req activistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	caller := middleware.GetPrincipal(c)
	if caller.Role == models.RoleActivistCoordinator {
		req.CoordinatorID = &caller.ID
	}
	if req.FullName == nil || strings.TrimSpace(*req.FullName) == "" || req.NeighborhoodID == nil || req.CoordinatorID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "full_name, neighborhood_id and coordinator_id are required"})
		return
	}

	a := &models.Activist{IsActive: true}
	req.apply(a)
	if err := h.store.CreateActivist(c.Request.Context(), a); err != nil {
		writeError(c, h.logger, err, "failed to create activist")
		return
	}
	c.JSON(http.StatusCreated, a)
}

// loadActivist returns the activist at :id. Activist coordinators only see
// their own activists.
func (h *OrgHandler) loadActivist(c *gin.Context) (*models.Activist, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	a, err := h.store.GetActivist(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err, "failed to load activist")
		return nil, false
	}
	caller := middleware.GetPrincipal(c)
	if a == nil || (caller.Role == models.RoleActivistCoordinator && a.CoordinatorID != caller.ID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	return a, true
}

// UpdateActivist handles PATCH /v1/org/activists/:id
func (h *OrgHandler) UpdateActivist(c *gin.Context) {
	var req activistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, ok := h.loadActivist(c)
	if !ok {
		return
	}
	if middleware.GetPrincipal(c).Role == models.RoleActivistCoordinator {
		req.CoordinatorID = nil
	}
	req.apply(a)
	if err := h.store.UpdateActivist(c.Request.Context(), a); err != nil {
		writeError(c, h.logger, err, "failed to update activist")
		return
	}
	c.JSON(http.StatusOK, a)
}

// DeactivateActivist handles POST /v1/org/activists/:id/deactivate
func (h *OrgHandler) DeactivateActivist(c *gin.Context) {
	a, ok := h.loadActivist(c)
	if !ok {
		return
	}
	a.IsActive = false
	if err := h.store.UpdateActivist(c.Request.Context(), a); err != nil {
		writeError(c, h.logger, err, "failed to deactivate activist")
		return
	}
	c.JSON(http.StatusOK, a)
}

// DeleteActivist handles DELETE /v1/org/activists/:id and is always rejected.
func (h *OrgHandler) DeleteActivist(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteActivist(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err, "failed to delete activist")
		return
	}
	c.Status(http.StatusNoContent)
}

type createAssignmentRequest struct {
	PrincipalID uuid.UUID       `json:"principal_id" binding:"required"`
	UnitID      uuid.UUID       `json:"unit_id" binding:"required"`
	Relation    models.Relation `json:"relation" binding:"required"`
	CityID      *uuid.UUID      `json:"city_id"`
}

// CreateAssignment handles POST /v1/org/assignments
func (h *OrgHandler) CreateAssignment(c *gin.Context) {
	var req createAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a := &models.ScopeAssignment{
		PrincipalID: req.PrincipalID,
		UnitID:      req.UnitID,
		Relation:    req.Relation,
		CityID:      req.CityID,
	}
	if err := h.store.CreateAssignment(c.Request.Context(), a); err != nil {
		writeError(c, h.logger, err, "failed to create assignment")
		return
	}
	c.JSON(http.StatusCreated, a)
}

// DeleteAssignment handles DELETE /v1/org/assignments/:id
func (h *OrgHandler) DeleteAssignment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteAssignment(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err, "failed to delete assignment")
		return
	}
	c.Status(http.StatusNoContent)
}
