package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/audit"
	"github.com/lalith-99/orgcast/internal/auth"
	"github.com/lalith-99/orgcast/internal/broadcast"
	"github.com/lalith-99/orgcast/internal/guard"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/ratelimit"
	"github.com/lalith-99/orgcast/internal/recipients"
	"github.com/lalith-99/orgcast/internal/scope"
	"github.com/lalith-99/orgcast/internal/testkit"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type app struct {
	t      *testing.T
	h      *testkit.Hierarchy
	router *gin.Engine
	trail  *audit.Trail
}

func newApp(t *testing.T, limiter ratelimit.Limiter) *app {
	t.Helper()
	h := testkit.NewHierarchy(t)
	h.Region("North")
	h.City("Haifa", "North")
	h.City("Akko", "North")
	h.Neighborhood("Hadar", "Haifa")
	h.Principal("Root", models.RoleSuperAdmin)
	h.Principal("Dana", models.RoleAreaManager)
	h.Assign("Dana", models.RelationManagesRegion, "North")
	h.Principal("Yossi", models.RoleCityCoordinator)
	h.Assign("Yossi", models.RelationCoordinatesCity, "Haifa")
	h.Principal("Maya", models.RoleActivistCoordinator)
	h.Assign("Maya", models.RelationCoordinatorOf, "Haifa")
	h.Principal("Shir", models.RoleActivistCoordinator)
	h.Assign("Shir", models.RelationCoordinatorOf, "Haifa")
	h.Principal("Ron", models.RoleActivistCoordinator)
	h.Assign("Ron", models.RelationCoordinatorOf, "Akko")

	logger := zap.NewNop()
	trail := audit.NewTrail(h.Store, logger, nil, 64)
	t.Cleanup(func() { _ = trail.Close(context.Background()) })

	guarded := guard.New(h.Store, trail, nil, logger)
	scopes := scope.NewResolver(guarded, logger)
	res := recipients.NewResolver(guarded, scopes, logger)
	disp := broadcast.NewDispatcher(h.Store, nil, scopes, trail, nil, logger)

	router := NewRouter(Deps{
		Hierarchy:  guarded,
		Endpoints:  h.Store,
		Audit:      h.Store,
		Scopes:     scopes,
		Recipients: res,
		Broadcasts: broadcast.NewService(res, disp, h.Store, logger),
		Limiter:    limiter,
		JWTSecret:  secret,
		JWTTTL:     time.Hour,
		Logger:     logger,
	})
	return &app{t: t, h: h, router: router, trail: trail}
}

func (a *app) token(name string) string {
	a.t.Helper()
	tok, err := auth.GenerateToken(a.h.Get(name), secret, time.Hour)
	require.NoError(a.t, err)
	return tok
}

// do sends body as JSON on behalf of the named principal ("" for anonymous)
// and decodes the response into out when out is non-nil.
func (a *app) do(method, path, as string, body any, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(as))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if out != nil {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

// auditActions drains the trail and returns every recorded action.
func (a *app) auditActions() []string {
	a.t.Helper()
	require.NoError(a.t, a.trail.Close(context.Background()))
	entries, err := a.h.Store.ListRecent(context.Background(), 100)
	require.NoError(a.t, err)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func TestLogin(t *testing.T) {
	a := newApp(t, nil)
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	p := a.h.Get("Yossi")
	p.PasswordHash = string(hash)
	require.NoError(t, a.h.Store.UpdatePrincipal(context.Background(), &p))

	var resp authResponse
	code := a.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "YOSSI@example.org", "password": "correct horse"}, &resp)
	require.Equal(t, http.StatusOK, code)
	claims, err := auth.ParseToken(resp.Token, secret)
	require.NoError(t, err)
	require.Equal(t, p.ID, claims.PrincipalID)

	require.Equal(t, http.StatusUnauthorized,
		a.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "yossi@example.org", "password": "wrong"}, nil))
	require.Equal(t, http.StatusUnauthorized,
		a.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "nobody@example.org", "password": "x"}, nil))
	require.Equal(t, http.StatusBadRequest,
		a.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "not-an-email"}, nil))
}

func TestMeIncludesScope(t *testing.T) {
	a := newApp(t, nil)

	var me struct {
		ID           uuid.UUID    `json:"id"`
		Role         models.Role  `json:"role"`
		Scope        models.Scope `json:"scope"`
		CanBroadcast bool         `json:"can_broadcast"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/me", "Dana", nil, &me))
	require.Equal(t, a.h.ID("Dana"), me.ID)
	require.True(t, me.CanBroadcast)
	require.Equal(t, 2, me.Scope.Len())
	require.True(t, me.Scope.Contains(a.h.Unit("Akko").ID))

	var sc models.Scope
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/me/scope", "Root", nil, &sc))
	require.True(t, sc.IsAll())

	require.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/v1/me", "", nil, nil))
}

func TestSendReadFlow(t *testing.T) {
	a := newApp(t, nil)

	var sent sendResponse
	code := a.do(http.MethodPost, "/v1/broadcasts", "Yossi", gin.H{"title": "Canvass", "body": "Meet at 9", "priority": "high"}, &sent)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "sent to 2 recipients", sent.Message)
	require.Equal(t, 2, sent.Broadcast.Breakdown.Total)

	var inbox []models.InboxItem
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/inbox", "Maya", nil, &inbox))
	require.Len(t, inbox, 1)
	require.Equal(t, "Canvass", inbox[0].Title)
	require.Equal(t, models.AssignmentPending, inbox[0].Status)

	var read models.DeliveryAssignment
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/v1/inbox/"+inbox[0].ID.String()+"/read", "Maya", nil, &read))
	require.Equal(t, models.AssignmentRead, read.Status)
	require.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/v1/inbox/"+inbox[0].ID.String()+"/read", "Shir", nil, nil))

	var history []models.Broadcast
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/broadcasts?limit=5", "Yossi", nil, &history))
	require.Len(t, history, 1)

	path := "/v1/broadcasts/" + sent.Broadcast.ID.String()
	var detail broadcast.Detail
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, path, "Yossi", nil, &detail))
	require.Len(t, detail.Assignments, 2)
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, path, "Root", nil, nil))
	require.Equal(t, http.StatusNotFound, a.do(http.MethodGet, path, "Dana", nil, nil))

	require.Contains(t, a.auditActions(), audit.ActionBroadcastCreate)
}

func TestSenderOutcomes(t *testing.T) {
	a := newApp(t, nil)
	a.h.Principal("Fresh", models.RoleCityCoordinator)
	task := gin.H{"title": "t", "body": "b"}

	var e struct {
		Error string `json:"error"`
	}
	require.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/v1/broadcasts", "Maya", task, &e))
	require.Contains(t, e.Error, "may not send")

	require.Equal(t, http.StatusUnprocessableEntity, a.do(http.MethodPost, "/v1/broadcasts", "Fresh", task, nil))

	var preview models.Breakdown
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/v1/broadcasts/preview", "Fresh", gin.H{}, &preview))
	require.Zero(t, preview.Total)

	var list recipientsResponse
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/recipients", "Fresh", nil, &list))
	require.Empty(t, list.Recipients)
	require.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/v1/recipients", "Maya", nil, nil))

	require.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/v1/broadcasts", "Yossi", gin.H{"title": "t"}, nil))
	require.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/v1/broadcasts", "Yossi",
		gin.H{"title": "t", "body": "b", "mode": "selected"}, nil))
}

func TestPreviewAndValidate(t *testing.T) {
	a := newApp(t, nil)

	var preview models.Breakdown
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/v1/broadcasts/preview", "Dana", gin.H{"mode": "all"}, &preview))
	require.Equal(t, 4, preview.Total)
	require.Len(t, preview.Recipients, 4)
	sum := 0
	for _, rc := range preview.ByRole {
		sum += rc.Count
	}
	require.Equal(t, preview.Total, sum)

	var valid struct {
		RecipientIDs []uuid.UUID `json:"recipient_ids"`
	}
	ids := []uuid.UUID{a.h.ID("Maya"), a.h.ID("Ron")}
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/v1/recipients/validate", "Yossi", gin.H{"recipient_ids": ids}, &valid))
	require.Equal(t, []uuid.UUID{a.h.ID("Maya")}, valid.RecipientIDs)

	require.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/v1/recipients/validate", "Yossi",
		gin.H{"recipient_ids": []uuid.UUID{a.h.ID("Ron")}}, nil))
}

func TestGuardedOrgWrites(t *testing.T) {
	a := newApp(t, nil)
	mayaPath := "/v1/org/principals/" + a.h.ID("Maya").String()

	var rej struct {
		Rule string `json:"rule"`
	}
	require.Equal(t, http.StatusConflict, a.do(http.MethodDelete, mayaPath, "Yossi", nil, &rej))
	require.Equal(t, "lifecycle", rej.Rule)

	var deactivated models.Principal
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, mayaPath+"/deactivate", "Yossi", nil, &deactivated))
	require.False(t, deactivated.IsActive)
	require.False(t, a.h.Get("Maya").IsActive)

	require.Equal(t, http.StatusConflict, a.do(http.MethodPost, "/v1/org/principals", "Root", gin.H{
		"full_name": "Mallory", "email": "mallory@example.org", "password": "long enough", "role": "SUPERADMIN",
	}, &rej))
	require.Equal(t, "privilege_escalation", rej.Rule)

	require.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/v1/org/principals", "Dana", gin.H{
		"full_name": "Peer", "email": "peer@example.org", "password": "long enough", "role": "AREA_MANAGER",
	}, nil))

	var created models.Principal
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/org/principals", "Yossi", gin.H{
		"full_name": "Noa", "email": "noa@example.org", "password": "long enough", "role": "ACTIVIST_COORDINATOR",
	}, &created))
	require.Equal(t, models.RoleActivistCoordinator, created.Role)
	require.Equal(t, http.StatusConflict, a.do(http.MethodPost, "/v1/org/principals", "Yossi", gin.H{
		"full_name": "Noa", "email": "noa@example.org", "password": "long enough", "role": "ACTIVIST_COORDINATOR",
	}, nil))

	require.Equal(t, http.StatusConflict, a.do(http.MethodPatch, "/v1/org/principals/"+created.ID.String(), "Yossi",
		gin.H{"role": "CITY_COORDINATOR"}, &rej))
	require.Equal(t, "structure", rej.Rule)

	require.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/v1/org/units", "Dana", gin.H{"kind": "region", "name": "South"}, nil))

	actions := a.auditActions()
	require.Contains(t, actions, audit.ActionGuardReject)
	require.Contains(t, actions, audit.ActionPrincipalCreate)
	require.Contains(t, actions, audit.ActionPrincipalUpdate)
}

func TestActivistWrites(t *testing.T) {
	a := newApp(t, nil)
	hadar := a.h.Unit("Hadar").ID

	var act models.Activist
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/org/activists", "Maya", gin.H{
		"full_name": "Gil", "neighborhood_id": hadar,
	}, &act))
	require.Equal(t, a.h.ID("Maya"), act.CoordinatorID)
	require.NotNil(t, act.CityID)
	require.Equal(t, a.h.Unit("Haifa").ID, *act.CityID)

	path := "/v1/org/activists/" + act.ID.String()
	require.Equal(t, http.StatusNotFound, a.do(http.MethodPost, path+"/deactivate", "Shir", nil, nil))

	var rej struct {
		Rule string `json:"rule"`
	}
	require.Equal(t, http.StatusConflict, a.do(http.MethodPatch, path, "Maya", gin.H{"city_id": a.h.Unit("Akko").ID}, &rej))
	require.Equal(t, "tenant_isolation", rej.Rule)

	require.Equal(t, http.StatusConflict, a.do(http.MethodDelete, path, "Maya", nil, &rej))
	require.Equal(t, "lifecycle", rej.Rule)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, path+"/deactivate", "Maya", nil, &act))
	require.False(t, act.IsActive)
}

func TestAssignments(t *testing.T) {
	a := newApp(t, nil)
	a.h.Principal("Tal", models.RoleCityCoordinator)

	var as models.ScopeAssignment
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/org/assignments", "Dana", gin.H{
		"principal_id": a.h.ID("Tal"), "unit_id": a.h.Unit("Akko").ID, "relation": "coordinates_city",
	}, &as))
	require.Equal(t, a.h.Unit("Akko").ID, *as.CityID)

	var list recipientsResponse
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/recipients", "Tal", nil, &list))
	require.Len(t, list.Recipients, 1)
	require.Equal(t, a.h.ID("Ron"), list.Recipients[0].PrincipalID)

	require.Equal(t, http.StatusConflict, a.do(http.MethodPost, "/v1/org/assignments", "Dana", gin.H{
		"principal_id": a.h.ID("Tal"), "unit_id": a.h.Unit("North").ID, "relation": "coordinates_city",
	}, nil))

	require.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/v1/org/assignments/"+as.ID.String(), "Dana", nil, nil))
	require.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/v1/org/assignments/"+as.ID.String(), "Dana", nil, nil))
}

func TestPushSubscriptions(t *testing.T) {
	a := newApp(t, nil)
	sub := gin.H{"endpoint": "https://push.example.org/abc", "keys": gin.H{"p256dh": "BPk", "auth": "c2VjcmV0"}}

	require.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/push/public-key", "", nil, nil))

	var e models.PushEndpoint
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/push/subscriptions", "Maya", sub, &e))
	require.Equal(t, a.h.ID("Maya"), e.PrincipalID)
	require.Len(t, a.h.Store.Endpoints(a.h.ID("Maya")), 1)

	// The same browser signing in as someone else moves the endpoint.
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/push/subscriptions", "Shir", sub, nil))
	require.Empty(t, a.h.Store.Endpoints(a.h.ID("Maya")))

	require.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/v1/push/subscriptions", "Maya", gin.H{"endpoint": "https://push.example.org/abc"}, nil))
	require.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/v1/push/subscriptions", "Shir", gin.H{"endpoint": "https://push.example.org/abc"}, nil))

	require.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/v1/push/subscriptions", "Maya",
		gin.H{"endpoint": "ftp://x", "keys": gin.H{"p256dh": "a", "auth": "b"}}, nil))
}

func TestSendIsRateLimited(t *testing.T) {
	a := newApp(t, ratelimit.NewMemory(1))
	task := gin.H{"title": "t", "body": "b"}

	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/broadcasts", "Yossi", task, nil))
	require.Equal(t, http.StatusTooManyRequests, a.do(http.MethodPost, "/v1/broadcasts", "Yossi", task, nil))
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/broadcasts", "Dana", task, nil))
}

func TestAuditListIsSuperadminOnly(t *testing.T) {
	a := newApp(t, nil)
	require.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/v1/audit", "Dana", nil, nil))

	var entries []models.AuditEntry
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/audit?limit=10", "Root", nil, &entries))
	require.NotNil(t, entries)
}
