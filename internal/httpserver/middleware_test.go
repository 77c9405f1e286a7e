package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailminder/internal/handler"
	"mailminder/pkg/rbac"
	"mailminder/pkg/trace"
	"mailminder/pkg/util"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedEngine(permission string) *gin.Engine {
	r := gin.New()
	r.Use(TraceMiddleware(), AuthMiddleware(testSecret))
	r.GET("/x", RequirePermission(permission), func(c *gin.Context) {
		uid, _ := c.Get(handler.ContextKeyUserID)
		c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": c.GetString(handler.ContextKeyRole)})
	})
	return r
}

func get(t *testing.T, r http.Handler, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, userID int64, role, secret string) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, role, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	r := protectedEngine(rbac.PermissionReadEmails)

	assert.Equal(t, http.StatusUnauthorized, get(t, r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, r, "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, r, token(t, 3, "", "other-secret")).Code)

	w := get(t, r, token(t, 3, "", testSecret))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":3,"role":"user"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(trace.HeaderName))
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		permission string
		want       int
	}{
		{"user reads emails", rbac.RoleUser, rbac.PermissionReadEmails, http.StatusOK},
		{"user cannot replay", rbac.RoleUser, rbac.PermissionReplayOutbox, http.StatusForbidden},
		{"admin replays", rbac.RoleAdmin, rbac.PermissionReplayOutbox, http.StatusOK},
		{"service syncs users", rbac.RoleService, rbac.PermissionSyncUsers, http.StatusOK},
		{"service cannot read emails", rbac.RoleService, rbac.PermissionReadEmails, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, protectedEngine(tt.permission), token(t, 9, tt.role, testSecret))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestTraceMiddlewareKeepsCallerID(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/t", func(c *gin.Context) {
		c.String(http.StatusOK, trace.FromContext(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set(trace.HeaderName, "abc123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc123", w.Body.String())
	assert.Equal(t, "abc123", w.Header().Get(trace.HeaderName))
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthEndpoints(t *testing.T) {
	deps := map[string]Pinger{"db": pinger{}}
	r := NewHealthRouter(deps).Engine

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	deps["db"] = pinger{err: errors.New("connection refused")}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "db_not_ready")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
