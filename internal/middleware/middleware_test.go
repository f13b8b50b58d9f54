package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/stream-sync/recsync/internal/auth"
	"github.com/stream-sync/recsync/internal/models"
)

func setupRouter(t *testing.T, svc *auth.JWTService, roles ...models.Role) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", JWT(svc), RequireRole(roles...), func(c *gin.Context) {
		c.String(http.StatusOK, Operator(c))
	})
	return r
}

func TestJWTMissingHeader(t *testing.T) {
	r := setupRouter(t, auth.NewJWTService("secret", 1), models.RoleAdmin)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRoleAllowedAndDenied(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := setupRouter(t, svc, models.RoleAdmin)

	admin, err := svc.Generate("alice", models.RoleAdmin)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "alice" {
		t.Fatalf("admin: status=%d body=%q", w.Code, w.Body.String())
	}

	viewer, err := svc.Generate("bob", models.RoleViewer)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+viewer)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("viewer: status = %d, want 403", w.Code)
	}
}
