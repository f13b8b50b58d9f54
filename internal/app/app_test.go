package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stream-sync/recsync/config"
	"github.com/stream-sync/recsync/internal/auth"
	"github.com/stream-sync/recsync/internal/coursehost/coursehosttest"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/notifications"
	"github.com/stream-sync/recsync/internal/platform"
	"github.com/stream-sync/recsync/internal/recordings"
	"github.com/stream-sync/recsync/internal/scheduler"
)

func TestBuildRegistryKeepsConfiguredOrder(t *testing.T) {
	cfg := &config.Config{Pipeline: config.PipelineConfig{Platforms: []string{"teams", "zoom", "unicko", "webex"}, HTTPTimeoutSec: 5}}
	reg, err := BuildRegistry(cfg, coursehosttest.New(), platform.NewTokenCache(), nil, nil)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	want := []models.Platform{models.PlatformTeams, models.PlatformZoom, models.PlatformUnicko, models.PlatformWebex}
	all := reg.All()
	if len(all) != len(want) {
		t.Fatalf("got %d adapters", len(all))
	}
	for i, a := range all {
		if a.Platform() != want[i] {
			t.Fatalf("adapter %d = %s, want %s", i, a.Platform(), want[i])
		}
	}
}

func TestBuildRegistryRejectsUnknownAndEmpty(t *testing.T) {
	for _, platforms := range [][]string{{"zoom", "skype"}, nil} {
		cfg := &config.Config{Pipeline: config.PipelineConfig{Platforms: platforms}}
		if _, err := BuildRegistry(cfg, coursehosttest.New(), platform.NewTokenCache(), nil, nil); err == nil {
			t.Fatalf("expected error for %v", platforms)
		}
	}
}

type noJobs struct{}

func (noJobs) Job(string) (func(context.Context) bool, bool) { return nil, false }

func setupRouter(t *testing.T) (*gin.Engine, *auth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jwtSvc := auth.NewJWTService("test-secret", 1)
	svc := recordings.NewService(recordings.ServiceDeps{Registry: platform.NewRegistry(), Host: coursehosttest.New()}, false, nil, nil)
	r := NewRouter(Routes{
		JWT:           jwtSvc,
		Recordings:    recordings.NewHandler(svc, nil),
		Notifications: notifications.NewHandler(nil),
		Jobs:          scheduler.NewHandler(noJobs{}, nil),
	}, zap.NewNop())
	return r, jwtSvc
}

func TestRouterHealthIsPublic(t *testing.T) {
	r, _ := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
}

func TestRouterRequiresToken(t *testing.T) {
	r, _ := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/recordings", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", w.Code)
	}
}

func TestRouterJobsNeedAdmin(t *testing.T) {
	r, jwtSvc := setupRouter(t)
	for role, want := range map[models.Role]int{models.RoleViewer: http.StatusForbidden, models.RoleAdmin: http.StatusNotFound} {
		tok, err := jwtSvc.Generate("ops", role)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/jobs/listing", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("%s: status = %d, want %d", role, w.Code, want)
		}
	}
}
