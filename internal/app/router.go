package app

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stream-sync/recsync/internal/auth"
	"github.com/stream-sync/recsync/internal/middleware"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/notifications"
	"github.com/stream-sync/recsync/internal/recordings"
	"github.com/stream-sync/recsync/internal/scheduler"
	"github.com/stream-sync/recsync/pkg/response"
)

// Routes are the handlers mounted by NewRouter.
type Routes struct {
	JWT           *auth.JWTService
	Recordings    *recordings.Handler
	Notifications *notifications.Handler
	Jobs          *scheduler.Handler
}

// NewRouter builds the admin API.
func NewRouter(r Routes, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("/api")
	api.Use(middleware.JWT(r.JWT))
	{
		recs := api.Group("/recordings")
		r.Recordings.Register(recs)
		recs.GET("/:id/notifications", r.Notifications.ListByRecording)

		api.POST("/jobs/:name", middleware.RequireRole(models.RoleAdmin), r.Jobs.Run)
	}
	return router
}

// Router builds the admin API from the app components.
func (a *App) Router() *gin.Engine {
	return NewRouter(Routes{
		JWT:           a.JWT,
		Recordings:    recordings.NewHandler(a.Service, a.Logger),
		Notifications: notifications.NewHandler(a.Notifications),
		Jobs:          scheduler.NewHandler(a.Pipeline, a.Logger),
	}, a.Logger)
}
