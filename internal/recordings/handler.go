package recordings

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stream-sync/recsync/internal/middleware"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
	"github.com/stream-sync/recsync/pkg/response"
)

// VisibilityRequest is the body for PUT /recordings/:id/visibility.
type VisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// AssignCourseRequest is the body for PUT /recordings/:id/course.
type AssignCourseRequest struct {
	CourseID int64 `json:"course_id" binding:"required,min=1"`
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return uuid.Nil, false
	}
	return id, true
}

// fail maps service errors onto responses.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrUnsupported):
		response.Fail(c, http.StatusNotImplemented, err.Error())
	case errors.Is(err, platform.ErrCourseNotFound):
		response.BadRequest(c, err.Error())
	case errors.Is(err, platform.ErrNoDownloadURL):
		response.NotFound(c, "no download link for recording")
	default:
		_ = c.Error(err)
		h.logger.Error("recording action failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}

// List handles GET /recordings.
func (h *Handler) List(c *gin.Context) {
	f := ListFilter{Platform: models.Platform(c.Query("platform"))}
	if s := c.Query("status"); s != "" {
		st, err := models.ParseStatus(s)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		f.Status = &st
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	list, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []models.Recording{}
	}
	response.OK(c, response.Page{Items: list, Limit: f.Limit, Offset: f.Offset})
}

// Get handles GET /recordings/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, rec)
}

// Delete handles DELETE /recordings/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.svc.Delete(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("operator deleted recording", zap.String("operator", middleware.Operator(c)), zap.String("recording_id", id.String()))
	response.OK(c, rec)
}

// SetVisibility handles PUT /recordings/:id/visibility.
func (h *Handler) SetVisibility(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rec, err := h.svc.SetVisibility(c.Request.Context(), id, *req.Visible)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, rec)
}

// Recover handles POST /recordings/:id/recover.
func (h *Handler) Recover(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.svc.Recover(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("operator recovered recording", zap.String("operator", middleware.Operator(c)), zap.String("recording_id", id.String()))
	response.OK(c, rec)
}

// Download handles GET /recordings/:id/download by redirecting to the viewer.
func (h *Handler) Download(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	u, err := h.svc.DownloadURL(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, u)
}

// AssignCourse handles PUT /recordings/:id/course.
func (h *Handler) AssignCourse(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req AssignCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rec, err := h.svc.AssignCourse(c.Request.Context(), id, req.CourseID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, rec)
}

// Archive handles GET /recordings/:id/archive.
func (h *Handler) Archive(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	u, err := h.svc.ArchiveURL(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"url": u})
}

// Register mounts the routes. Reads need any operator role; writes need admin.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/download", h.Download)
	g.GET("/:id/archive", h.Archive)

	admin := g.Group("", middleware.RequireRole(models.RoleAdmin))
	admin.DELETE("/:id", h.Delete)
	admin.PUT("/:id/visibility", h.SetVisibility)
	admin.POST("/:id/recover", h.Recover)
	admin.PUT("/:id/course", h.AssignCourse)
}
