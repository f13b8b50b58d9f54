package notifications

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/pkg/response"
)

// Lister is the read side of the notification log.
type Lister interface {
	ListByRecording(ctx context.Context, recordingID uuid.UUID) ([]*models.NotificationLog, error)
}

// Handler handles notification log HTTP endpoints.
type Handler struct {
	repo Lister
}

// NewHandler creates a notification logs handler.
func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// ListByRecording handles GET /recordings/:id/notifications.
func (h *Handler) ListByRecording(c *gin.Context) {
	recordingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	logs, err := h.repo.ListByRecording(c.Request.Context(), recordingID)
	if err != nil {
		response.Internal(c, "failed to load notification logs")
		return
	}
	if logs == nil {
		logs = []*models.NotificationLog{}
	}
	response.OK(c, logs)
}
