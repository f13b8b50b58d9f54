package scheduler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stream-sync/recsync/internal/middleware"
	"github.com/stream-sync/recsync/pkg/response"
)

// Handler lets operators run a sweep on demand.
type Handler struct {
	runner Runner
	logger *zap.Logger
}

// NewHandler creates a job handler.
func NewHandler(runner Runner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{runner: runner, logger: logger}
}

// Run handles POST /jobs/:name. The sweep runs synchronously within the request.
func (h *Handler) Run(c *gin.Context) {
	name := c.Param("name")
	job, ok := h.runner.Job(name)
	if !ok {
		response.NotFound(c, "unknown job")
		return
	}
	h.logger.Info("job triggered", zap.String("job", name), zap.String("operator", middleware.Operator(c)))
	ok = job(c.Request.Context())
	result := gin.H{"job": name, "ok": ok}
	if !ok {
		response.Accepted(c, result)
		return
	}
	response.OK(c, result)
}
