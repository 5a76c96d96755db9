package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"
	"helpcy/internal/worker"

	"github.com/gin-gonic/gin"
)

// WorkerController is the part of the cleanup worker operators can drive
type WorkerController interface {
	GetInstance() string
	GetStatus() worker.Status
	GetHistory() []worker.RunRecord
	TriggerManualRun()
	Pause(ctx context.Context)
	Resume(ctx context.Context)
}

// WorkerAdminHandler handles worker administration endpoints
type WorkerAdminHandler struct {
	worker WorkerController
	logger *observability.Logger
}

// NewWorkerAdminHandlerWithLogger creates a new WorkerAdminHandler
func NewWorkerAdminHandlerWithLogger(w WorkerController, logger *observability.Logger) *WorkerAdminHandler {
	return &WorkerAdminHandler{worker: w, logger: logger}
}

// RequireAdminToken guards the admin routes with a bearer token
func RequireAdminToken(token string, logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logger.Warn(c.Request.Context(), "Rejected admin request", map[string]interface{}{
				"path":      c.Request.URL.Path,
				"client_ip": c.ClientIP(),
			})
			HandleAppError(c, contextutils.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetWorkerDetails returns the worker status and its recent runs
func (h *WorkerAdminHandler) GetWorkerDetails(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_worker_details")
	defer observability.FinishSpan(span, nil)

	c.JSON(http.StatusOK, gin.H{
		"instance": h.worker.GetInstance(),
		"status":   h.worker.GetStatus(),
		"history":  h.worker.GetHistory(),
	})
}

// PauseWorker stops cleanup runs until resumed
func (h *WorkerAdminHandler) PauseWorker(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "pause_worker")
	defer observability.FinishSpan(span, nil)

	h.worker.Pause(ctx)
	c.JSON(http.StatusOK, gin.H{"message": "Worker paused"})
}

// ResumeWorker re-enables cleanup runs
func (h *WorkerAdminHandler) ResumeWorker(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "resume_worker")
	defer observability.FinishSpan(span, nil)

	h.worker.Resume(ctx)
	c.JSON(http.StatusOK, gin.H{"message": "Worker resumed"})
}

// TriggerWorkerRun triggers a manual worker run
func (h *WorkerAdminHandler) TriggerWorkerRun(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "trigger_worker_run")
	defer observability.FinishSpan(span, nil)

	h.worker.TriggerManualRun()
	c.JSON(http.StatusAccepted, gin.H{"message": "Worker run triggered"})
}
