package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// JobQueue はジョブをタスクキューへ送るのだ。queue.Publisher が満たすのだ。
type JobQueue interface {
	PublishJob(ctx context.Context, req domain.JobRequest) error
}

// acceptedResponse は受け付けたジョブの応答なのだ。
type acceptedResponse struct {
	JobID     string        `json:"job_id"`
	ProjectID string        `json:"project_id"`
	Action    domain.Action `json:"action"`
	Status    string        `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter は受付 API のルーターを組み立てるのだ。
func NewRouter(jobs JobQueue) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	h := &handler{jobs: jobs}
	r.POST("/generate", h.enqueue(domain.ActionGenerate))
	r.POST("/regenerate-panel", h.enqueue(domain.ActionRegeneratePanel))
	r.POST("/regenerate-merge", h.enqueue(domain.ActionRegenerateMerge))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

type handler struct {
	jobs JobQueue
}

// enqueue は本文を検証してジョブ ID を採番し、タスクキューへ送って 202 を返すのだ。
func (h *handler) enqueue(action domain.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req domain.JobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "リクエスト本文が不正です: " + err.Error()})
			return
		}
		req.Action = action
		req.JobID = uuid.NewString()
		if err := req.Normalize(); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, domain.ErrInvalidRequest) {
				status = http.StatusBadRequest
			}
			c.JSON(status, errorResponse{Error: err.Error()})
			return
		}

		if err := h.jobs.PublishJob(c.Request.Context(), req); err != nil {
			slog.ErrorContext(c.Request.Context(), "ジョブの投入に失敗したのだ", "job_id", req.JobID, "error", err)
			c.JSON(http.StatusInternalServerError, errorResponse{Error: "ジョブの投入に失敗しました"})
			return
		}

		slog.InfoContext(c.Request.Context(), "ジョブを受け付けたのだ", "job_id", req.JobID, "project_id", req.ProjectID, "action", action)
		c.JSON(http.StatusAccepted, acceptedResponse{
			JobID:     req.JobID,
			ProjectID: req.ProjectID,
			Action:    action,
			Status:    string(domain.ProjectGenerating),
		})
	}
}

// requestLogger はリクエストを slog に記録するのだ。/healthz と /metrics は記録しないのだ。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		slog.Info("HTTP リクエスト",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
}
