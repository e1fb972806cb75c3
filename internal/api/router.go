// Package api exposes the tracker and payroll importer over HTTP.
package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter registers every route on a fresh gin engine.
func NewRouter(ctl *Controller) *gin.Engine {
	if ctl.Logger == nil {
		ctl.Logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(ctl.Logger))

	router.GET("/healthz", ctl.Health)

	sessions := router.Group("/sessions")
	sessions.POST("", ctl.StartSession)
	sessions.GET("/:id", ctl.GetSession)
	sessions.GET("/:id/audit", ctl.SessionAudit)
	sessions.POST("/:id/pause", ctl.PauseSession)
	sessions.POST("/:id/resume", ctl.ResumeSession)
	sessions.POST("/:id/stop", ctl.StopSession)
	sessions.POST("/:id/heartbeat", ctl.Heartbeat)
	sessions.POST("/:id/interrupt", ctl.InterruptSession)
	sessions.POST("/:id/approve", ctl.ApproveSession)

	pay := router.Group("/payroll")
	pay.POST("/import", ctl.ImportPayroll)
	pay.GET("/entries", ctl.ListEntries)

	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
