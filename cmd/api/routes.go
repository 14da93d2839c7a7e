package main

import (
	"net/http"
	"time"

	"crm-calls/internal/httpapi"
	"crm-calls/internal/rbac"
	"crm-calls/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, db *sqlx.DB, authMW gin.HandlerFunc, h httpapi.Handlers) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")

	// Token issuance for local development; disabled in production.
	v1.POST("/auth/login", h.Login)

	protected := v1.Group("")
	protected.Use(authMW)
	{
		protected.GET("/ws", h.Events)

		protected.PUT("/presence", h.SetPresence)
		protected.GET("/presence/online", h.ListOnline)

		callsGroup := protected.Group("/calls")
		{
			callsGroup.POST("", h.StartCall)
			callsGroup.POST("/end", h.EndCall)
			callsGroup.GET("/:id", h.GetCall)
			callsGroup.POST("/:id/accept", h.AcceptCall)
			callsGroup.POST("/:id/decline", h.DeclineCall)
		}

		admin := protected.Group("/admin")
		admin.Use(rbac.RequireStaff())
		{
			admin.GET("/reports/calls", h.CallsReport)
			admin.GET("/reports/users/:user_id", h.UserReport)
		}
	}
}
