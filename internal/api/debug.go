package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"calendar-sync/internal/observability"
	"calendar-sync/internal/telemetry"
)

// registerDebugRoutes wires debug-only endpoints.
func registerDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "DEBUG", "audit test", observability.RequestIDFromRequest(c.Request), nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
