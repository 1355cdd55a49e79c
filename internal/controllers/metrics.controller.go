package controllers

import (
	"net/http"

	"pulse/internal/middleware"
	"pulse/internal/services"

	"github.com/gin-gonic/gin"
)

// MetricsController serves computed metrics and live host readings
type MetricsController struct {
	engine  *services.Engine
	sampler services.ResourceSampler
}

// NewMetricsController creates a metrics controller. sampler may be nil, in
// which case GetSystem reports the service unavailable.
func NewMetricsController(engine *services.Engine, sampler services.ResourceSampler) *MetricsController {
	return &MetricsController{engine: engine, sampler: sampler}
}

// GetMetrics returns the aggregated view for the caller's tenant
// Query params: window=1h|6h|24h|7d (default: 1h)
func (mc *MetricsController) GetMetrics(c *gin.Context) {
	m := mc.engine.GetMetrics(c.Request.Context(), middleware.Tenant(c), c.Query("window"))
	c.JSON(http.StatusOK, m)
}

// GetSystem takes one live reading of the host alongside engine counters
func (mc *MetricsController) GetSystem(c *gin.Context) {
	if mc.sampler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "host sampling disabled"})
		return
	}

	usage := services.ReadHostUsage(c.Request.Context(), mc.sampler)
	c.JSON(http.StatusOK, gin.H{
		"host": usage,
		"engine": gin.H{
			"buffered_samples": mc.engine.BufferedSamples(),
			"subscribers":      mc.engine.SubscriberCount(),
			"pending_events":   mc.engine.PendingEvents(),
		},
	})
}
