package controllers

import (
	"net/http"

	"pulse/internal/middleware"
	"pulse/internal/models"
	"pulse/internal/services"

	"github.com/gin-gonic/gin"
)

// SamplesController reads and writes raw samples
type SamplesController struct {
	engine *services.Engine
}

// NewSamplesController creates a samples controller
func NewSamplesController(engine *services.Engine) *SamplesController {
	return &SamplesController{engine: engine}
}

type recordSampleRequest struct {
	Metric string            `json:"metric" binding:"required,max=256"`
	Value  *float64          `json:"value" binding:"required"`
	Labels map[string]string `json:"labels"`
	Kind   models.MetricKind `json:"kind"`
}

// GetSamples returns buffered samples within a window
// Query params: metric=<name> (optional), window=1h|6h|24h|7d (default: 1h)
func (sc *SamplesController) GetSamples(c *gin.Context) {
	metric := c.Query("metric")
	window, _ := services.ResolveWindow(c.Query("window"))
	tenant := middleware.Tenant(c)

	samples := sc.engine.RecentSamples(tenant, metric, window)
	c.JSON(http.StatusOK, gin.H{
		"tenant":  tenant,
		"metric":  metric,
		"window":  window,
		"count":   len(samples),
		"samples": samples,
	})
}

// RecordSample ingests one sample. Authenticated tenants always write under
// their own tenant label.
func (sc *SamplesController) RecordSample(c *gin.Context) {
	var req recordSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kind == "" {
		req.Kind = models.KindGauge
	}
	if !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown metric kind: " + string(req.Kind)})
		return
	}

	labels := withTenant(req.Labels, middleware.Tenant(c))
	sc.engine.RecordMetric(req.Metric, *req.Value, labels, req.Kind)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func withTenant(labels map[string]string, tenant string) map[string]string {
	if tenant == "" {
		return labels
	}
	if labels == nil {
		labels = make(map[string]string, 1)
	}
	labels[models.TenantLabel] = tenant
	return labels
}
