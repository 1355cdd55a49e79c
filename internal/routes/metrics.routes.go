package routes

import (
	"pulse/internal/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterMetricsRoutes registers the metric, sample and execution endpoints
func RegisterMetricsRoutes(api *gin.RouterGroup, metrics *controllers.MetricsController, samples *controllers.SamplesController, executions *controllers.ExecutionsController) {
	api.GET("/metrics", metrics.GetMetrics)
	api.GET("/system", metrics.GetSystem)

	api.GET("/samples", samples.GetSamples)
	api.POST("/samples", samples.RecordSample)

	api.POST("/executions/:domain", executions.RecordExecution)
}

// RegisterAlertRoutes registers alert listing and rule management
func RegisterAlertRoutes(api *gin.RouterGroup, alerts *controllers.AlertsController) {
	group := api.Group("/alerts")
	{
		group.GET("", alerts.GetAlerts)
		group.GET("/rules", alerts.GetRules)
		group.POST("/rules", alerts.CreateRule)
		group.PATCH("/rules/:id", alerts.PatchRule)
	}
}
