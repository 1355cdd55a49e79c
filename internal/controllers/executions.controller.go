package controllers

import (
	"net/http"

	"pulse/internal/middleware"
	"pulse/internal/services"

	"github.com/gin-gonic/gin"
)

// ExecutionsController records task, workflow, rule and integration runs
type ExecutionsController struct {
	engine *services.Engine
}

// NewExecutionsController creates an executions controller
func NewExecutionsController(engine *services.Engine) *ExecutionsController {
	return &ExecutionsController{engine: engine}
}

type executionRequest struct {
	ID         string   `json:"id" binding:"required,max=256"`
	DurationMs *float64 `json:"duration_ms" binding:"required,gte=0"`
	Success    *bool    `json:"success" binding:"required"`
	Steps      int      `json:"steps_executed" binding:"gte=0"`
	StatusCode int      `json:"status_code" binding:"gte=0,lte=999"`
}

// RecordExecution dispatches on the :domain path parameter. For
// integrations the id is the integration name.
func (ec *ExecutionsController) RecordExecution(c *gin.Context) {
	var req executionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant := middleware.Tenant(c)
	domain := c.Param("domain")
	switch domain {
	case "task":
		ec.engine.RecordTaskExecution(req.ID, *req.DurationMs, *req.Success, tenant)
	case "workflow":
		ec.engine.RecordWorkflowExecution(req.ID, *req.DurationMs, *req.Success, req.Steps, tenant)
	case "rule":
		ec.engine.RecordRuleExecution(req.ID, *req.DurationMs, *req.Success, tenant)
	case "integration":
		ec.engine.RecordIntegrationCall(req.ID, *req.DurationMs, *req.Success, req.StatusCode, tenant)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown execution domain: " + domain})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "domain": domain})
}
