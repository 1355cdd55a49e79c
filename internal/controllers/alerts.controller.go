package controllers

import (
	"errors"
	"net/http"

	"pulse/internal/middleware"
	"pulse/internal/models"
	"pulse/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AlertsController manages alert rules and lists alerts
type AlertsController struct {
	engine *services.Engine
	logger *logrus.Logger
}

// NewAlertsController creates an alerts controller
func NewAlertsController(engine *services.Engine, logger *logrus.Logger) *AlertsController {
	return &AlertsController{engine: engine, logger: logger}
}

type patchRuleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// GetAlerts returns firing and recently resolved alerts
func (ac *AlertsController) GetAlerts(c *gin.Context) {
	alerts := ac.engine.GetAlerts(middleware.Tenant(c))
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// GetRules lists the rules visible to the caller
func (ac *AlertsController) GetRules(c *gin.Context) {
	tenant := middleware.Tenant(c)
	rules := []models.AlertRule{}
	for _, r := range ac.engine.ListAlertRules() {
		if r.VisibleTo(tenant) {
			rules = append(rules, r)
		}
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

// CreateRule registers a new rule. Rules created by a tenant are scoped to
// that tenant.
func (ac *AlertsController) CreateRule(c *gin.Context) {
	var spec models.AlertRuleSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if tenant := middleware.Tenant(c); tenant != "" {
		spec.Recipients = []string{tenant}
	}

	rule, err := ac.engine.CreateAlertRule(c.Request.Context(), spec)
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// PatchRule enables or disables a rule
func (ac *AlertsController) PatchRule(c *gin.Context) {
	var req patchRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	switch ac.access(id, middleware.Tenant(c)) {
	case ruleHidden:
		c.JSON(http.StatusNotFound, gin.H{"error": services.ErrRuleNotFound.Error()})
		return
	case ruleReadOnly:
		c.JSON(http.StatusForbidden, gin.H{"error": "global rules can only be changed by an operator"})
		return
	}

	rule, err := ac.engine.SetAlertRuleEnabled(c.Request.Context(), id, *req.Enabled)
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

type ruleAccess int

const (
	ruleWritable ruleAccess = iota
	ruleReadOnly
	ruleHidden
)

// access decides what tenant may do with rule id. Unknown ids are left to
// the engine, which reports them as not found.
func (ac *AlertsController) access(id, tenant string) ruleAccess {
	if tenant == "" {
		return ruleWritable
	}
	for _, r := range ac.engine.ListAlertRules() {
		if r.ID != id {
			continue
		}
		switch {
		case !r.VisibleTo(tenant):
			return ruleHidden
		case len(r.Recipients) == 0:
			return ruleReadOnly
		}
		return ruleWritable
	}
	return ruleWritable
}

func (ac *AlertsController) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidRule):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrRuleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrRuleStoreUnavailable):
		ac.logger.WithError(err).Error("[ALERT] Rule store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rule store unavailable"})
	default:
		ac.logger.WithError(err).Error("[ALERT] Rule operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
