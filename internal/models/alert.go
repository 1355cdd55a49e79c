package models

import (
	"fmt"
	"slices"
	"time"
)

// Condition is the comparison an alert rule applies to sample values
type Condition string

const (
	ConditionGT  Condition = "gt"
	ConditionGTE Condition = "gte"
	ConditionLT  Condition = "lt"
	ConditionLTE Condition = "lte"
	ConditionEQ  Condition = "eq"
	ConditionNE  Condition = "ne"
)

// Evaluate applies the condition to value against threshold
func (c Condition) Evaluate(value, threshold float64) bool {
	switch c {
	case ConditionGT:
		return value > threshold
	case ConditionGTE:
		return value >= threshold
	case ConditionLT:
		return value < threshold
	case ConditionLTE:
		return value <= threshold
	case ConditionEQ:
		return value == threshold
	case ConditionNE:
		return value != threshold
	}
	return false
}

// Symbol returns the operator form used in alert messages
func (c Condition) Symbol() string {
	switch c {
	case ConditionGT:
		return ">"
	case ConditionGTE:
		return ">="
	case ConditionLT:
		return "<"
	case ConditionLTE:
		return "<="
	case ConditionEQ:
		return "=="
	case ConditionNE:
		return "!="
	}
	return string(c)
}

// Severity of an alert rule
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	AlertFiring   AlertStatus = "firing"
	AlertResolved AlertStatus = "resolved"
)

// AlertRuleSpec is the caller-supplied definition of a rule
type AlertRuleSpec struct {
	Name       string    `json:"name" mapstructure:"name" validate:"required,max=128"`
	Metric     string    `json:"metric" mapstructure:"metric" validate:"required,max=256"`
	Condition  Condition `json:"condition" mapstructure:"condition" validate:"required,oneof=gt gte lt lte eq ne"`
	Threshold  *float64  `json:"threshold" mapstructure:"threshold" validate:"required"`
	Duration   int       `json:"duration" mapstructure:"duration" validate:"gte=0"`
	Severity   Severity  `json:"severity" mapstructure:"severity" validate:"omitempty,oneof=info warning error critical"`
	Enabled    *bool     `json:"enabled,omitempty" mapstructure:"enabled"`
	Recipients []string  `json:"recipients,omitempty" mapstructure:"recipients" validate:"dive,required"`
}

// AlertRule is a named threshold rule. Only Enabled changes after creation.
type AlertRule struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Metric     string    `json:"metric"`
	Condition  Condition `json:"condition"`
	Threshold  float64   `json:"threshold"`
	Duration   int       `json:"duration"` // seconds of sustained breach before firing
	Severity   Severity  `json:"severity"`
	Enabled    bool      `json:"enabled"`
	Recipients []string  `json:"recipients,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HoldDown returns the sustained-breach duration
func (r AlertRule) HoldDown() time.Duration {
	return time.Duration(r.Duration) * time.Second
}

// VisibleTo reports whether alerts from this rule are visible to tenant.
// Rules without recipients are global.
func (r AlertRule) VisibleTo(tenant string) bool {
	if tenant == "" || len(r.Recipients) == 0 {
		return true
	}
	return slices.Contains(r.Recipients, tenant)
}

// Alert is a firing or resolved record tied to one rule
type Alert struct {
	ID          string      `json:"id"`
	Rule        AlertRule   `json:"rule"`
	Tenant      string      `json:"tenant,omitempty"` // tenant whose samples fired it, "" for global samples
	TriggeredAt time.Time   `json:"triggered_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
	Status      AlertStatus `json:"status"`
	Value       float64     `json:"value"`
	Message     string      `json:"message"`
}

// VisibleTo reports whether tenant may see this alert. An alert raised by
// one tenant's samples is never shown to another tenant.
func (a Alert) VisibleTo(tenant string) bool {
	if !a.Rule.VisibleTo(tenant) {
		return false
	}
	return tenant == "" || a.Tenant == "" || a.Tenant == tenant
}

// AlertMessage renders the human-readable description of a breach
func AlertMessage(rule AlertRule, value float64) string {
	return fmt.Sprintf("%s: %s is %.2f (%s %.2f)", rule.Name, rule.Metric, value, rule.Condition.Symbol(), rule.Threshold)
}
