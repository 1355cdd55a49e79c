package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"pulse/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RuleRepository persists rule definitions. Samples and alerts are never
// persisted.
type RuleRepository interface {
	SaveRule(ctx context.Context, rule models.AlertRule) error
	UpdateRuleEnabled(ctx context.Context, id string, enabled bool) error
	ListRules(ctx context.Context) ([]models.AlertRule, error)
}

// AlertTransition is a state change produced by evaluation
type AlertTransition struct {
	Type  models.EventType
	Alert models.Alert
}

// alertKey identifies one alert slot. Samples carrying a tenant label are
// tracked per tenant so one tenant's readings never resolve another's alert.
type alertKey struct {
	rule   string
	tenant string
}

// AlertRuleStore holds the rules and the current alert set and performs the
// firing/resolved transitions. All state is guarded by one mutex.
type AlertRuleStore struct {
	mu        sync.RWMutex
	rules     map[string]*models.AlertRule
	order     []string
	byMetric  map[string][]string
	firing    map[alertKey]*models.Alert
	alerts    []*models.Alert        // firing and recently resolved, oldest first
	breaches  map[alertKey]time.Time // first breach per slot while held down
	retention time.Duration

	repo     RuleRepository
	validate *validator.Validate
	now      func() time.Time
	logger   *logrus.Logger
}

// NewAlertRuleStore creates an empty store. repo may be nil, in which case
// rules live only in memory.
func NewAlertRuleStore(repo RuleRepository, retention time.Duration, logger *logrus.Logger) *AlertRuleStore {
	return &AlertRuleStore{
		rules:     make(map[string]*models.AlertRule),
		byMetric:  make(map[string][]string),
		firing:    make(map[alertKey]*models.Alert),
		breaches:  make(map[alertKey]time.Time),
		retention: retention,
		repo:      repo,
		validate:  validator.New(),
		now:       time.Now,
		logger:    logger,
	}
}

// BuildRule validates spec and turns it into a rule with a fresh id
func (s *AlertRuleStore) BuildRule(spec models.AlertRuleSpec) (models.AlertRule, error) {
	if err := s.validate.Struct(spec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return models.AlertRule{}, fmt.Errorf("%w: %v", ErrInvalidRule, fields)
		}
		return models.AlertRule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if math.IsNaN(*spec.Threshold) || math.IsInf(*spec.Threshold, 0) {
		return models.AlertRule{}, fmt.Errorf("%w: threshold must be finite", ErrInvalidRule)
	}

	severity := spec.Severity
	if severity == "" {
		severity = models.SeverityWarning
	}
	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}

	return models.AlertRule{
		ID:         uuid.NewString(),
		Name:       spec.Name,
		Metric:     spec.Metric,
		Condition:  spec.Condition,
		Threshold:  *spec.Threshold,
		Duration:   spec.Duration,
		Severity:   severity,
		Enabled:    enabled,
		Recipients: slices.Clone(spec.Recipients),
		CreatedAt:  s.now(),
	}, nil
}

// Create validates, persists and registers a new rule. A rule that fails
// validation or persistence is not stored.
func (s *AlertRuleStore) Create(ctx context.Context, spec models.AlertRuleSpec) (models.AlertRule, error) {
	rule, err := s.BuildRule(spec)
	if err != nil {
		return models.AlertRule{}, err
	}
	if s.repo != nil {
		if err := s.repo.SaveRule(ctx, rule); err != nil {
			return models.AlertRule{}, fmt.Errorf("%w: %v", ErrRuleStoreUnavailable, err)
		}
	}
	s.Add(rule)

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"rule_id": rule.ID,
			"metric":  rule.Metric,
		}).Infof("[ALERT] Rule created: %s", rule.Name)
	}
	return rule, nil
}

// Add registers an already-built rule without persisting it
func (s *AlertRuleStore) Add(rule models.AlertRule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return
	}
	r := rule
	s.rules[r.ID] = &r
	s.order = append(s.order, r.ID)
	s.byMetric[r.Metric] = append(s.byMetric[r.Metric], r.ID)
}

// Load restores persisted rules into memory
func (s *AlertRuleStore) Load(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRuleStoreUnavailable, err)
	}
	for _, r := range rules {
		s.Add(r)
	}
	return len(rules), nil
}

// HasGlobalRuleNamed reports whether a rule with this name and no
// recipients is registered. Tenant-scoped rules never shadow a global one.
func (s *AlertRuleStore) HasGlobalRuleNamed(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.Name == name && len(r.Recipients) == 0 {
			return true
		}
	}
	return false
}

// Rules returns all rules in creation order
func (s *AlertRuleStore) Rules() []models.AlertRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AlertRule, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.rules[id])
	}
	return out
}

// SetEnabled toggles a rule. Disabling a rule resolves its firing alerts,
// which are returned as transitions.
func (s *AlertRuleStore) SetEnabled(ctx context.Context, id string, enabled bool) (models.AlertRule, []AlertTransition, error) {
	s.mu.RLock()
	_, ok := s.rules[id]
	s.mu.RUnlock()
	if !ok {
		return models.AlertRule{}, nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	if s.repo != nil {
		if err := s.repo.UpdateRuleEnabled(ctx, id, enabled); err != nil {
			return models.AlertRule{}, nil, fmt.Errorf("%w: %v", ErrRuleStoreUnavailable, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return models.AlertRule{}, nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	rule.Enabled = enabled

	var out []AlertTransition
	if !enabled {
		now := s.now()
		for key := range s.breaches {
			if key.rule == id {
				delete(s.breaches, key)
			}
		}
		for key, alert := range s.firing {
			if key.rule == id {
				out = append(out, s.resolveLocked(key, alert, now))
			}
		}
		slices.SortFunc(out, func(a, b AlertTransition) int {
			return a.Alert.TriggeredAt.Compare(b.Alert.TriggeredAt)
		})
	}
	return *rule, out, nil
}

// Evaluate runs every enabled rule for the sample's metric and returns the
// transitions it caused. A breach while already firing, or a clear while not
// firing, produces nothing.
func (s *AlertRuleStore) Evaluate(sample models.Sample) []AlertTransition {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	ids := s.byMetric[sample.Name]
	if len(ids) == 0 {
		return nil
	}

	var out []AlertTransition
	for _, id := range ids {
		rule := s.rules[id]
		if !rule.Enabled || !ruleAppliesTo(rule, sample) {
			continue
		}

		key := alertKey{rule: id, tenant: sample.Tenant()}
		breached := rule.Condition.Evaluate(sample.Value, rule.Threshold)
		alert := s.firing[key]

		switch {
		case breached && alert == nil:
			if hold := rule.HoldDown(); hold > 0 {
				first, pending := s.breaches[key]
				if !pending {
					s.breaches[key] = now
					first = now
				}
				if now.Sub(first) < hold {
					continue
				}
			}
			delete(s.breaches, key)
			out = append(out, s.triggerLocked(key, rule, sample.Value, now))

		case !breached && alert != nil:
			out = append(out, s.resolveLocked(key, alert, now))

		case !breached:
			delete(s.breaches, key)
		}
	}
	return out
}

// ruleAppliesTo keeps tenant-scoped rules from firing on other tenants' data
func ruleAppliesTo(rule *models.AlertRule, sample models.Sample) bool {
	tenant := sample.Tenant()
	if tenant == "" || len(rule.Recipients) == 0 {
		return true
	}
	return slices.Contains(rule.Recipients, tenant)
}

func (s *AlertRuleStore) triggerLocked(key alertKey, rule *models.AlertRule, value float64, now time.Time) AlertTransition {
	snapshot := *rule
	snapshot.Recipients = slices.Clone(rule.Recipients)

	alert := &models.Alert{
		ID:          uuid.NewString(),
		Rule:        snapshot,
		Tenant:      key.tenant,
		TriggeredAt: now,
		Status:      models.AlertFiring,
		Value:       value,
		Message:     models.AlertMessage(snapshot, value),
	}
	s.firing[key] = alert
	s.alerts = append(s.alerts, alert)

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"rule_id":  rule.ID,
			"tenant":   key.tenant,
			"severity": rule.Severity,
			"value":    value,
		}).Warnf("[ALERT] Triggered: %s", alert.Message)
	}
	return AlertTransition{Type: models.EventAlertTriggered, Alert: *alert}
}

func (s *AlertRuleStore) resolveLocked(key alertKey, alert *models.Alert, now time.Time) AlertTransition {
	resolvedAt := now
	alert.Status = models.AlertResolved
	alert.ResolvedAt = &resolvedAt
	delete(s.firing, key)

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"rule_id": key.rule, "tenant": key.tenant}).Infof("[ALERT] Resolved: %s", alert.Rule.Name)
	}
	return AlertTransition{Type: models.EventAlertResolved, Alert: *alert}
}

// Prune drops resolved alerts whose retention grace period has elapsed
func (s *AlertRuleStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(s.now())
}

func (s *AlertRuleStore) pruneLocked(now time.Time) int {
	kept := s.alerts[:0]
	removed := 0
	for _, a := range s.alerts {
		if a.Status == models.AlertResolved && a.ResolvedAt != nil && !now.Before(a.ResolvedAt.Add(s.retention)) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	for i := len(kept); i < len(s.alerts); i++ {
		s.alerts[i] = nil
	}
	s.alerts = kept
	return removed
}

// Alerts returns firing and recently resolved alerts visible to tenant
func (s *AlertRuleStore) Alerts(tenant string) []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())

	out := make([]models.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if a.VisibleTo(tenant) {
			out = append(out, *a)
		}
	}
	return out
}

// FiringCount returns the number of alerts currently firing
func (s *AlertRuleStore) FiringCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.firing)
}
