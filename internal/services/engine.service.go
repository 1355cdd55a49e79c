package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"pulse/internal/models"

	"github.com/sirupsen/logrus"
)

// EngineConfig sizes the engine's in-memory state
type EngineConfig struct {
	BufferCapacity int
	SnapshotSize   int
	AlertRetention time.Duration
	QueueSize      int
}

// EngineDeps are the collaborators the engine talks to. Every field is
// optional.
type EngineDeps struct {
	Workload  WorkloadCounter
	Rules     RuleRepository
	Cache     MetricsCache
	Telemetry *Telemetry
	Logger    *logrus.Logger
}

// Engine is the real-time metrics pipeline: it buffers samples, evaluates
// alert rules on every write and pushes updates to subscribers. One Engine
// is built at startup and shared by every caller.
//
// ingestMu serializes append, evaluate and publish, so subscribers see
// samples and alert transitions in the order they were produced.
type Engine struct {
	ingestMu sync.Mutex

	buffer      *RingBuffer
	rules       *AlertRuleStore
	broadcaster *Broadcaster
	aggregator  *Aggregator
	cache       MetricsCache
	telemetry   *Telemetry
	logger      *logrus.Logger

	snapshotSize int
	now          func() time.Time
}

// NewEngine wires an engine from its configuration and collaborators
func NewEngine(cfg EngineConfig, deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.SnapshotSize < 0 {
		cfg.SnapshotSize = 0
	}

	e := &Engine{
		buffer:       NewRingBuffer(cfg.BufferCapacity),
		rules:        NewAlertRuleStore(deps.Rules, cfg.AlertRetention, logger),
		broadcaster:  NewBroadcaster(cfg.QueueSize, deps.Telemetry, logger),
		aggregator:   NewAggregator(deps.Workload, logger),
		cache:        deps.Cache,
		telemetry:    deps.Telemetry,
		logger:       logger,
		snapshotSize: cfg.SnapshotSize,
		now:          time.Now,
	}
	e.buffer.onEvict = e.telemetry.evicted
	return e
}

// setClock replaces the time source of the engine and its rule store
func (e *Engine) setClock(now func() time.Time) {
	e.now = now
	e.rules.now = now
}

// RecordMetric ingests one observation. It never fails the caller: invalid
// input is logged and dropped.
func (e *Engine) RecordMetric(name string, value float64, labels map[string]string, kind models.MetricKind) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("metric", name).Errorf("[ENGINE] recovered while recording metric: %v", r)
		}
	}()

	if name == "" || math.IsNaN(value) || math.IsInf(value, 0) {
		e.logger.WithFields(logrus.Fields{"metric": name, "value": value}).Debug("[ENGINE] dropping invalid sample")
		return
	}
	e.ingest(models.NewSample(e.now(), name, value, labels, kind))
}

func (e *Engine) ingest(s models.Sample) {
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	e.buffer.Append(s)
	e.telemetry.sampleRecorded(s.Kind)

	transitions := e.rules.Evaluate(s)

	e.broadcaster.Publish(models.Event{
		Type:      models.EventMetricUpdate,
		Timestamp: s.Timestamp,
		Sample:    &s,
	}, s.VisibleTo)

	e.publishTransitions(transitions)
}

func (e *Engine) publishTransitions(transitions []AlertTransition) {
	for _, tr := range transitions {
		alert := tr.Alert
		ts := alert.TriggeredAt
		if alert.ResolvedAt != nil {
			ts = *alert.ResolvedAt
		}
		e.telemetry.alertTransition(tr)
		e.broadcaster.Publish(models.Event{
			Type:      tr.Type,
			Timestamp: ts,
			Alert:     &alert,
		}, alert.VisibleTo)
	}
}

// RecordTaskExecution records the duration and outcome of a task run
func (e *Engine) RecordTaskExecution(taskID string, durationMs float64, success bool, tenant string) {
	e.recordExecution("task", map[string]string{"task_id": taskID}, durationMs, success, tenant)
}

// RecordWorkflowExecution records a workflow run and how many steps it executed
func (e *Engine) RecordWorkflowExecution(workflowID string, durationMs float64, success bool, stepsExecuted int, tenant string) {
	labels := e.recordExecution("workflow", map[string]string{"workflow_id": workflowID}, durationMs, success, tenant)
	e.RecordMetric("workflow.steps.executed", float64(stepsExecuted), labels, models.KindGauge)
}

// RecordRuleExecution records one evaluation of a business rule
func (e *Engine) RecordRuleExecution(ruleID string, durationMs float64, success bool, tenant string) {
	e.recordExecution("rule", map[string]string{"rule_id": ruleID}, durationMs, success, tenant)
}

// RecordIntegrationCall records an outbound integration call. A statusCode
// of 0 means no response status was available.
func (e *Engine) RecordIntegrationCall(integration string, durationMs float64, success bool, statusCode int, tenant string) {
	labels := e.recordExecution("integration", map[string]string{"integration": integration}, durationMs, success, tenant)
	if statusCode > 0 {
		e.RecordMetric("integration.response.status", float64(statusCode), labels, models.KindGauge)
	}
}

// recordExecution emits the <domain>.execution.duration histogram and the
// <domain>.execution.count counter, and returns the labels it used
func (e *Engine) recordExecution(domain string, labels map[string]string, durationMs float64, success bool, tenant string) map[string]string {
	if tenant != "" {
		labels[models.TenantLabel] = tenant
	}
	labels[StatusLabel] = StatusFailure
	if success {
		labels[StatusLabel] = StatusSuccess
	}
	e.RecordMetric(domain+durationSuffix, durationMs, labels, models.KindHistogram)
	e.RecordMetric(domain+countSuffix, 1, labels, models.KindCounter)
	return labels
}

// GetMetrics computes the metric view for tenant over window. Results are
// cached per (tenant, window) for the cache TTL. Unknown windows fall back
// to DefaultWindow. Computations over DefaultWindow feed the tenant's error
// rate back as a gauge; other windows do not, so the error-rate rule always
// sees the same lookback.
func (e *Engine) GetMetrics(ctx context.Context, tenant, window string) models.SystemMetrics {
	window, lookback := ResolveWindow(window)
	key := CacheKey(tenant, window)

	if e.cache != nil {
		cached, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.WithError(err).Debug("[ENGINE] metrics cache read failed")
		}
		e.telemetry.cacheLookup(ok)
		if ok && cached != nil {
			return *cached
		}
	}

	now := e.now()
	m := e.aggregator.Compute(ctx, e.buffer.SnapshotSince(now.Add(-lookback), tenant), tenant, lookback)
	m.Window = window
	m.ComputedAt = now

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, &m); err != nil {
			e.logger.WithError(err).Warn("[ENGINE] metrics cache write failed")
		}
	}

	if window == DefaultWindow && m.Reliability.Successes+m.Reliability.Failures > 0 {
		var labels map[string]string
		if tenant != "" {
			labels = map[string]string{models.TenantLabel: tenant}
		}
		e.RecordMetric(MetricErrorRate, m.Reliability.ErrorRate, labels, models.KindGauge)
	}
	return m
}

// RecentSamples returns buffered samples for tenant within window,
// optionally restricted to one metric name
func (e *Engine) RecentSamples(tenant, metric, window string) []models.Sample {
	_, lookback := ResolveWindow(window)
	out := []models.Sample{}
	for s := range e.buffer.SnapshotSince(e.now().Add(-lookback), tenant) {
		if metric != "" && s.Name != metric {
			continue
		}
		out = append(out, s)
	}
	return out
}

// GetAlerts returns firing and recently resolved alerts visible to tenant
func (e *Engine) GetAlerts(tenant string) []models.Alert {
	return e.rules.Alerts(tenant)
}

// CreateAlertRule validates and stores a new rule
func (e *Engine) CreateAlertRule(ctx context.Context, spec models.AlertRuleSpec) (models.AlertRule, error) {
	return e.rules.Create(ctx, spec)
}

// ListAlertRules returns every rule in creation order
func (e *Engine) ListAlertRules() []models.AlertRule {
	return e.rules.Rules()
}

// SetAlertRuleEnabled enables or disables a rule
func (e *Engine) SetAlertRuleEnabled(ctx context.Context, id string, enabled bool) (models.AlertRule, error) {
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	rule, transitions, err := e.rules.SetEnabled(ctx, id, enabled)
	if err != nil {
		return models.AlertRule{}, err
	}
	e.publishTransitions(transitions)
	return rule, nil
}

// LoadRules restores persisted rules and seeds defaults that have no global
// rule of the same name yet. A rule store that cannot be read or written degrades to
// in-memory rules.
func (e *Engine) LoadRules(ctx context.Context, defaults []models.AlertRuleSpec) error {
	n, err := e.rules.Load(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("[ALERT] Could not load persisted rules, continuing with defaults only")
	} else if n > 0 {
		e.logger.Infof("[ALERT] Loaded %d persisted rules", n)
	}

	for _, spec := range defaults {
		if e.rules.HasGlobalRuleNamed(spec.Name) {
			continue
		}
		_, err := e.rules.Create(ctx, spec)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRuleStoreUnavailable) {
			return err
		}
		rule, buildErr := e.rules.BuildRule(spec)
		if buildErr != nil {
			return buildErr
		}
		e.rules.Add(rule)
		e.logger.WithError(err).Warnf("[ALERT] Default rule %q kept in memory only", spec.Name)
	}
	return nil
}

// PruneAlerts drops resolved alerts past their retention period
func (e *Engine) PruneAlerts() int {
	return e.rules.Prune()
}

// Subscribe opens a live event stream for tenant. The first event is always
// a snapshot of recent samples and current alerts. The snapshot is taken
// between two ingests, so every sample or alert is either in the snapshot
// or delivered live, never both. The subscription is removed when ctx is
// cancelled or Unsubscribe is called.
func (e *Engine) Subscribe(ctx context.Context, tenant string) *Subscription {
	e.ingestMu.Lock()
	sub := e.broadcaster.Subscribe(tenant, func() models.Snapshot {
		return models.Snapshot{
			RecentSamples: e.buffer.Recent(e.snapshotSize, tenant),
			ActiveAlerts:  e.rules.Alerts(tenant),
		}
	})
	e.ingestMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			e.broadcaster.Unsubscribe(sub.ID)
		case <-sub.Done():
		}
	}()
	return sub
}

// Unsubscribe stops delivery to a subscription
func (e *Engine) Unsubscribe(id string) bool {
	return e.broadcaster.Unsubscribe(id)
}

// SubscriberCount returns the number of live subscribers
func (e *Engine) SubscriberCount() int {
	return e.broadcaster.Count()
}

// PendingEvents returns the number of events waiting in subscriber queues
func (e *Engine) PendingEvents() int {
	return e.broadcaster.Pending()
}

// BufferedSamples returns the number of samples currently held
func (e *Engine) BufferedSamples() int {
	return e.buffer.Len()
}

// Close disconnects every subscriber
func (e *Engine) Close() {
	e.broadcaster.Close()
}
