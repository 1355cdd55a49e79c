package services

import (
	"context"
	"iter"
	"math"
	"sort"
	"strings"
	"time"

	"pulse/internal/models"

	"github.com/sirupsen/logrus"
)

// Metric names the aggregation understands
const (
	durationSuffix = ".execution.duration"
	countSuffix    = ".execution.count"

	MetricQueueDepth   = "queue.depth"
	MetricConnections  = "websocket.connections"
	MetricCPUUsage     = "system.cpu.usage"
	MetricMemoryUsage  = "system.memory.usage"
	MetricStorageUsage = "system.storage.usage"
	MetricNetworkUsage = "system.network.usage"
	MetricProcessCount = "system.process.count"
	MetricErrorRate    = "reliability.error.rate"

	StatusLabel   = "status"
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// DefaultWindow is used for unknown window strings
const DefaultWindow = "1h"

var windows = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

// ResolveWindow maps a window string to its lookback. Unknown values fall
// back to DefaultWindow; the returned name is the one actually applied.
func ResolveWindow(window string) (string, time.Duration) {
	if d, ok := windows[window]; ok {
		return window, d
	}
	return DefaultWindow, windows[DefaultWindow]
}

// WorkloadCounter reports automation totals for a tenant
type WorkloadCounter interface {
	CountAutomations(ctx context.Context, tenant string) (models.WorkloadCounts, error)
}

// Aggregator computes SystemMetrics from a sample sequence. It holds no
// sample state of its own.
type Aggregator struct {
	workload WorkloadCounter
	logger   *logrus.Logger
}

// NewAggregator creates an aggregator. workload may be nil.
func NewAggregator(workload WorkloadCounter, logger *logrus.Logger) *Aggregator {
	return &Aggregator{workload: workload, logger: logger}
}

// Compute folds samples into the four metric categories
func (a *Aggregator) Compute(ctx context.Context, samples iter.Seq[models.Sample], tenant string, window time.Duration) models.SystemMetrics {
	var (
		m         models.SystemMetrics
		durations []float64
		business  = &m.Business
		lastConn  *float64
	)
	m.Tenant = tenant
	m.Reliability.SuccessRate = 1

	for s := range samples {
		m.SampleCount++
		switch {
		case strings.HasSuffix(s.Name, durationSuffix):
			durations = append(durations, s.Value)

		case strings.HasSuffix(s.Name, countSuffix):
			m.Performance.Throughput += s.Value
			switch s.Label(StatusLabel) {
			case StatusSuccess:
				m.Reliability.Successes += s.Value
			case StatusFailure:
				m.Reliability.Failures += s.Value
			}
			switch strings.TrimSuffix(s.Name, countSuffix) {
			case "task":
				business.TasksExecuted += s.Value
			case "workflow":
				business.WorkflowsExecuted += s.Value
			case "rule":
				business.RulesExecuted += s.Value
			case "integration":
				business.IntegrationsExecuted += s.Value
			}

		case s.Name == MetricQueueDepth:
			m.Performance.QueueDepth = math.Max(m.Performance.QueueDepth, s.Value)

		case s.Name == MetricConnections:
			v := s.Value
			lastConn = &v

		case s.Name == MetricCPUUsage:
			m.Capacity.CPUUsage = s.Value
		case s.Name == MetricMemoryUsage:
			m.Capacity.MemoryUsage = s.Value
		case s.Name == MetricStorageUsage:
			m.Capacity.StorageUsage = s.Value
		case s.Name == MetricNetworkUsage:
			m.Capacity.NetworkUsage = s.Value
		}
	}

	if lastConn != nil {
		m.Performance.ActiveConnections = *lastConn
	}

	if len(durations) > 0 {
		sort.Float64s(durations)
		sum := 0.0
		for _, d := range durations {
			sum += d
		}
		m.Performance.AvgDurationMs = sum / float64(len(durations))
		m.Performance.P50DurationMs = Percentile(durations, 0.50)
		m.Performance.P95DurationMs = Percentile(durations, 0.95)
		m.Performance.P99DurationMs = Percentile(durations, 0.99)
	}

	if window > 0 {
		m.Performance.ThroughputPerSec = m.Performance.Throughput / window.Seconds()
	}

	if total := m.Reliability.Successes + m.Reliability.Failures; total > 0 {
		m.Reliability.SuccessRate = m.Reliability.Successes / total
	}
	m.Reliability.ErrorRate = 1 - m.Reliability.SuccessRate

	a.fillWorkload(ctx, tenant, business)
	return m
}

// fillWorkload queries the workload store. Failures leave the totals at zero.
func (a *Aggregator) fillWorkload(ctx context.Context, tenant string, business *models.BusinessMetrics) {
	if a.workload == nil {
		return
	}
	counts, err := a.workload.CountAutomations(ctx, tenant)
	if err != nil {
		if a.logger != nil {
			a.logger.WithError(err).WithField("tenant", tenant).Warn("[AGG] workload counts unavailable, reporting zero")
		}
		*business = models.BusinessMetrics{}
		return
	}
	business.TotalAutomations = counts.Total
	business.ActiveAutomations = counts.Active
}

// Percentile returns the nearest-rank percentile of an ascending slice:
// sorted[ceil(n*p)-1], clamped to the slice bounds. No interpolation.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(n)*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
