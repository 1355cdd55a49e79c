package services

import (
	"pulse/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry exports the engine's own counters. A nil *Telemetry is valid and
// records nothing.
type Telemetry struct {
	samplesRecorded  *prometheus.CounterVec
	bufferEvictions  prometheus.Counter
	alertsTriggered  *prometheus.CounterVec
	alertsResolved   prometheus.Counter
	subscribers      prometheus.Gauge
	broadcastDropped prometheus.Counter
	cacheRequests    *prometheus.CounterVec
}

// NewTelemetry registers the engine collectors on reg
func NewTelemetry(reg prometheus.Registerer) *Telemetry {
	factory := promauto.With(reg)
	const ns = "pulse"
	return &Telemetry{
		samplesRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "samples_recorded_total",
			Help:      "Metric samples accepted by the engine.",
		}, []string{"kind"}),
		bufferEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "buffer_evictions_total",
			Help:      "Samples dropped from the ring buffer by batch eviction.",
		}),
		alertsTriggered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "alerts_triggered_total",
			Help:      "Alerts that transitioned to firing.",
		}, []string{"severity"}),
		alertsResolved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "alerts_resolved_total",
			Help:      "Alerts that transitioned to resolved.",
		}),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "subscribers",
			Help:      "Live event subscribers.",
		}),
		broadcastDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "broadcast_dropped_total",
			Help:      "Events dropped from full subscriber queues.",
		}),
		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "metrics_cache_requests_total",
			Help:      "GetMetrics cache lookups by result.",
		}, []string{"result"}),
	}
}

func (t *Telemetry) sampleRecorded(kind models.MetricKind) {
	if t == nil {
		return
	}
	t.samplesRecorded.WithLabelValues(string(kind)).Inc()
}

func (t *Telemetry) evicted(n int) {
	if t == nil {
		return
	}
	t.bufferEvictions.Add(float64(n))
}

func (t *Telemetry) alertTransition(tr AlertTransition) {
	if t == nil {
		return
	}
	switch tr.Type {
	case models.EventAlertTriggered:
		t.alertsTriggered.WithLabelValues(string(tr.Alert.Rule.Severity)).Inc()
	case models.EventAlertResolved:
		t.alertsResolved.Inc()
	}
}

func (t *Telemetry) subscriberCount(n int) {
	if t == nil {
		return
	}
	t.subscribers.Set(float64(n))
}

func (t *Telemetry) dropped() {
	if t == nil {
		return
	}
	t.broadcastDropped.Inc()
}

func (t *Telemetry) cacheLookup(hit bool) {
	if t == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	t.cacheRequests.WithLabelValues(result).Inc()
}
