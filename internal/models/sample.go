package models

import "time"

// MetricKind classifies how a sample's value should be read
type MetricKind string

const (
	KindCounter   MetricKind = "counter"
	KindGauge     MetricKind = "gauge"
	KindHistogram MetricKind = "histogram"
	KindSummary   MetricKind = "summary"
)

// Valid reports whether k is one of the known metric kinds
func (k MetricKind) Valid() bool {
	switch k {
	case KindCounter, KindGauge, KindHistogram, KindSummary:
		return true
	}
	return false
}

// TenantLabel is the label key carrying the owning tenant of a sample
const TenantLabel = "tenant"

// Labels is a flat string-keyed label set
type Labels map[string]string

// Sample is one timestamped metric observation. Samples are never mutated
// after NewSample returns.
type Sample struct {
	Timestamp time.Time  `json:"timestamp"`
	Name      string     `json:"metric"`
	Value     float64    `json:"value"`
	Labels    Labels     `json:"labels,omitempty"`
	Kind      MetricKind `json:"kind"`
}

// NewSample builds a sample, copying labels so later writes by the caller
// cannot leak into the stored observation
func NewSample(ts time.Time, name string, value float64, labels map[string]string, kind MetricKind) Sample {
	var copied Labels
	if len(labels) > 0 {
		copied = make(Labels, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
	}
	if !kind.Valid() {
		kind = KindGauge
	}
	return Sample{
		Timestamp: ts,
		Name:      name,
		Value:     value,
		Labels:    copied,
		Kind:      kind,
	}
}

// Tenant returns the tenant label, or "" for global samples
func (s Sample) Tenant() string {
	return s.Labels[TenantLabel]
}

// Label returns a label value or ""
func (s Sample) Label(key string) string {
	return s.Labels[key]
}

// VisibleTo reports whether the sample belongs to tenant. Global samples are
// visible to every tenant and an empty tenant sees everything.
func (s Sample) VisibleTo(tenant string) bool {
	if tenant == "" {
		return true
	}
	owner := s.Tenant()
	return owner == "" || owner == tenant
}
