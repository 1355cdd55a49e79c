package models

import "time"

// PerformanceMetrics summarizes execution latency and load
type PerformanceMetrics struct {
	AvgDurationMs     float64 `json:"avg_duration_ms"`
	P50DurationMs     float64 `json:"p50_duration_ms"`
	P95DurationMs     float64 `json:"p95_duration_ms"`
	P99DurationMs     float64 `json:"p99_duration_ms"`
	Throughput        float64 `json:"throughput"`
	ThroughputPerSec  float64 `json:"throughput_per_sec"`
	QueueDepth        float64 `json:"queue_depth"`
	ActiveConnections float64 `json:"active_connections"`
}

// ReliabilityMetrics summarizes execution outcomes
type ReliabilityMetrics struct {
	SuccessRate float64 `json:"success_rate"`
	ErrorRate   float64 `json:"error_rate"`
	Successes   float64 `json:"successes"`
	Failures    float64 `json:"failures"`
}

// CapacityMetrics carries the latest host resource gauges
type CapacityMetrics struct {
	CPUUsage     float64 `json:"cpu_usage"`
	MemoryUsage  float64 `json:"memory_usage"`
	StorageUsage float64 `json:"storage_usage"`
	NetworkUsage float64 `json:"network_usage"`
}

// BusinessMetrics carries workload totals and per-domain execution counts
type BusinessMetrics struct {
	TotalAutomations     int64   `json:"total_automations"`
	ActiveAutomations    int64   `json:"active_automations"`
	TasksExecuted        float64 `json:"tasks_executed"`
	WorkflowsExecuted    float64 `json:"workflows_executed"`
	RulesExecuted        float64 `json:"rules_executed"`
	IntegrationsExecuted float64 `json:"integrations_executed"`
}

// SystemMetrics is the computed view over one tenant and window
type SystemMetrics struct {
	Tenant      string             `json:"tenant"`
	Window      string             `json:"window"`
	ComputedAt  time.Time          `json:"computed_at"`
	SampleCount int                `json:"sample_count"`
	Performance PerformanceMetrics `json:"performance"`
	Reliability ReliabilityMetrics `json:"reliability"`
	Capacity    CapacityMetrics    `json:"capacity"`
	Business    BusinessMetrics    `json:"business"`
}

// WorkloadCounts is what the workload store reports for a tenant
type WorkloadCounts struct {
	Total  int64
	Active int64
}
