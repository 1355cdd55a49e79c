package models

import "time"

// HostUsage is one reading of host resource utilization. Percent fields
// are in the 0-100 range.
type HostUsage struct {
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	DiskPercent    float64   `json:"disk_percent"`
	NetworkPercent float64   `json:"network_percent"`
	ProcessCount   int       `json:"process_count"`
	Errors         []string  `json:"errors,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
