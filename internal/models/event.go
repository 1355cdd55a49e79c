package models

import "time"

// EventType discriminates the payload of a subscriber Event
type EventType string

const (
	EventSnapshot       EventType = "snapshot"
	EventMetricUpdate   EventType = "metric-update"
	EventAlertTriggered EventType = "alert-triggered"
	EventAlertResolved  EventType = "alert-resolved"
)

// Snapshot is delivered first to every new subscriber
type Snapshot struct {
	RecentSamples []Sample `json:"recent_samples"`
	ActiveAlerts  []Alert  `json:"active_alerts"`
}

// Event is one message on a subscriber stream. Exactly one of Sample, Alert
// or Snapshot is set, matching Type.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Sample    *Sample   `json:"sample,omitempty"`
	Alert     *Alert    `json:"alert,omitempty"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
}
