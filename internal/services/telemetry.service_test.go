package services

import (
	"testing"

	"pulse/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilTelemetryIsNoop(t *testing.T) {
	var tel *Telemetry
	assert.NotPanics(t, func() {
		tel.sampleRecorded(models.KindGauge)
		tel.evicted(3)
		tel.alertTransition(AlertTransition{Type: models.EventAlertResolved})
		tel.subscriberCount(1)
		tel.dropped()
		tel.cacheLookup(true)
	})
}

func TestTelemetryRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := NewTelemetry(reg)

	tel.alertTransition(AlertTransition{
		Type:  models.EventAlertTriggered,
		Alert: models.Alert{Rule: models.AlertRule{Severity: models.SeverityCritical}},
	})
	tel.alertTransition(AlertTransition{Type: models.EventAlertResolved})
	tel.sampleRecorded(models.KindHistogram)

	assert.Equal(t, 1.0, testutil.ToFloat64(tel.alertsTriggered.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.alertsResolved))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "pulse_alerts_triggered_total")
	assert.Contains(t, names, "pulse_samples_recorded_total")
	assert.Contains(t, names, "pulse_subscribers")
}
