package services

import (
	"fmt"
	"testing"
	"time"

	"pulse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func sampleAt(offset time.Duration, name string, value float64, tenant string) models.Sample {
	var labels map[string]string
	if tenant != "" {
		labels = map[string]string{models.TenantLabel: tenant}
	}
	return models.NewSample(t0.Add(offset), name, value, labels, models.KindGauge)
}

func TestRingBufferNeverExceedsCapacity(t *testing.T) {
	const capacity = 10
	rb := NewRingBuffer(capacity)

	for i := 0; i < capacity+57; i++ {
		rb.Append(sampleAt(time.Duration(i)*time.Second, "m", float64(i), ""))
		require.LessOrEqual(t, rb.Len(), capacity, "after append %d", i)
	}
}

func TestRingBufferEvictsOldestHalf(t *testing.T) {
	rb := NewRingBuffer(10)
	evicted := 0
	rb.onEvict = func(n int) { evicted += n }

	for i := 0; i < 11; i++ {
		rb.Append(sampleAt(time.Duration(i)*time.Second, "m", float64(i), ""))
	}

	assert.Equal(t, 5, evicted)
	assert.Equal(t, 6, rb.Len())

	var values []float64
	for s := range rb.SnapshotSince(time.Time{}, "") {
		values = append(values, s.Value)
	}
	assert.Equal(t, []float64{5, 6, 7, 8, 9, 10}, values)
}

func TestRingBufferSnapshotSinceFilters(t *testing.T) {
	rb := NewRingBuffer(100)
	rb.Append(sampleAt(0, "old", 1, "acme"))
	rb.Append(sampleAt(time.Minute, "global", 2, ""))
	rb.Append(sampleAt(2*time.Minute, "mine", 3, "acme"))
	rb.Append(sampleAt(3*time.Minute, "theirs", 4, "globex"))

	names := func(tenant string) []string {
		var out []string
		for s := range rb.SnapshotSince(t0.Add(time.Minute), tenant) {
			out = append(out, s.Name)
		}
		return out
	}

	assert.Equal(t, []string{"global", "mine"}, names("acme"))
	assert.Equal(t, []string{"global", "theirs"}, names("globex"))
	assert.Equal(t, []string{"global", "mine", "theirs"}, names(""))
}

func TestRingBufferSnapshotIsRecomputedPerCall(t *testing.T) {
	rb := NewRingBuffer(100)
	seq := rb.SnapshotSince(time.Time{}, "")
	rb.Append(sampleAt(0, "a", 1, ""))

	count := 0
	for range seq {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestRingBufferSnapshotStopsEarly(t *testing.T) {
	rb := NewRingBuffer(100)
	for i := 0; i < 5; i++ {
		rb.Append(sampleAt(0, fmt.Sprintf("m%d", i), 0, ""))
	}
	var seen []string
	for s := range rb.SnapshotSince(time.Time{}, "") {
		seen = append(seen, s.Name)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"m0", "m1"}, seen)
}

func TestRingBufferRecent(t *testing.T) {
	rb := NewRingBuffer(100)
	for i := 0; i < 6; i++ {
		tenant := "acme"
		if i%2 == 1 {
			tenant = "globex"
		}
		rb.Append(sampleAt(time.Duration(i)*time.Second, fmt.Sprintf("m%d", i), 0, tenant))
	}

	recent := rb.Recent(2, "acme")
	names := make([]string, 0, len(recent))
	for _, s := range recent {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"m2", "m4"}, names)
	assert.Empty(t, rb.Recent(0, ""))
	assert.Len(t, rb.Recent(50, ""), 6)
}

func TestNewSampleCopiesLabels(t *testing.T) {
	labels := map[string]string{"tenant": "acme"}
	s := models.NewSample(t0, "m", 1, labels, models.KindCounter)
	labels["tenant"] = "globex"

	assert.Equal(t, "acme", s.Tenant())
	assert.Equal(t, models.KindCounter, s.Kind)
}
