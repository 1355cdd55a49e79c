package services

import (
	"context"
	"time"

	"pulse/internal/models"

	"github.com/sirupsen/logrus"
)

// Collector periodically samples host resources and feeds them to the
// engine alongside the engine's own queue and connection gauges
type Collector struct {
	engine   *Engine
	sampler  ResourceSampler
	interval time.Duration
	logger   *logrus.Logger
}

// NewCollector creates a collector ticking every interval
func NewCollector(engine *Engine, sampler ResourceSampler, interval time.Duration, logger *logrus.Logger) *Collector {
	if logger == nil {
		logger = logrus.New()
	}
	return &Collector{
		engine:   engine,
		sampler:  sampler,
		interval: interval,
		logger:   logger,
	}
}

// Run collects once immediately and then on every tick until ctx is done
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Infof("[COLLECTOR] started (interval: %v)", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("[COLLECTOR] stopped")
			return nil
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Collect performs one tick. Resource reads happen before anything touches
// engine state, so slow system calls never hold engine locks.
func (c *Collector) Collect(ctx context.Context) {
	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout())
	defer cancel()

	if c.sampler != nil {
		c.gauge(readCtx, MetricCPUUsage, c.sampler.CPUPercent)
		c.gauge(readCtx, MetricMemoryUsage, c.sampler.MemoryPercent)
		c.gauge(readCtx, MetricStorageUsage, c.sampler.DiskPercent)
		c.gauge(readCtx, MetricNetworkUsage, c.sampler.NetworkPercent)

		if n, err := c.sampler.ProcessCount(readCtx); err != nil {
			c.logger.WithError(err).Warn("[COLLECTOR] could not count processes")
		} else {
			c.engine.RecordMetric(MetricProcessCount, float64(n), nil, models.KindGauge)
		}
	}

	c.engine.RecordMetric(MetricQueueDepth, float64(c.engine.PendingEvents()), nil, models.KindGauge)
	c.engine.RecordMetric(MetricConnections, float64(c.engine.SubscriberCount()), nil, models.KindGauge)

	if n := c.engine.PruneAlerts(); n > 0 {
		c.logger.Debugf("[COLLECTOR] pruned %d resolved alerts", n)
	}
}

func (c *Collector) gauge(ctx context.Context, name string, read func(context.Context) (float64, error)) {
	v, err := read(ctx)
	if err != nil {
		c.logger.WithError(err).WithField("metric", name).Warn("[COLLECTOR] resource read failed")
		return
	}
	c.engine.RecordMetric(name, v, nil, models.KindGauge)
}

func (c *Collector) readTimeout() time.Duration {
	t := c.interval / 2
	if t <= 0 || t > 10*time.Second {
		t = 10 * time.Second
	}
	return t
}
