package resourcemgr

import (
	"time"

	"github.com/cuemby/fusiond/pkg/metrics"
)

// MetricsCollector periodically samples the Manager and publishes gauge
// metrics from the snapshot (spec §9, observability is ambient regardless
// of spec.md's Non-goals). Grounded on the teacher's manager-side
// collector: the domain package imports metrics and drives it, metrics
// itself stays a leaf with no knowledge of resourcemgr.
type MetricsCollector struct {
	mgr    *Manager
	stopCh chan struct{}
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(mgr *Manager) *MetricsCollector {
	return &MetricsCollector{
		mgr:    mgr,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s tick.
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	depth, providers, volumes := c.mgr.Stats()

	metrics.WaitingQueueDepth.Set(float64(depth))

	for _, p := range providers {
		metrics.ActiveTasksPerProvider.WithLabelValues(p.Host).Set(float64(p.ActiveTasks))
		util := 0.0
		if p.NumCPUs > 0 {
			util = float64(p.UsedCPUs) / float64(p.NumCPUs)
		}
		metrics.ProviderCPUUtilization.WithLabelValues(p.Host).Set(util)
	}

	for _, v := range volumes {
		metrics.VolumeFreeBytes.WithLabelValues(v.Name).Set(float64(v.Avail))
	}
}
