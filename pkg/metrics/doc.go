/*
Package metrics provides Prometheus metrics collection and exposition for
the orchestrator.

Metrics are registered once at package init and updated either inline (the
resource manager increments counters as tasks start, are lost, or finish)
or on a 15s tick by resourcemgr.MetricsCollector, which snapshots
Manager.Stats() into gauges. This package never imports its callers; the
domain packages import metrics and drive it, not the other way around.

# Metrics Catalog

fusiond_waiting_queue_depth (Gauge): tasks currently in the waiting queue.

fusiond_active_tasks_per_provider{host} (Gauge): tasks running on a
provider.

fusiond_provider_cpu_utilization{host} (Gauge): fraction of a provider's
CPUs currently reserved.

fusiond_volume_free_bytes{volume} (Gauge): last-reported free bytes on a
volume, net of outstanding reservations.

fusiond_activation_loop_duration_seconds (Histogram): time taken by one
pass of the activation loop.

fusiond_transaction_commit_duration_seconds (Histogram): time taken to
commit a pending asset transaction.

fusiond_notifier_fanout_duration_seconds (Histogram): time taken to
deliver an AssetChanges notification to every listener.

fusiond_tasks_started_total (Counter): tasks successfully started on a
provider.

fusiond_tasks_lost_total (Counter): tasks re-queued after their provider
was abandoned.

fusiond_tasks_done_total{result} (Counter): tasks completed, by
success/failure.

# Usage

	import "github.com/cuemby/fusiond/pkg/metrics"

	metrics.TasksStartedTotal.Inc()
	metrics.TasksDoneTotal.WithLabelValues("success").Inc()

	http.Handle("/metrics", metrics.Handler())

# Integration Points

  - pkg/resourcemgr: MetricsCollector samples the waiting-queue/provider/
    volume snapshot; activation and notify handling increment the task
    counters directly.
  - pkg/assetmgr: increments transaction-commit and notifier-fanout
    histograms directly.
  - cmd/fusiond: mounts Handler() on the status HTTP listener.
*/
package metrics
