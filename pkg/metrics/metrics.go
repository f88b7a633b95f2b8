package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WaitingQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fusiond_waiting_queue_depth",
			Help: "Number of tasks currently in the waiting queue",
		},
	)

	ActiveTasksPerProvider = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fusiond_active_tasks_per_provider",
			Help: "Number of tasks currently running on a provider",
		},
		[]string{"host"},
	)

	ProviderCPUUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fusiond_provider_cpu_utilization",
			Help: "Fraction of a provider's CPUs currently reserved",
		},
		[]string{"host"},
	)

	VolumeFreeBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fusiond_volume_free_bytes",
			Help: "Last-reported free bytes on a volume, net of outstanding reservations",
		},
		[]string{"volume"},
	)

	ActivationLoopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fusiond_activation_loop_duration_seconds",
			Help:    "Time taken by one pass of the activation loop",
			Buckets: prometheus.DefBuckets,
		},
	)

	TransactionCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fusiond_transaction_commit_duration_seconds",
			Help:    "Time taken to commit a pending asset transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	NotifierFanoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fusiond_notifier_fanout_duration_seconds",
			Help:    "Time taken to deliver an AssetChanges notification to all listeners",
			Buckets: prometheus.DefBuckets,
		},
	)

	TasksStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fusiond_tasks_started_total",
			Help: "Total number of tasks successfully started on a provider",
		},
	)

	TasksLostTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fusiond_tasks_lost_total",
			Help: "Total number of tasks re-queued after their provider was abandoned",
		},
	)

	TasksDoneTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusiond_tasks_done_total",
			Help: "Total number of tasks completed, by success/failure",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(WaitingQueueDepth)
	prometheus.MustRegister(ActiveTasksPerProvider)
	prometheus.MustRegister(ProviderCPUUtilization)
	prometheus.MustRegister(VolumeFreeBytes)
	prometheus.MustRegister(ActivationLoopDuration)
	prometheus.MustRegister(TransactionCommitDuration)
	prometheus.MustRegister(NotifierFanoutDuration)
	prometheus.MustRegister(TasksStartedTotal)
	prometheus.MustRegister(TasksLostTotal)
	prometheus.MustRegister(TasksDoneTotal)
}

// Handler returns the HTTP handler that exposes all registered metrics for
// scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
