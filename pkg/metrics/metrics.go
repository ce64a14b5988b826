package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Version store metrics.
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reddwarf_commits_total",
			Help: "Total number of commits applied to the version store",
		},
	)

	ConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reddwarf_conflicts_total",
			Help: "Total number of optimistic-concurrency conflicts by kind",
		},
		[]string{"kind"},
	)

	CommitApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reddwarf_commit_apply_duration_seconds",
			Help:    "Time taken to apply one commit, including conflict detection",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics.
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reddwarf_api_requests_total",
			Help: "Total number of API requests by method, kind, and status",
		},
		[]string{"method", "kind", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reddwarf_api_request_duration_seconds",
			Help:    "API request duration in seconds, by method and kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "kind"},
	)

	WatchSubscribersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reddwarf_watch_subscribers_active",
			Help: "Number of active event-bus subscribers (watch streams and the controller)",
		},
	)

	// Controller metrics.
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reddwarf_reconciliation_duration_seconds",
			Help:    "Time taken by one controller sweep pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reddwarf_reconciliation_cycles_total",
			Help: "Total number of controller sweep passes run",
		},
	)

	PodsByPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reddwarf_pods_by_phase",
			Help: "Number of Pods in each phase, by namespace",
		},
		[]string{"namespace", "phase"},
	)

	NodesReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reddwarf_nodes_ready",
			Help: "Number of Nodes by Ready condition status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		CommitsTotal,
		ConflictsTotal,
		CommitApplyDuration,
		APIRequestsTotal,
		APIRequestDuration,
		WatchSubscribersActive,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		PodsByPhase,
		NodesReady,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
