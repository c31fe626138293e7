package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/relaygrid/octabot/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler core

	TaskPickupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "octabot",
		Name:      "task_pickup_latency_seconds",
		Help:      "Time from a task's start_at to the poller claiming it.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	TasksClaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "octabot",
		Name:      "tasks_claimed_total",
		Help:      "Total tasks claimed by the poller.",
	})

	TaskChannelDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "octabot",
		Name:      "task_channel_depth",
		Help:      "Number of tasks currently buffered between poller and workers.",
	})

	// Worker pool

	TaskDispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "octabot",
		Name:      "task_dispatch_duration_seconds",
		Help:      "Duration of a plugin dispatch (process call).",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"plugin", "outcome"})

	TasksInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "octabot",
		Name:      "worker_tasks_in_flight",
		Help:      "Number of tasks currently dispatched to a plugin.",
	})

	TasksCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octabot",
		Name:      "tasks_completed_total",
		Help:      "Total tasks reaching a terminal transition, by outcome.",
	}, []string{"outcome"})

	// Reapers

	ReaperDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octabot",
		Name:      "reaper_deleted_total",
		Help:      "Total task rows deleted, by reaper.",
	}, []string{"reaper"})

	ReaperCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "octabot",
		Name:      "reaper_cycle_duration_seconds",
		Help:      "Time taken for one reaper cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// Plugin host

	PluginDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octabot",
		Name:      "plugin_dispatch_total",
		Help:      "Total process() invocations, by plugin and outcome.",
	}, []string{"plugin", "outcome"})

	PluginFanoutDepth = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "octabot",
		Name:      "plugin_fanout_depth",
		Help:      "Maximum recursive Action depth reached per dispatch.",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
	})

	// HTTP broker

	BrokerRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "octabot",
		Name:      "broker_request_duration_seconds",
		Help:      "Duration of outbound HTTP requests made through the broker.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"authority", "outcome"})

	BrokerRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "octabot",
		Name:      "broker_retries_total",
		Help:      "Total liveness-probe retries issued by the HTTP broker.",
	})

	BrokerPoolInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "octabot",
		Name:      "broker_pool_in_use",
		Help:      "Number of connection-pool semaphore permits currently held.",
	})

	// KV cache

	KVEntriesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "octabot",
		Name:      "kv_entries_total",
		Help:      "Number of live (non-expired) entries in the KV cache bucket.",
	})

	// HTTP API

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "octabot",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octabot",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		TaskPickupLatency,
		TasksClaimedTotal,
		TaskChannelDepth,
		TaskDispatchDuration,
		TasksInFlight,
		TasksCompletedTotal,
		ReaperDeletedTotal,
		ReaperCycleDuration,
		PluginDispatchTotal,
		PluginFanoutDepth,
		BrokerRequestDuration,
		BrokerRetriesTotal,
		BrokerPoolInUse,
		KVEntriesTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer builds the metrics-port server: Prometheus scrape target
// plus the checker's liveness/readiness probes.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		writeHealthResult(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(result)
	})

	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealthResult(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
