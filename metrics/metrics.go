// Package metrics defines prometheus collectors of sql3 execution contexts.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Keys for sql3 metrics.
const (
	Fail = "fail"
	Ok   = "ok"
)

// Collectors for pump.Pump metrics.
var (
	PumpCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sql3_pump_calls_total",
		Help: "Cumulative number of calls sent by this context and resolved, by status.",
	}, []string{"status"})
	PumpRelayedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sql3_pump_relayed_total",
		Help: "Cumulative number of requests relayed from child contexts towards the primary.",
	})
	PumpPendingCalls = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sql3_pump_pending_calls",
		Help: "Number of requests sent or relayed which are awaiting a response.",
	})
	PumpProtocolErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sql3_pump_protocol_errors_total",
		Help: "Cumulative number of malformed or unmatched envelopes, by reason.",
	}, []string{"reason"})
	PumpChildren = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sql3_pump_children",
		Help: "Number of child contexts currently attached.",
	})
)

// Collectors for jobs executed by the primary.
var (
	JobsExecutedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sql3_jobs_executed_total",
		Help: "Cumulative number of jobs executed by the primary, by kind and status.",
	}, []string{"kind", "status"})
	JobDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sql3_job_duration_seconds",
		Help:    "Duration of job execution by the primary, by kind.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"kind"})
	JobRunnerCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sql3_job_runner_cache_hits_total",
		Help: "Cumulative number of jobs run by an already-reconstructed runner.",
	})
	JobRunnerReconstructionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sql3_job_runner_reconstructions_total",
		Help: "Cumulative number of job runners reconstructed on a cache miss.",
	})
)

// Collectors for pool.Pool and sqlite.Conn metrics.
var (
	PoolConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sql3_pool_connections",
		Help: "Number of writable connections held by the primary's pool.",
	})
	PoolOpensTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sql3_pool_opens_total",
		Help: "Cumulative number of connections lazily opened by the pool.",
	})
	StatementCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sql3_statement_cache_hits_total",
		Help: "Cumulative number of prepared statements served from cache.",
	})
	StatementCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sql3_statement_cache_misses_total",
		Help: "Cumulative number of statements prepared on a cache miss.",
	})
	MaintenanceRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sql3_maintenance_runs_total",
		Help: "Cumulative number of background PRAGMA optimize runs, by status.",
	}, []string{"status"})
)

// Collectors returns all sql3 collectors, for registration by programs.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		PumpCallsTotal,
		PumpRelayedTotal,
		PumpPendingCalls,
		PumpProtocolErrorsTotal,
		PumpChildren,
		JobsExecutedTotal,
		JobDurationSeconds,
		JobRunnerCacheHitsTotal,
		JobRunnerReconstructionsTotal,
		PoolConnections,
		PoolOpensTotal,
		StatementCacheHitsTotal,
		StatementCacheMissesTotal,
		MaintenanceRunsTotal,
	}
}
