// Package metrics holds every Prometheus collector maremma exposes,
// registered eagerly via promauto so every component that imports this
// package gets instrumentation for free without passing a registry
// around.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BrokerCommandDuration tracks how long the Broker's single-writer
	// loop takes to apply each command type.
	BrokerCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "maremma",
			Subsystem: "broker",
			Name:      "command_duration_seconds",
			Help:      "Broker command processing duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"command"},
	)

	// BrokerQueueDepth is the number of commands waiting in the
	// Broker's inbox, sampled each time a command is enqueued.
	BrokerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "maremma",
			Subsystem: "broker",
			Name:      "queue_depth",
			Help:      "Number of commands queued for the Broker's single-writer loop",
		},
	)

	// BrokerCacheHits counts extra_config overlay cache hits/misses.
	BrokerCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "maremma",
			Subsystem: "broker",
			Name:      "extra_config_cache_total",
			Help:      "Extra-config overlay cache accesses",
		},
		[]string{"result"}, // hit, miss
	)

	// SchedulerChecksDispatched counts checks handed to a worker, by
	// service type.
	SchedulerChecksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "maremma",
			Subsystem: "scheduler",
			Name:      "checks_dispatched_total",
			Help:      "Checks dispatched to a worker, by service type",
		},
		[]string{"type"},
	)

	// SchedulerWorkerPoolInUse is the number of worker slots currently
	// occupied out of max_concurrent_checks.
	SchedulerWorkerPoolInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "maremma",
			Subsystem: "scheduler",
			Name:      "worker_pool_in_use",
			Help:      "Worker pool slots currently in use",
		},
	)

	// CheckDuration tracks runner execution time by service type and
	// resulting status.
	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "maremma",
			Subsystem: "checks",
			Name:      "duration_seconds",
			Help:      "Check runner execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type", "status"},
	)

	// ShepherdTaskRuns counts Shepherd task executions.
	ShepherdTaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "maremma",
			Subsystem: "shepherd",
			Name:      "task_runs_total",
			Help:      "Shepherd task executions by task name and outcome",
		},
		[]string{"task", "outcome"},
	)

	// ShepherdLastRunTimestamp is the unix time of each task's most
	// recent run.
	ShepherdLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "maremma",
			Subsystem: "shepherd",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of each Shepherd task's last run",
		},
		[]string{"task"},
	)

	// NotifyAttempts counts notifier send attempts.
	NotifyAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "maremma",
			Subsystem: "notify",
			Name:      "attempts_total",
			Help:      "Notifier send attempts by notifier name and outcome",
		},
		[]string{"notifier", "outcome"},
	)
)
