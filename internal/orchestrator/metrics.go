package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksTotal counts finished tasks by outcome.
	// Labels: outcome (success, partial_success, failed, cancelled)
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentd",
			Subsystem: "orchestrator",
			Name:      "tasks_total",
			Help:      "Total number of finished tasks by outcome",
		},
		[]string{"outcome"},
	)

	// TaskDuration tracks end-to-end task duration across all phases.
	TaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agentd",
			Subsystem: "orchestrator",
			Name:      "task_duration_seconds",
			Help:      "End-to-end task duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RetriesTotal counts critique-gated retry transitions.
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentd",
			Subsystem: "orchestrator",
			Name:      "retries_total",
			Help:      "Total number of critique-gated retry transitions",
		},
	)

	// ActiveTasks tracks tasks currently inside the state machine.
	ActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentd",
			Subsystem: "orchestrator",
			Name:      "active_tasks",
			Help:      "Number of tasks currently executing",
		},
	)
)
