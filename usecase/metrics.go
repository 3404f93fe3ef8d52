package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// modeTransitions counts conversation mode changes
	modeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peacepal_conversation_mode_transitions_total",
		Help: "Conversation mode transitions by source and target mode",
	}, []string{"from", "to"})

	// invalidStates counts transitions rejected for breaking the one sub-flow rule
	invalidStates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peacepal_conversation_invalid_states_total",
		Help: "Transitions rejected because the resulting state had inconsistent sub-flows",
	})

	// triageFailClosed counts triage flows abandoned on an unresolvable transition
	triageFailClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peacepal_triage_fail_closed_total",
		Help: "Triage flows returned to chat because a transition could not be resolved",
	})

	// completionDuration tracks text completion latency
	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "peacepal_completion_duration_seconds",
		Help:    "Text completion latency by mode",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	}, []string{"mode"})

	// appendFailures counts messages the store failed to persist
	appendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peacepal_message_append_failures_total",
		Help: "Messages that could not be appended to the store",
	})

	// activeSessions tracks conversation sessions held in memory
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peacepal_sessions_active",
		Help: "Conversation sessions held in memory",
	})
)
