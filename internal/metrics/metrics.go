// Package metrics exposes Prometheus counters and histograms for the
// orchestrator's retry/failover behavior and the event-stream decoder's
// frame handling.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrchestratorAttempts counts every south-side attempt the
	// orchestrator makes, labeled by outcome.
	OrchestratorAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kiro_bridge",
		Subsystem: "orchestrator",
		Name:      "attempts_total",
		Help:      "South-side attempts made by the request orchestrator, by outcome.",
	}, []string{"outcome"})

	// OrchestratorFailovers counts credential-to-credential failovers.
	OrchestratorFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kiro_bridge",
		Subsystem: "orchestrator",
		Name:      "failovers_total",
		Help:      "Times the orchestrator abandoned a credential and selected another.",
	})

	// OrchestratorAttemptsPerRequest observes how many attempts a single
	// inbound request consumed before succeeding or exhausting its budget.
	OrchestratorAttemptsPerRequest = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kiro_bridge",
		Subsystem: "orchestrator",
		Name:      "attempts_per_request",
		Help:      "Number of south-side attempts spent per inbound request.",
		Buckets:   []float64{1, 2, 3, 4, 6, 9},
	})

	// DecoderFramesTotal counts successfully decoded event-stream frames.
	DecoderFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kiro_bridge",
		Subsystem: "decoder",
		Name:      "frames_total",
		Help:      "Event Stream frames successfully decoded.",
	})

	// DecoderCRCFailuresTotal counts frames rejected for a CRC mismatch.
	DecoderCRCFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kiro_bridge",
		Subsystem: "decoder",
		Name:      "crc_failures_total",
		Help:      "Event Stream frames rejected for a prelude or message CRC mismatch.",
	})
)

// Outcome labels for OrchestratorAttempts.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomeFatal     = "fatal"
)
