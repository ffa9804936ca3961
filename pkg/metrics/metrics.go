package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for InvocationsTotal.
const (
	OutcomeOK         = "ok"
	OutcomeDiagnostic = "diagnostic"
	OutcomeExitError  = "exit_error"
	OutcomeSpawnError = "spawn_error"
	OutcomeIOError    = "io_error"
)

// Metrics holds all Prometheus metrics for unixutils.
// Using promauto for automatic registration with default registry.
var (
	// --- Process Metrics ---

	// InvocationsTotal counts child process invocations by program and outcome.
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unixutils",
			Subsystem: "process",
			Name:      "invocations_total",
			Help:      "Total number of child process invocations by program and outcome",
		},
		[]string{"program", "outcome"},
	)

	// InvocationDuration tracks wall time from spawn to exit.
	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "unixutils",
			Subsystem: "process",
			Name:      "duration_seconds",
			Help:      "Duration of child process invocations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~32s
		},
		[]string{"program"},
	)

	// BytesTotal counts bytes pumped per stream (stdin, stdout, stderr).
	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unixutils",
			Subsystem: "process",
			Name:      "bytes_total",
			Help:      "Total bytes moved between this process and its children, by stream",
		},
		[]string{"stream"},
	)

	// DiagnosticsTotal counts invocations that wrote to their diagnostic stream.
	DiagnosticsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unixutils",
			Subsystem: "process",
			Name:      "diagnostics_total",
			Help:      "Total number of invocations that produced diagnostic output",
		},
		[]string{"program"},
	)

	// --- Program Availability ---

	// ProgramLookups counts PATH lookups actually performed (cache misses).
	ProgramLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unixutils",
			Subsystem: "programs",
			Name:      "lookups_total",
			Help:      "Total number of program availability lookups performed",
		},
		[]string{"program", "available"},
	)

	// --- Fetch ---

	// FetchRejected counts fetches refused by an open circuit.
	FetchRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unixutils",
			Subsystem: "fetch",
			Name:      "rejected_total",
			Help:      "Total number of fetches rejected by an open circuit breaker",
		},
		[]string{"host"},
	)
)

// RecordInvocation records metrics for a finished invocation.
func RecordInvocation(program, outcome string, diagnostics bool, durationSeconds float64) {
	InvocationsTotal.WithLabelValues(program, outcome).Inc()
	InvocationDuration.WithLabelValues(program).Observe(durationSeconds)
	if diagnostics {
		DiagnosticsTotal.WithLabelValues(program).Inc()
	}
}

// RecordBytes adds n bytes to the given stream's counter.
func RecordBytes(stream string, n int64) {
	if n > 0 {
		BytesTotal.WithLabelValues(stream).Add(float64(n))
	}
}
