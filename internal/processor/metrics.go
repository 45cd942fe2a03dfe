package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// invocations counts processor module runs.
	// Labels: module, result (success, failure, timeout)
	invocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "srg",
		Subsystem: "processor",
		Name:      "invocations_total",
		Help:      "Total external processor invocations",
	}, []string{"module", "result"})

	// invocationDuration measures wall time per module run.
	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "srg",
		Subsystem: "processor",
		Name:      "invocation_duration_seconds",
		Help:      "External processor invocation duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"module"})
)
