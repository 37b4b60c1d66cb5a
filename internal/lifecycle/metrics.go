package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gadify_lifecycle_transitions_total",
	Help: "Device lifecycle transition attempts by event and outcome.",
}, []string{"event", "outcome"})

const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeStale    = "stale"
	outcomeError    = "error"
)

func observe(event string, err error) {
	switch {
	case err == nil:
		transitionsTotal.WithLabelValues(event, outcomeSuccess).Inc()
	case isStale(err):
		transitionsTotal.WithLabelValues(event, outcomeStale).Inc()
	case isBackend(err):
		transitionsTotal.WithLabelValues(event, outcomeError).Inc()
	default:
		transitionsTotal.WithLabelValues(event, outcomeRejected).Inc()
	}
}
