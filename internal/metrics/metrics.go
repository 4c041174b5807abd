// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Placements counts single-tab placement outcomes by mode and outcome.
	Placements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabgenius_placements_total",
			Help: "Single-tab placement outcomes.",
		},
		[]string{"mode", "outcome"},
	)

	// GroupsCreated counts groups created by bulk workflows.
	GroupsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabgenius_bulk_groups_created_total",
			Help: "Groups created by bulk grouping.",
		},
		[]string{"mode"},
	)

	// BulkFailures counts bulk sub-steps abandoned after a host error.
	BulkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabgenius_bulk_step_failures_total",
			Help: "Bulk grouping buckets or categories abandoned after a host error.",
		},
		[]string{"mode"},
	)

	// DecisionParseErrors counts malformed single-tab decisions.
	DecisionParseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabgenius_decision_parse_errors_total",
			Help: "Single-tab decision replies that could not be parsed.",
		},
		[]string{"provider"},
	)

	backendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabgenius_backend_request_seconds",
			Help:    "Duration of decision backend requests.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"provider", "op", "result"},
	)

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(Placements, GroupsCreated, BulkFailures, DecisionParseErrors, backendDuration)
}

// ObserveBackend records one backend request.
func ObserveBackend(provider, op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	backendDuration.WithLabelValues(provider, op, result).Observe(d.Seconds())
}

// Handler serves the collectors in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
