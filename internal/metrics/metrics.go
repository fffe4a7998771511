// Package metrics holds the Prometheus collectors shared by the importer, matcher and HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImportResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faimport",
			Subsystem: "import",
			Name:      "results_total",
			Help:      "Import candidates by source and outcome",
		},
		[]string{"source", "status"},
	)

	ItemMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faimport",
			Subsystem: "matching",
			Name:      "items_matched_total",
			Help:      "Invoice items matched to stock, by match type",
		},
		[]string{"type"},
	)

	RepositoryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faimport",
			Subsystem: "staging",
			Name:      "failures_total",
			Help:      "Rolled back repository transactions",
		},
		[]string{"op"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faimport",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "action", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "faimport",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"action"},
	)
)
