// Package metrics exposes Prometheus collectors for the widget server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "widget_sessions_started_total",
			Help: "Total number of conversations started",
		},
	)

	MessagesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_messages_total",
			Help: "User messages handled, by step and outcome",
		},
		[]string{"step", "outcome"},
	)

	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_submissions_total",
			Help: "Completed conversations handed to the primary sink, by outcome",
		},
		[]string{"outcome"},
	)

	SinkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "widget_sink_duration_seconds",
			Help:    "Duration of sink submissions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink", "outcome"},
	)

	ValuationAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "widget_valuation_usd",
			Help:    "Distribution of computed practice valuations in USD",
			Buckets: prometheus.ExponentialBuckets(1e6, 4, 10),
		},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "widget_websocket_connections",
			Help: "Number of open widget WebSocket connections",
		},
	)
)

// Outcome labels.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
)
