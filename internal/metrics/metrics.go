package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat exchange outcomes.
const (
	OutcomeAnswered      = "answered"
	OutcomePlaceholder   = "placeholder"
	OutcomeProviderError = "provider_error"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisor_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 15},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	ChatExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_chat_exchanges_total",
			Help: "Chat exchanges by outcome",
		},
		[]string{"outcome"},
	)

	TranscriptsCleared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "advisor_transcripts_cleared_total",
			Help: "Total transcript clear requests",
		},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisor_provider_latency_seconds",
			Help:    "Completion provider call latency",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"provider"},
	)

	// Realtime metrics
	RealtimeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "advisor_realtime_subscribers",
			Help: "Open transcript mirror subscriptions",
		},
	)

	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "advisor_realtime_dropped_events_total",
			Help: "Events dropped because a subscriber was not keeping up",
		},
	)
)
