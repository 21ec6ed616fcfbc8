package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admediation_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admediation_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// load results per network (filled, failed)
	LoadCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admediation_loads_total",
			Help: "Total ad load results per network",
		},
		[]string{"network", "outcome"},
	)

	// show results per network (completed, skipped, failed)
	ShowCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admediation_shows_total",
			Help: "Total ad show results per network",
		},
		[]string{"network", "outcome"},
	)

	// 1 when the network has an ad cached
	SourceReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "admediation_source_ready",
			Help: "Whether a network has a rewarded ad ready (1) or not (0)",
		},
		[]string{"network"},
	)

	// show requests handled by the mediator, labelled by outcome
	ShowRequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admediation_show_requests_total",
			Help: "Total show requests handled by the mediator",
		},
		[]string{"outcome"},
	)

	// number of show requests no network could fill
	NoFillCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admediation_nofill_total",
			Help: "Total show requests with no ad available",
		},
	)

	// reward amount granted per network
	RewardAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admediation_reward_amount_total",
			Help: "Sum of reward amounts granted per network",
		},
		[]string{"network"},
	)

	// number of events published to observers, labelled by type
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admediation_events_total",
			Help: "Total ad lifecycle events published",
		},
		[]string{"type"},
	)

	// registered observers
	ObserverCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "admediation_observers",
			Help: "Number of registered event observers",
		},
	)

	// errors writing events to external sinks
	SinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admediation_sink_errors_total",
			Help: "Total errors persisting events to a sink",
		},
		[]string{"sink"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		LoadCount,
		ShowCount,
		SourceReady,
		ShowRequestCount,
		NoFillCount,
		RewardAmount,
		EventCount,
		ObserverCount,
		SinkErrors,
	)
}
