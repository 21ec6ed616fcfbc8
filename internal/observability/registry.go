package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// This replaces direct access to global Prometheus metrics with dependency injection
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Ad source metrics
	IncrementLoads(network, outcome string)
	IncrementShows(network, outcome string)
	SetSourceReady(network string, ready bool)

	// Mediation metrics
	IncrementShowRequests(outcome string)
	IncrementNoFill()
	RecordReward(network string, amount int)

	// Event fan-out metrics
	IncrementEvent(eventType string)
	SetObservers(n int)
	IncrementSinkErrors(sink string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Ad source metrics
func (r *PrometheusRegistry) IncrementLoads(network, outcome string) {
	LoadCount.WithLabelValues(network, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementShows(network, outcome string) {
	ShowCount.WithLabelValues(network, outcome).Inc()
}

func (r *PrometheusRegistry) SetSourceReady(network string, ready bool) {
	v := 0.0
	if ready {
		v = 1
	}
	SourceReady.WithLabelValues(network).Set(v)
}

// Mediation metrics
func (r *PrometheusRegistry) IncrementShowRequests(outcome string) {
	ShowRequestCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementNoFill() {
	NoFillCount.Inc()
}

func (r *PrometheusRegistry) RecordReward(network string, amount int) {
	RewardAmount.WithLabelValues(network).Add(float64(amount))
}

// Event fan-out metrics
func (r *PrometheusRegistry) IncrementEvent(eventType string) {
	EventCount.WithLabelValues(eventType).Inc()
}

func (r *PrometheusRegistry) SetObservers(n int) {
	ObserverCount.Set(float64(n))
}

func (r *PrometheusRegistry) IncrementSinkErrors(sink string) {
	SinkErrors.WithLabelValues(sink).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

// HTTP Request metrics
func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

// Ad source metrics
func (r *NoOpRegistry) IncrementLoads(network, outcome string)    {}
func (r *NoOpRegistry) IncrementShows(network, outcome string)    {}
func (r *NoOpRegistry) SetSourceReady(network string, ready bool) {}

// Mediation metrics
func (r *NoOpRegistry) IncrementShowRequests(outcome string)    {}
func (r *NoOpRegistry) IncrementNoFill()                        {}
func (r *NoOpRegistry) RecordReward(network string, amount int) {}

// Event fan-out metrics
func (r *NoOpRegistry) IncrementEvent(eventType string) {}
func (r *NoOpRegistry) SetObservers(n int)              {}
func (r *NoOpRegistry) IncrementSinkErrors(sink string) {}
