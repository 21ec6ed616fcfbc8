package observability

import (
	"sync"
	"time"
)

var _ MetricsRegistry = (*CountingRegistry)(nil)

// CountingRegistry records metric calls in memory so tests can assert on them.
type CountingRegistry struct {
	mu         sync.Mutex
	Loads      map[string]int // keyed by "network/outcome"
	Shows      map[string]int // keyed by "network/outcome"
	Ready      map[string]bool
	Requests   map[string]int // show requests keyed by outcome
	NoFill     int
	Rewards    map[string]int // summed amount keyed by network
	Events     map[string]int
	Observers  int
	SinkErrors map[string]int
}

// NewCountingRegistry creates an empty CountingRegistry.
func NewCountingRegistry() *CountingRegistry {
	return &CountingRegistry{
		Loads:      make(map[string]int),
		Shows:      make(map[string]int),
		Ready:      make(map[string]bool),
		Requests:   make(map[string]int),
		Rewards:    make(map[string]int),
		Events:     make(map[string]int),
		SinkErrors: make(map[string]int),
	}
}

// HTTP Request metrics
func (m *CountingRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (m *CountingRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

// Ad source metrics
func (m *CountingRegistry) IncrementLoads(network, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Loads[network+"/"+outcome]++
}

func (m *CountingRegistry) IncrementShows(network, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Shows[network+"/"+outcome]++
}

func (m *CountingRegistry) SetSourceReady(network string, ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Ready[network] = ready
}

// Mediation metrics
func (m *CountingRegistry) IncrementShowRequests(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests[outcome]++
}

func (m *CountingRegistry) IncrementNoFill() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NoFill++
}

func (m *CountingRegistry) RecordReward(network string, amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rewards[network] += amount
}

// Event fan-out metrics
func (m *CountingRegistry) IncrementEvent(eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events[eventType]++
}

func (m *CountingRegistry) SetObservers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Observers = n
}

func (m *CountingRegistry) IncrementSinkErrors(sink string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SinkErrors[sink]++
}

// Snapshot helpers take the lock so tests can read while callbacks run.

func (m *CountingRegistry) NoFillCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NoFill
}

func (m *CountingRegistry) ShowCount(network, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Shows[network+"/"+outcome]
}

func (m *CountingRegistry) LoadCount(network, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Loads[network+"/"+outcome]
}

func (m *CountingRegistry) ObserverCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Observers
}

func (m *CountingRegistry) ShowRequestCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Requests[outcome]
}
