package scheduler

import (
	"sync"
	"time"
)

type manualTask struct {
	at  time.Duration
	seq int
	fn  func()
}

// Manual is a deterministic scheduler for tests. Time only moves when
// Advance is called; due callbacks fire in deadline order, ties broken by
// scheduling order.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending []manualTask
}

// NewManual returns a Manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

// After schedules fn at Now()+d.
func (m *Manual) After(d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.pending = append(m.pending, manualTask{at: m.now + d, seq: m.seq, fn: fn})
}

// Now returns the elapsed simulated time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of callbacks that have not fired.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Advance moves time forward by d and fires every callback that becomes due,
// including callbacks scheduled by other callbacks within the window.
// It returns the number of callbacks fired.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	fired := 0
	for {
		m.mu.Lock()
		idx := m.nextDue(target)
		if idx < 0 {
			m.now = target
			m.mu.Unlock()
			return fired
		}
		task := m.pending[idx]
		m.pending = append(m.pending[:idx], m.pending[idx+1:]...)
		m.now = task.at
		m.mu.Unlock()

		task.fn()
		fired++
	}
}

// Flush fires pending callbacks one at a time in deadline order, moving
// time to each deadline, until none are pending or limit callbacks have run.
// It never fires more than limit callbacks.
func (m *Manual) Flush(limit int) int {
	fired := 0
	for fired < limit {
		m.mu.Lock()
		idx := m.nextPending()
		if idx < 0 {
			m.mu.Unlock()
			return fired
		}
		task := m.pending[idx]
		m.pending = append(m.pending[:idx], m.pending[idx+1:]...)
		if task.at > m.now {
			m.now = task.at
		}
		m.mu.Unlock()

		task.fn()
		fired++
	}
	return fired
}

// nextPending returns the index of the earliest pending task, or -1.
// Callers hold m.mu.
func (m *Manual) nextPending() int {
	idx := -1
	for i, t := range m.pending {
		if idx < 0 || m.less(t, m.pending[idx]) {
			idx = i
		}
	}
	return idx
}

// nextDue returns the index of the earliest task due at or before target.
// Callers hold m.mu.
func (m *Manual) nextDue(target time.Duration) int {
	idx := -1
	for i, t := range m.pending {
		if t.at > target {
			continue
		}
		if idx < 0 || m.less(t, m.pending[idx]) {
			idx = i
		}
	}
	return idx
}

func (m *Manual) less(a, b manualTask) bool {
	if a.at != b.at {
		return a.at < b.at
	}
	return a.seq < b.seq
}
