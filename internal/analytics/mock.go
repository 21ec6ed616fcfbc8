package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/patrickwarner/admediation/internal/models"
)

var _ AnalyticsService = (*MockAnalytics)(nil)

// MockAnalytics is an in-memory AnalyticsService for testing.
type MockAnalytics struct {
	mu     sync.Mutex
	Events []models.Event
	Err    error
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordEvent stores ev unless Err is set.
func (m *MockAnalytics) RecordEvent(_ context.Context, ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, ev)
	return nil
}

// EventsByRequestID filters the recorded events.
func (m *MockAnalytics) EventsByRequestID(_ context.Context, requestID string) ([]EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EventRecord
	for _, ev := range m.Events {
		if ev.RequestID == requestID {
			out = append(out, recordOf(ev))
		}
	}
	return out, nil
}

// Summary aggregates the recorded events.
func (m *MockAnalytics) Summary(_ context.Context, since time.Time) ([]SummaryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := map[[2]string]int{}
	var out []SummaryRow
	for _, ev := range m.Events {
		if ev.Time.Before(since) {
			continue
		}
		key := [2]string{string(ev.Network), string(ev.Type)}
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, SummaryRow{Network: key[0], EventType: key[1]})
		}
		out[i].Count++
		out[i].Amount += int64(ev.Amount)
	}
	return out, nil
}

// Recorded returns a copy of the stored events.
func (m *MockAnalytics) Recorded() []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Event(nil), m.Events...)
}

func recordOf(ev models.Event) EventRecord {
	return EventRecord{
		Timestamp: ev.Time,
		EventID:   ev.ID,
		EventType: string(ev.Type),
		Network:   string(ev.Network),
		Amount:    int32(ev.Amount),
		Reason:    ev.Reason,
		RequestID: ev.RequestID,
		UserID:    ev.UserID,
	}
}
