package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/admediation/internal/events"
	"github.com/patrickwarner/admediation/internal/models"
	"github.com/patrickwarner/admediation/internal/observability"
)

// AnalyticsService defines the interface for analytics operations.
// Implementations should handle cases where underlying storage is unavailable
// by returning ErrUnavailable.
type AnalyticsService interface {
	// RecordEvent stores a single ad lifecycle event.
	RecordEvent(ctx context.Context, ev models.Event) error
	// EventsByRequestID returns the events of one show request in time order.
	EventsByRequestID(ctx context.Context, requestID string) ([]EventRecord, error)
	// Summary aggregates events per network and type since the given time.
	Summary(ctx context.Context, since time.Time) ([]SummaryRow, error)
}

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

// EventRecord mirrors a row in the ad_events table.
type EventRecord struct {
	Timestamp time.Time `json:"timestamp"`
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Network   string    `json:"network"`
	Amount    int32     `json:"amount"`
	Reason    string    `json:"reason"`
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
}

// SummaryRow is one (network, event type) bucket of Summary.
type SummaryRow struct {
	Network   string `json:"network"`
	EventType string `json:"event_type"`
	Count     uint64 `json:"count"`
	Amount    int64  `json:"amount"`
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS ad_events (
       timestamp   DateTime64(3),
       event_id    String,
       event_type  LowCardinality(String),
       network     LowCardinality(String),
       amount      Int32,
       reason      String,
       request_id  String,
       user_id     String
   ) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`

// InitClickHouse connects to ClickHouse and ensures the ad_events table exists.
func InitClickHouse(dsn string, maxOpenConns int, metrics observability.MetricsRegistry) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), createTableSQL); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db, Metrics: metrics}, nil
}

// RecordEvent inserts a single event row into the ad_events table.
func (a *Analytics) RecordEvent(ctx context.Context, ev models.Event) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	stmt := `INSERT INTO ad_events (timestamp, event_id, event_type, network, amount, reason, request_id, user_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, ts, ev.ID, string(ev.Type), string(ev.Network), int32(ev.Amount), ev.Reason, ev.RequestID, ev.UserID); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", string(ev.Type)))
		return fmt.Errorf("insert %s event: %w", ev.Type, err)
	}
	return nil
}

// EventsByRequestID returns all events for a given request ID ordered by timestamp.
func (a *Analytics) EventsByRequestID(ctx context.Context, requestID string) ([]EventRecord, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT timestamp, event_id, event_type, network, amount, reason, request_id, user_id FROM ad_events WHERE request_id=? ORDER BY timestamp`
	rows, err := a.DB.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var out []EventRecord
	for rows.Next() {
		var ev EventRecord
		if err := rows.Scan(&ev.Timestamp, &ev.EventID, &ev.EventType, &ev.Network, &ev.Amount, &ev.Reason, &ev.RequestID, &ev.UserID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Summary counts events and sums reward amounts per network and event type.
func (a *Analytics) Summary(ctx context.Context, since time.Time) ([]SummaryRow, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT network, event_type, count() AS cnt, sum(amount) AS total FROM ad_events WHERE timestamp >= ? GROUP BY network, event_type ORDER BY network, event_type`
	rows, err := a.DB.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var out []SummaryRow
	for rows.Next() {
		var r SummaryRow
		if err := rows.Scan(&r.Network, &r.EventType, &r.Count, &r.Amount); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

// Sink persists mediator events through an AnalyticsService without blocking
// the publisher. Register HandleAdEvent as a mediator observer.
type Sink struct {
	queue *events.Queue
}

// NewSink starts a background writer for svc. Failed and dropped writes are
// logged and counted under the "clickhouse" sink label.
func NewSink(ctx context.Context, svc AnalyticsService, logger *zap.Logger, metrics observability.MetricsRegistry, buffer int) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	q := events.NewQueue(buffer, svc.RecordEvent, func(ev models.Event, err error) {
		metrics.IncrementSinkErrors("clickhouse")
		logger.Warn("analytics event not stored",
			zap.String("event_id", ev.ID),
			zap.String("event_type", string(ev.Type)),
			zap.Error(err))
	})
	q.Start(ctx)
	return &Sink{queue: q}
}

// HandleAdEvent enqueues ev for insertion.
func (s *Sink) HandleAdEvent(ev models.Event) {
	s.queue.Handle(ev)
}

// Close flushes buffered events and stops the writer.
func (s *Sink) Close() {
	s.queue.Close()
}
