// Package mediation selects which ad source serves a rewarded show request
// and re-publishes source notifications to the host.
//
// Selection is a static priority list: sources are tried in the order they
// were registered and the first ready one is shown. When none is ready the
// mediator reports a single no-fill notification (network "None") and asks
// every source to load.
package mediation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/adsource"
	"github.com/patrickwarner/admediation/internal/events"
	"github.com/patrickwarner/admediation/internal/models"
	"github.com/patrickwarner/admediation/internal/observability"
)

// ShowRequest carries the caller's context for a show.
type ShowRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// ShowResult identifies the show that was started.
type ShowResult struct {
	RequestID string           `json:"request_id"`
	Network   models.NetworkID `json:"network"`
}

type pendingShow struct {
	requestID string
	userID    string
}

// Mediator is the mediation selector. It is safe for concurrent use, but the
// sources it wraps expect their callbacks on a single scheduler.
type Mediator struct {
	logger  *zap.Logger
	metrics observability.MetricsRegistry
	tracer  trace.Tracer

	sources    []adsource.Source
	sourceSubs []*events.Subscription
	bus        *events.Bus

	mu      sync.Mutex
	pending map[models.NetworkID]pendingShow
	closed  bool
}

// Option configures a Mediator.
type Option func(*Mediator)

// WithTracer overrides the tracer used for show spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Mediator) {
		if t != nil {
			m.tracer = t
		}
	}
}

// New creates a mediator over sources. Priority follows argument order: the
// first source is always preferred when it is ready.
func New(logger *zap.Logger, metrics observability.MetricsRegistry, sources []adsource.Source, opts ...Option) (*Mediator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	m := &Mediator{
		logger:  logger,
		metrics: metrics,
		tracer:  observability.Tracer(),
		bus:     events.NewBus(),
		pending: make(map[models.NetworkID]pendingShow),
	}
	for _, opt := range opts {
		opt(m)
	}

	seen := make(map[models.NetworkID]struct{}, len(sources))
	for _, src := range sources {
		if _, dup := seen[src.Network()]; dup {
			return nil, fmt.Errorf("register %s: %w", src.Network(), models.ErrDuplicateNetwork)
		}
		seen[src.Network()] = struct{}{}
		m.sources = append(m.sources, src)
	}
	// Subscribe only after validation so a rejected mediator leaves no
	// handlers attached to the sources.
	for _, src := range m.sources {
		m.sourceSubs = append(m.sourceSubs, src.Subscribe(m.relay))
	}
	return m, nil
}

// Register adds an observer. Observers are notified in registration order.
func (m *Mediator) Register(obs Observer) *Registration {
	sub := m.bus.Subscribe(obs.HandleAdEvent)
	m.metrics.SetObservers(m.bus.Len())
	return &Registration{sub: sub, mediator: m}
}

// RequestShow shows an ad from the highest-priority ready source. At most one
// source is asked to show per call. When no source is ready it publishes one
// failed_to_load event for models.NetworkNone, starts a load on every source
// and returns models.ErrNoFill.
func (m *Mediator) RequestShow(ctx context.Context, req ShowRequest) (ShowResult, error) {
	ctx, span := m.tracer.Start(ctx, "mediation.request_show")
	defer span.End()

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ShowResult{}, models.ErrClosed
	}
	// A request whose caller already gave up must not consume an ad.
	if err := ctx.Err(); err != nil {
		m.metrics.IncrementShowRequests("cancelled")
		return ShowResult{}, fmt.Errorf("request show: %w", err)
	}

	requestID := uuid.NewString()
	span.SetAttributes(attribute.String("ad.request_id", requestID))
	m.logger.Debug("received request to show rewarded ad",
		zap.String("request_id", requestID),
		zap.String("user_id", req.UserID))

	for _, src := range m.sources {
		if !src.IsReady() {
			continue
		}
		network := src.Network()
		span.SetAttributes(attribute.String("ad.network", string(network)))

		m.mu.Lock()
		m.pending[network] = pendingShow{requestID: requestID, userID: req.UserID}
		m.mu.Unlock()

		if err := src.Show(ctx); err != nil {
			m.mu.Lock()
			delete(m.pending, network)
			m.mu.Unlock()
			m.metrics.IncrementShowRequests("error")
			span.RecordError(err)
			span.SetStatus(codes.Error, "show failed")
			m.logger.Warn("rewarded ad show rejected", zap.String("network", string(network)), zap.Error(err))
			return ShowResult{RequestID: requestID, Network: network}, err
		}

		m.metrics.IncrementShowRequests("served")
		m.logger.Info("showing rewarded ad",
			zap.String("network", string(network)),
			zap.String("request_id", requestID))
		return ShowResult{RequestID: requestID, Network: network}, nil
	}

	m.metrics.IncrementShowRequests("no_fill")
	m.metrics.IncrementNoFill()
	span.SetAttributes(attribute.String("ad.network", string(models.NetworkNone)))
	m.logger.Warn("no rewarded ad is currently available from any network",
		zap.String("request_id", requestID))

	m.publish(models.NewFailedToLoad(models.NetworkNone, models.ErrNoFill.Error()).WithRequest(requestID, req.UserID))
	if err := m.LoadAll(ctx); err != nil {
		m.logger.Warn("reload after no fill incomplete", zap.Error(err))
	}
	return ShowResult{RequestID: requestID, Network: models.NetworkNone}, models.ErrNoFill
}

// IsAnyReady reports whether at least one source can show immediately.
func (m *Mediator) IsAnyReady() bool {
	for _, src := range m.sources {
		if src.IsReady() {
			return true
		}
	}
	return false
}

// LoadAll asks every source to load. Sources that are already loading or
// ready ignore the call. Errors from individual sources are joined.
func (m *Mediator) LoadAll(ctx context.Context) error {
	var errs []error
	for _, src := range m.sources {
		if err := src.Load(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status returns a snapshot of every source in priority order.
func (m *Mediator) Status() []models.SourceStatus {
	out := make([]models.SourceStatus, 0, len(m.sources))
	for i, src := range m.sources {
		state := src.State()
		out = append(out, models.SourceStatus{
			Network:  src.Network(),
			State:    state,
			Priority: i,
			Ready:    state == models.StateReady,
		})
	}
	return out
}

// Networks lists the registered networks in priority order.
func (m *Mediator) Networks() []models.NetworkID {
	out := make([]models.NetworkID, len(m.sources))
	for i, src := range m.sources {
		out[i] = src.Network()
	}
	return out
}

// Close detaches from every source and drops all observers. Later calls to
// RequestShow fail with models.ErrClosed.
func (m *Mediator) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	subs := m.sourceSubs
	m.sourceSubs = nil
	m.pending = make(map[models.NetworkID]pendingShow)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	m.bus.Clear()
	m.metrics.SetObservers(0)
}

// relay receives source events, attributes them to the pending show request
// of that network and re-publishes them.
func (m *Mediator) relay(ev models.Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if p, ok := m.pending[ev.Network]; ok && (ev.Type == models.EventShown || ev.Type.IsTerminal()) {
		ev = ev.WithRequest(p.requestID, p.userID)
		if ev.Type.IsTerminal() {
			delete(m.pending, ev.Network)
		}
	}
	m.mu.Unlock()
	m.publish(ev)
}

func (m *Mediator) publish(ev models.Event) {
	m.metrics.IncrementEvent(string(ev.Type))
	if reward, ok := ev.Reward(); ok {
		m.metrics.RecordReward(string(reward.Network), reward.Amount)
	}
	m.bus.Publish(ev)
}
