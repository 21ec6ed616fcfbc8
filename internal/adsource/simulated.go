package adsource

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/events"
	"github.com/patrickwarner/admediation/internal/models"
	"github.com/patrickwarner/admediation/internal/observability"
	"github.com/patrickwarner/admediation/internal/scheduler"
)

// SimulatedSource stands in for a vendor SDK. Network responses are replaced
// by scheduler callbacks whose results come from a Behavior.
type SimulatedSource struct {
	cfg      models.SourceConfig
	sched    scheduler.Scheduler
	behavior Behavior
	logger   *zap.Logger
	metrics  observability.MetricsRegistry
	tagFn    func(models.NetworkID, LoadOutcome) string
	bus      *events.Bus

	mu    sync.Mutex
	state models.SourceState
}

var _ Source = (*SimulatedSource)(nil)

// Option configures a SimulatedSource.
type Option func(*SimulatedSource)

// WithBehavior replaces the default AlwaysFill behaviour.
func WithBehavior(b Behavior) Option {
	return func(s *SimulatedSource) {
		if b != nil {
			s.behavior = b
		}
	}
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SimulatedSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics registry. The default discards metrics.
func WithMetrics(m observability.MetricsRegistry) Option {
	return func(s *SimulatedSource) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithFailureTag overrides how a failed load is described in the
// failed_to_load notification.
func WithFailureTag(fn func(models.NetworkID, LoadOutcome) string) Option {
	return func(s *SimulatedSource) {
		if fn != nil {
			s.tagFn = fn
		}
	}
}

// NewSimulated creates a source for cfg.Network driven by sched.
func NewSimulated(cfg models.SourceConfig, sched scheduler.Scheduler, opts ...Option) *SimulatedSource {
	s := &SimulatedSource{
		cfg:      cfg,
		sched:    sched,
		behavior: AlwaysFill{},
		logger:   zap.NewNop(),
		metrics:  observability.NewNoOpRegistry(),
		tagFn:    networkErrorTag,
		bus:      events.NewBus(),
		state:    models.StateNotLoaded,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("network", string(cfg.Network)))
	return s
}

// networkErrorTag formats a load failure as "<network>: <error>".
func networkErrorTag(network models.NetworkID, o LoadOutcome) string {
	return fmt.Sprintf("%s: %s", network, o.Err)
}

func (s *SimulatedSource) Network() models.NetworkID { return s.cfg.Network }

// Config returns the configuration the source was built with.
func (s *SimulatedSource) Config() models.SourceConfig { return s.cfg }

func (s *SimulatedSource) State() models.SourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SimulatedSource) IsReady() bool {
	return s.State() == models.StateReady
}

func (s *SimulatedSource) Subscribe(fn events.Handler) *events.Subscription {
	return s.bus.Subscribe(fn)
}

func (s *SimulatedSource) Load(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case models.StateLoading, models.StateReady:
		s.mu.Unlock()
		return nil
	case models.StateShowing:
		s.mu.Unlock()
		return fmt.Errorf("load %s: %w", s.cfg.Network, models.ErrAlreadyShowing)
	}
	s.state = models.StateLoading
	s.mu.Unlock()

	s.logger.Debug("loading rewarded ad", zap.String("ad_unit_id", s.cfg.AdUnitID))
	s.sched.After(s.cfg.LoadDelay, s.completeLoad)
	return nil
}

func (s *SimulatedSource) completeLoad() {
	outcome := s.behavior.NextLoad()

	s.mu.Lock()
	if s.state != models.StateLoading {
		s.mu.Unlock()
		return
	}
	var ev models.Event
	if outcome.Filled() {
		s.state = models.StateReady
		ev = models.NewLoaded(s.cfg.Network)
	} else {
		s.state = models.StateNotLoaded
		ev = models.NewFailedToLoad(s.cfg.Network, s.tagFn(s.cfg.Network, outcome))
	}
	s.mu.Unlock()

	if outcome.Filled() {
		s.logger.Info("rewarded ad loaded")
		s.metrics.IncrementLoads(string(s.cfg.Network), "filled")
		s.metrics.SetSourceReady(string(s.cfg.Network), true)
	} else {
		s.logger.Warn("rewarded ad failed to load",
			zap.String("error", outcome.Err.String()),
			zap.String("message", outcome.Message))
		s.metrics.IncrementLoads(string(s.cfg.Network), "failed")
	}
	s.bus.Publish(ev)
}

func (s *SimulatedSource) Show(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case models.StateReady:
	case models.StateShowing:
		s.mu.Unlock()
		return fmt.Errorf("show %s: %w", s.cfg.Network, models.ErrAlreadyShowing)
	default:
		s.mu.Unlock()
		return fmt.Errorf("show %s: %w", s.cfg.Network, models.ErrNotReady)
	}
	s.state = models.StateShowing
	s.mu.Unlock()

	s.metrics.SetSourceReady(string(s.cfg.Network), false)
	s.logger.Info("showing rewarded ad")
	s.bus.Publish(models.NewShown(s.cfg.Network))
	s.sched.After(s.cfg.ShowDuration, s.completeShow)
	return nil
}

func (s *SimulatedSource) completeShow() {
	outcome := s.behavior.NextShow()

	// The ad is consumed before observers hear about it, so a handler that
	// calls Load sees NotLoaded.
	s.mu.Lock()
	s.state = models.StateNotLoaded
	s.mu.Unlock()

	var ev models.Event
	switch {
	case outcome.Err != ShowErrorNone:
		s.logger.Error("rewarded ad failed to show",
			zap.String("error", outcome.Err.String()),
			zap.String("message", outcome.Message))
		ev = models.NewSkipped(s.cfg.Network, fmt.Sprintf("%s: %s", s.cfg.Network, outcome.Err))
		s.metrics.IncrementShows(string(s.cfg.Network), "failed")
	case outcome.Completion == CompletionCompleted:
		s.logger.Info("rewarded ad completed", zap.Int("reward", s.cfg.RewardAmount))
		ev = models.NewRewarded(s.cfg.Network, s.cfg.RewardAmount)
		s.metrics.IncrementShows(string(s.cfg.Network), "completed")
	default:
		s.logger.Info("rewarded ad not completed", zap.String("completion", outcome.Completion.String()))
		ev = models.NewSkipped(s.cfg.Network, outcome.Completion.String())
		s.metrics.IncrementShows(string(s.cfg.Network), "skipped")
	}
	s.bus.Publish(ev)

	if s.cfg.PreloadAfterShow && outcome.Err == ShowErrorNone {
		s.sched.After(s.cfg.ReloadDelay, func() {
			if err := s.Load(context.Background()); err != nil {
				s.logger.Debug("preload skipped", zap.Error(err))
			}
		})
	}
}
