// Package tester is a manual harness that drives a mediator from key presses
// and logs every notification it publishes.
package tester

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/mediation"
	"github.com/patrickwarner/admediation/internal/models"
	"github.com/patrickwarner/admediation/internal/scheduler"
)

// ErrNoMediator is returned by Start when the tester has nothing to drive.
var ErrNoMediator = errors.New("tester: mediator not available")

// Mediator is the part of mediation.Mediator the tester uses.
type Mediator interface {
	RequestShow(ctx context.Context, req mediation.ShowRequest) (mediation.ShowResult, error)
	IsAnyReady() bool
	Register(obs mediation.Observer) *mediation.Registration
}

// Stats counts what the tester has seen since Start.
type Stats struct {
	Loaded       int `json:"loaded"`
	FailedToLoad int `json:"failed_to_load"`
	Shown        int `json:"shown"`
	Skipped      int `json:"skipped"`
	Rewarded     int `json:"rewarded"`
	RewardTotal  int `json:"reward_total"`
	ShowRequests int `json:"show_requests"`
	ReadyChecks  int `json:"ready_checks"`
}

// Option configures an AdTester.
type Option func(*AdTester)

// WithExecutor runs mediator calls through exec, normally the scheduler loop.
func WithExecutor(exec scheduler.Executor) Option {
	return func(t *AdTester) {
		if exec != nil {
			t.exec = exec
		}
	}
}

// WithUserID attributes show requests to userID.
func WithUserID(userID string) Option {
	return func(t *AdTester) { t.userID = userID }
}

// AdTester forwards 's' to RequestShow and 'c' to IsAnyReady.
type AdTester struct {
	mediator Mediator
	logger   *zap.Logger
	exec     scheduler.Executor
	userID   string

	mu    sync.Mutex
	reg   *mediation.Registration
	stats Stats
}

// New creates a tester for med. med may be nil, in which case Start fails.
func New(med Mediator, logger *zap.Logger, opts ...Option) *AdTester {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &AdTester{mediator: med, logger: logger, exec: scheduler.Inline{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start subscribes to the mediator. Calling Start twice is a no-op.
func (t *AdTester) Start() error {
	if t.mediator == nil {
		t.logger.Error("mediator not found; create it before starting the tester")
		return ErrNoMediator
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reg != nil {
		return nil
	}
	t.reg = t.mediator.Register(mediation.Handlers{
		OnLoaded:       t.onLoaded,
		OnFailedToLoad: t.onFailedToLoad,
		OnShown:        t.onShown,
		OnSkipped:      t.onSkipped,
		OnReward:       t.onReward,
	})
	t.logger.Info("subscribed to mediator events")
	return nil
}

// Stop unsubscribes. No notifications are delivered after it returns.
func (t *AdTester) Stop() {
	t.mu.Lock()
	reg := t.reg
	t.reg = nil
	t.mu.Unlock()
	if reg != nil {
		reg.Unregister()
		t.logger.Info("unsubscribed from mediator events")
	}
}

// HandleKey dispatches one key press. Keys are case-insensitive; unknown keys
// are ignored.
func (t *AdTester) HandleKey(ctx context.Context, key rune) error {
	switch unicode.ToLower(key) {
	case 's':
		t.logger.Info("'S' pressed, requesting rewarded ad")
		t.mu.Lock()
		t.stats.ShowRequests++
		t.mu.Unlock()

		res, err := scheduler.Call(ctx, t.exec, func(ctx context.Context) (mediation.ShowResult, error) {
			return t.mediator.RequestShow(ctx, mediation.ShowRequest{UserID: t.userID})
		})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, scheduler.ErrStopped) {
			return err
		}
		switch {
		case err == nil:
			t.logger.Info("show started", zap.String("network", string(res.Network)), zap.String("request_id", res.RequestID))
		case errors.Is(err, models.ErrNoFill):
			// reported through OnFailedToLoad as well
		default:
			t.logger.Warn("show request failed", zap.Error(err))
		}
		return nil
	case 'c':
		ready, err := scheduler.Call(ctx, t.exec, func(context.Context) (bool, error) {
			return t.mediator.IsAnyReady(), nil
		})
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.stats.ReadyChecks++
		t.mu.Unlock()
		t.logger.Info("'C' pressed, checking ad readiness", zap.Bool("ready", ready))
		return nil
	default:
		return nil
	}
}

// Run reads keys from r until EOF or until ctx is done. Whitespace is skipped.
func (t *AdTester) Run(ctx context.Context, r io.Reader) error {
	keys := make(chan rune)
	readErr := make(chan error, 1)
	go func() {
		br := bufio.NewReader(r)
		for {
			k, _, err := br.ReadRune()
			if err != nil {
				readErr <- err
				return
			}
			if unicode.IsSpace(k) {
				continue
			}
			select {
			case keys <- k:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case k := <-keys:
			if err := t.HandleKey(ctx, k); err != nil {
				return err
			}
		}
	}
}

// Stats returns a copy of the counters.
func (t *AdTester) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *AdTester) count(fn func(*Stats)) {
	t.mu.Lock()
	fn(&t.stats)
	t.mu.Unlock()
}

func (t *AdTester) onLoaded(network models.NetworkID) {
	t.count(func(s *Stats) { s.Loaded++ })
	t.logger.Info("rewarded ad loaded and ready to show", zap.String("network", string(network)))
}

func (t *AdTester) onFailedToLoad(network models.NetworkID, reason string) {
	t.count(func(s *Stats) { s.FailedToLoad++ })
	t.logger.Warn("rewarded ad failed to load", zap.String("network", string(network)), zap.String("reason", reason))
}

func (t *AdTester) onShown(network models.NetworkID) {
	t.count(func(s *Stats) { s.Shown++ })
	t.logger.Info("rewarded ad opened", zap.String("network", string(network)))
}

func (t *AdTester) onSkipped(network models.NetworkID, reason string) {
	t.count(func(s *Stats) { s.Skipped++ })
	t.logger.Warn("rewarded ad skipped or closed before completion", zap.String("network", string(network)), zap.String("reason", reason))
}

func (t *AdTester) onReward(reward models.RewardEvent) {
	t.count(func(s *Stats) {
		s.Rewarded++
		s.RewardTotal += reward.Amount
	})
	t.logger.Info("user earned reward", zap.String("network", string(reward.Network)), zap.Int("amount", reward.Amount))
}
