// Package rewards credits completed rewarded views to user wallets.
package rewards

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/events"
	"github.com/patrickwarner/admediation/internal/models"
	"github.com/patrickwarner/admediation/internal/observability"
)

// Wallet is the storage the ledger writes to. db.RedisStore implements it.
type Wallet interface {
	CreditReward(ctx context.Context, userID, network string, amount int, ttl time.Duration) (int64, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

// Ledger is a mediator observer that credits rewarded events carrying a user
// ID. Anonymous rewards are counted in metrics by the mediator but not stored.
type Ledger struct {
	wallet Wallet
	ttl    time.Duration
	logger *zap.Logger
	queue  *events.Queue
}

// NewLedger starts the ledger writer. dailyTTL bounds the lifetime of the
// per-day reward counters.
func NewLedger(ctx context.Context, wallet Wallet, dailyTTL time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	l := &Ledger{wallet: wallet, ttl: dailyTTL, logger: logger}
	l.queue = events.NewQueue(1024, l.credit, func(ev models.Event, err error) {
		metrics.IncrementSinkErrors("redis")
		logger.Error("reward not credited",
			zap.String("user_id", ev.UserID),
			zap.String("network", string(ev.Network)),
			zap.Int("amount", ev.Amount),
			zap.Error(err))
	})
	l.queue.Start(ctx)
	return l
}

// HandleAdEvent queues rewarded events that belong to a user.
func (l *Ledger) HandleAdEvent(ev models.Event) {
	if ev.Type != models.EventRewarded || ev.UserID == "" {
		return
	}
	l.queue.Handle(ev)
}

func (l *Ledger) credit(ctx context.Context, ev models.Event) error {
	balance, err := l.wallet.CreditReward(ctx, ev.UserID, string(ev.Network), ev.Amount, l.ttl)
	if err != nil {
		return err
	}
	l.logger.Info("reward credited",
		zap.String("user_id", ev.UserID),
		zap.String("network", string(ev.Network)),
		zap.Int("amount", ev.Amount),
		zap.Int64("balance", balance),
		zap.String("request_id", ev.RequestID))
	return nil
}

// Balance returns the current wallet balance of userID.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	return l.wallet.Balance(ctx, userID)
}

// Close waits for queued credits to be written.
func (l *Ledger) Close() {
	l.queue.Close()
}
